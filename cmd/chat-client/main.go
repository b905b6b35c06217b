// chat-client: консольный клиент чат-API с сохранением сессии в файле.
//
//	chat-client login --access <jwt> --refresh <jwt>
//	chat-client status | refresh | logout | health
//	chat-client send --message "hi"
//	chat-client history [--session <id>]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pribylovaa/chat-auth/pkg/authclient"
)

// clientConfig: адреса и путь к файлу сессии. Переменные окружения
// задают значения по умолчанию, флаги их переопределяют.
type clientConfig struct {
	AuthURL     string        `env:"CHAT_AUTH_URL" env-default:"http://localhost:8080"`
	ChatURL     string        `env:"CHAT_API_URL" env-default:"http://localhost:8000"`
	SessionFile string        `env:"CHAT_SESSION_FILE"`
	LoginURL    string        `env:"CHAT_LOGIN_URL" env-default:"http://localhost:3000/login"`
	Timeout     time.Duration `env:"CHAT_TIMEOUT" env-default:"15s"`
	Debug       bool          `env:"CHAT_DEBUG"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cfg clientConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("chat-client", flag.ContinueOnError)
	fs.StringVar(&cfg.AuthURL, "auth-url", cfg.AuthURL, "auth service base URL")
	fs.StringVar(&cfg.ChatURL, "chat-url", cfg.ChatURL, "chat API base URL")
	fs.StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "path to session file")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: chat-client [flags] login|status|refresh|logout|send|history|health [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			log.Error("session_file_resolve_failed", slog.String("err", err.Error()))
			return 1
		}
		cfg.SessionFile = filepath.Join(dir, "chat-client", "session.json")
	}

	store, err := authclient.NewFileStorage(cfg.SessionFile)
	if err != nil {
		log.Error("session_file_open_failed",
			slog.String("path", cfg.SessionFile),
			slog.String("err", err.Error()),
		)
		return 1
	}

	m, err := authclient.NewManager(authclient.Config{
		Store:     store,
		API:       authclient.NewHTTPAuthAPI(cfg.AuthURL),
		CookieURL: cfg.AuthURL,
		LoginURL:  cfg.LoginURL,
		Logger:    log,
		Navigator: authclient.NavigatorFunc(func(target string) {
			log.Info("session_ended", slog.String("login_url", target))
		}),
	})
	if err != nil {
		log.Error("manager_init_failed", slog.String("err", err.Error()))
		return 1
	}
	chat := authclient.NewChatClient(cfg.ChatURL, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if err := dispatch(ctx, cmd, rest, m, chat); err != nil {
		log.Error("command_failed", slog.String("cmd", cmd), slog.String("err", err.Error()))
		return 1
	}

	return 0
}

func dispatch(ctx context.Context, cmd string, args []string, m *authclient.Manager, chat *authclient.ChatClient) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		access := fs.String("access", "", "access token")
		refresh := fs.String("refresh", "", "refresh token")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *access == "" || *refresh == "" {
			return errors.New("both --access and --refresh are required")
		}
		if err := m.Login(ctx, *access, *refresh); err != nil {
			return err
		}
		return printJSON(m.State().User)

	case "status":
		if err := m.Bootstrap(ctx); err != nil {
			return err
		}
		st := m.State()
		return printJSON(map[string]any{
			"authenticated": st.IsAuthenticated,
			"user":          st.User,
		})

	case "refresh":
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		return printJSON(m.State().User)

	case "logout":
		m.Logout()
		return nil

	case "send":
		fs := flag.NewFlagSet("send", flag.ContinueOnError)
		msg := fs.String("message", "", "message text")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *msg == "" {
			return errors.New("--message is required")
		}
		resp, err := chat.Send(ctx, *msg)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		session := fs.String("session", "", "conversation id (default: current)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		h, err := chat.History(ctx, *session)
		if err != nil {
			return err
		}
		if h == nil {
			fmt.Println("no conversation")
			return nil
		}
		return printJSON(h)

	case "health":
		h, err := chat.Health(ctx)
		if err != nil {
			return err
		}
		return printJSON(h)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
