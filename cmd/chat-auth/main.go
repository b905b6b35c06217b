package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/chat-auth/internal/cache"
	"github.com/pribylovaa/chat-auth/internal/config"
	apihttp "github.com/pribylovaa/chat-auth/internal/http"
	"github.com/pribylovaa/chat-auth/internal/http/handlers"
	"github.com/pribylovaa/chat-auth/internal/metrics"
	"github.com/pribylovaa/chat-auth/internal/oauth"
	"github.com/pribylovaa/chat-auth/internal/service"
	"github.com/pribylovaa/chat-auth/internal/storage"
	"github.com/pribylovaa/chat-auth/internal/storage/memory"
	"github.com/pribylovaa/chat-auth/internal/storage/mongo"
	"github.com/pribylovaa/chat-auth/internal/storage/postgres"
	"github.com/pribylovaa/chat-auth/internal/token"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Хранилище идентичностей c таймаутом подключения.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.Storage)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("err", err.Error()),
		)
		rootCancel()
		os.Exit(1)
	}
	log.Info("storage_connected", slog.String("driver", cfg.Storage.Driver))

	// Хранилище OAuth state: redis, если задан URL, иначе память процесса.
	states, err := openStateStore(rootCtx, cfg.Redis, log)
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	// Сервис.
	tokens := token.New(cfg.Auth)
	srvc := service.New(str, tokens)
	providers := oauth.FromConfig(cfg.OAuth)
	log.Info("service_initialized", slog.Any("oauth_providers", providers.Names()))

	m := metrics.New(prometheus.DefaultRegisterer)

	var ready int32 // 0: not ready; 1: ready

	h := handlers.New(handlers.Deps{
		Service:     srvc,
		Providers:   providers,
		States:      states,
		Metrics:     m,
		FrontendURL: cfg.OAuth.FrontendURL,
		StateTTL:    cfg.OAuth.StateTTL,
	})

	router := apihttp.NewRouter(h, apihttp.Options{
		Logger:         log,
		Timeout:        cfg.Timeouts.Service,
		Auth:           srvc,
		CookieFallback: cfg.Auth.CookieFallback,
		Metrics:        m,
		Ready:          func() bool { return atomic.LoadInt32(&ready) == 1 },
	})

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr(),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics_listen_start", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Фоновая очистка просроченных OAuth state (только in-memory хранилище).
	if mem, ok := states.(*cache.MemoryStateStore); ok {
		startStateJanitor(rootCtx, mem, log, time.Minute)
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	// Снимаем ready, чтобы балансировщик перестал слать трафик.
	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	_ = metricsSrv.Shutdown(shutdownCtx)

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	_ = states.Close()
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage выбирает драйвер хранилища идентичностей по конфигу.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.PostgresURL)
	case config.DriverMongo:
		return mongo.New(ctx, cfg.MongoURL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openStateStore подключает redis или возвращает in-memory хранилище.
func openStateStore(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (cache.StateStore, error) {
	if cfg.URL == "" {
		log.Info("state_store_memory")
		return cache.NewMemoryStateStore(), nil
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, err := cache.NewRedisStateStore(rctx, cfg.URL, "")
	if err != nil {
		return nil, err
	}
	log.Info("state_store_redis")

	return st, nil
}

// startStateJanitor периодически удаляет просроченные OAuth state
// из in-memory хранилища.
func startStateJanitor(ctx context.Context, states *cache.MemoryStateStore, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := states.DeleteExpired(now); n > 0 {
					log.Debug("state_janitor_purged", slog.Int("count", n))
				}
			}
		}
	}()
}
