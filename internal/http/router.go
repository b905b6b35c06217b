package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/chat-auth/internal/http/handlers"
	"github.com/pribylovaa/chat-auth/internal/http/middleware"
	"github.com/pribylovaa/chat-auth/internal/metrics"
)

// Options: параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой, роуты регистрируются на корне.

	// Auth проверяет access-токены для Session-мидлвара.
	Auth           middleware.Authenticator
	CookieFallback bool
	Metrics        *metrics.Metrics

	// Ready сообщает о готовности для /healthz. nil означает "всегда готов".
	Ready func() bool
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		opts.Metrics.Middleware,
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	root.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready == nil || opts.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	sessionOpts := []middleware.SessionOption{
		middleware.WithCookieFallback(opts.CookieFallback),
		middleware.WithSessionMetrics(opts.Metrics),
	}
	strict := middleware.Session(opts.Auth, middleware.Strict, sessionOpts...)
	optional := middleware.Session(opts.Auth, middleware.Optional, sessionOpts...)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, strict, optional)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, strict, optional)
	return root
}

// registerRoutes: единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, strict, optional middleware.Middleware) {
	// локальные аккаунты и обмен токенов
	r.Post("/auth/register", h.RegisterUser)
	r.Post("/auth/login", h.LoginUser)
	r.Post("/auth/refresh-token", h.RefreshToken)

	// профиль
	r.With(strict).Get("/auth/profile", h.Profile)
	r.With(strict).Patch("/auth/profile", h.UpdateProfile)
	r.With(strict).Delete("/auth/profile", h.DeleteProfile)
	r.With(optional).Get("/auth/whoami", h.WhoAmI)

	// oauth
	r.Get("/auth/providers", h.ListProviders)
	r.Get("/auth/{provider}", h.OAuthStart)
	r.Get("/auth/{provider}/callback", h.OAuthCallback)
}
