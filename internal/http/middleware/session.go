package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/chat-auth/internal/errors"
	"github.com/pribylovaa/chat-auth/internal/metrics"
	"github.com/pribylovaa/chat-auth/internal/models"
	logctx "github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/service"
	"github.com/pribylovaa/chat-auth/internal/token"
)

// AccessTokenCookie: имя cookie, из которой читается access-токен,
// когда заголовка Authorization нет.
const AccessTokenCookie = "accessToken"

// Mode определяет реакцию Session на отсутствующий или негодный токен.
type Mode int

const (
	// Strict отвечает 401 на любой запрос без действительной сессии.
	Strict Mode = iota
	// Optional пропускает такой запрос дальше неаутентифицированным.
	Optional
)

// Authenticator проверяет access-токен и возвращает владельца.
// Реализуется service.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Identity, error)
}

type sessionConfig struct {
	cookieFallback bool
	metrics        *metrics.Metrics
}

// SessionOption настраивает Session.
type SessionOption func(*sessionConfig)

// WithCookieFallback разрешает брать токен из cookie accessToken.
func WithCookieFallback(enabled bool) SessionOption {
	return func(c *sessionConfig) { c.cookieFallback = enabled }
}

// WithSessionMetrics включает учёт отказов.
func WithSessionMetrics(m *metrics.Metrics) SessionOption {
	return func(c *sessionConfig) { c.metrics = m }
}

type identityKey struct{}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom достаёт личность, прикреплённую Session.
func IdentityFrom(ctx context.Context) (*models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*models.Identity)
	return id, ok && id != nil
}

// Session проверяет access-токен запроса и прикрепляет личность к контексту.
//
// Таблица решений:
//   - токена нет: Strict -> 401 "token required", Optional -> дальше без личности;
//   - токен истёк, невалиден, владелец не найден: Strict -> 401, Optional -> дальше;
//   - аккаунт деактивирован: 401 "account deactivated" в обоих режимах;
//   - прочие ошибки (хранилище): Strict -> 500, Optional -> дальше.
//
// Refresh здесь не выполняется никогда.
func Session(auth Authenticator, mode Mode, opts ...SessionOption) Middleware {
	cfg := sessionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, present := extractToken(r, cfg.cookieFallback)
			if !present {
				if mode == Optional {
					next.ServeHTTP(w, r)
					return
				}
				cfg.metrics.SessionRejected("missing")
				apierrors.WriteError(w, r, service.ErrTokenRequired)
				return
			}

			id, err := auth.Authenticate(ctx, raw)
			if err != nil {
				reason := rejectReason(err)

				switch {
				case errors.Is(err, service.ErrAccountDeactivated):
					// Деактивация отклоняется независимо от режима.
				case mode == Optional:
					if reason == "internal" {
						logctx.From(ctx).Warn("session_lookup_failed", slog.String("err", err.Error()))
					}
					next.ServeHTTP(w, r)
					return
				}

				cfg.metrics.SessionRejected(reason)
				logctx.From(ctx).Debug("session_rejected", slog.String("reason", reason))
				apierrors.WriteError(w, r, err)
				return
			}

			ctx = WithIdentity(ctx, id)
			ctx = logctx.With(ctx, slog.String("user_id", id.User.ID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken: сначала Authorization: Bearer, затем cookie (если разрешено).
// present=true и пустой токен означают заголовок неверного формата.
func extractToken(r *http.Request, cookieFallback bool) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return strings.TrimSpace(auth[len(prefix):]), true
		}
		return "", true
	}

	if cookieFallback {
		if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
			return c.Value, true
		}
	}

	return "", false
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, service.ErrAccountDeactivated):
		return "deactivated"
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, service.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, service.ErrUnauthorized):
		return "invalid"
	default:
		return "internal"
	}
}
