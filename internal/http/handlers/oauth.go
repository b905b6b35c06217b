package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/chat-auth/internal/cache"
	apierrors "github.com/pribylovaa/chat-auth/internal/errors"
	"github.com/pribylovaa/chat-auth/internal/metrics"
	"github.com/pribylovaa/chat-auth/internal/models"
	logctx "github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/pkg/redact"
	"github.com/pribylovaa/chat-auth/internal/service"
)

// Сообщения, которые фронт показывает на странице /auth/error.
const (
	msgAuthFailed    = "Authentication failed. Please try again."
	msgInvalidState  = "Login session expired. Please try again."
	msgAccessDenied  = "Access was denied by the provider."
	msgDeactivated   = "account deactivated"
	msgGitHubNoEmail = "GitHub account must have a public email address"
	msgGoogleNoEmail = "Google account must have a verified email address"
)

// ListProviders отдаёт включённые OAuth-провайдеры.
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{Providers: h.providers.Names()})
}

// OAuthStart сохраняет одноразовый state и отправляет пользователя
// на страницу согласия провайдера.
func (h *Handlers) OAuthStart(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	state, err := newState()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	entry := &cache.StateEntry{Provider: p.Name(), CreatedAt: h.now()}
	if err := h.states.Save(r.Context(), state, entry, h.stateTTL); err != nil {
		logctx.From(r.Context()).Error("oauth_state_save_failed", slog.String("err", err.Error()))
		apierrors.WriteError(w, r, err)
		return
	}

	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback завершает handshake: проверяет state, меняет код на профиль,
// связывает аккаунт и возвращает пару токенов фронту через redirect.
// Любая ошибка тоже уходит redirect-ом на /auth/error.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logctx.From(ctx)

	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	name := p.Name()

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Info("oauth_denied", slog.String("provider", name.String()), slog.String("reason", e))
		h.metrics.Login(name.String(), metrics.ResultRejected)
		h.redirectError(w, r, msgAccessDenied)
		return
	}

	entry, ok, err := h.states.Consume(ctx, q.Get("state"))
	if err != nil {
		log.Error("oauth_state_consume_failed", slog.String("err", err.Error()))
		h.metrics.Login(name.String(), metrics.ResultError)
		h.redirectError(w, r, msgAuthFailed)
		return
	}
	if !ok || entry.Provider != name {
		log.Warn("oauth_state_invalid", slog.String("provider", name.String()))
		h.metrics.Login(name.String(), metrics.ResultRejected)
		h.redirectError(w, r, msgInvalidState)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.metrics.Login(name.String(), metrics.ResultRejected)
		h.redirectError(w, r, msgAuthFailed)
		return
	}

	hs, err := p.Exchange(ctx, code)
	if err != nil {
		log.Error("oauth_exchange_failed",
			slog.String("provider", name.String()),
			slog.String("err", err.Error()),
		)
		h.metrics.Login(name.String(), metrics.ResultError)
		h.redirectError(w, r, msgAuthFailed)
		return
	}

	pair, user, err := h.svc.CompleteHandshake(ctx, hs)
	if err != nil {
		h.metrics.Login(name.String(), loginResult(err))
		log.Info("oauth_callback_failed",
			slog.String("provider", name.String()),
			slog.String("email", redact.Email(hs.Email)),
			slog.String("err", err.Error()),
		)
		h.redirectError(w, r, callbackMessage(name, err))
		return
	}

	h.metrics.Login(name.String(), metrics.ResultOK)
	log.Info("oauth_login",
		slog.String("provider", name.String()),
		slog.String("user_id", user.ID.String()),
	)

	v := url.Values{}
	v.Set("token", pair.AccessToken)
	v.Set("refreshToken", pair.RefreshToken)
	v.Set("provider", name.String())
	http.Redirect(w, r, h.frontend("/auth/callback", v), http.StatusFound)
}

func (h *Handlers) redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, h.frontend("/auth/error", url.Values{"message": {msg}}), http.StatusFound)
}

func (h *Handlers) frontend(path string, v url.Values) string {
	return strings.TrimRight(h.frontendURL, "/") + path + "?" + v.Encode()
}

func callbackMessage(p models.Provider, err error) string {
	var collision *service.CollisionError

	switch {
	case errors.As(err, &collision):
		return collision.Error()
	case errors.Is(err, service.ErrMissingEmail):
		if p == models.ProviderGoogle {
			return msgGoogleNoEmail
		}
		return msgGitHubNoEmail
	case errors.Is(err, service.ErrAccountDeactivated):
		return msgDeactivated
	default:
		return msgAuthFailed
	}
}

// newState: 32 случайных байта в base64url.
func newState() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
