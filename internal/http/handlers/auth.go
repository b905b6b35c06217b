package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/chat-auth/internal/errors"
	"github.com/pribylovaa/chat-auth/internal/metrics"
	"github.com/pribylovaa/chat-auth/internal/models"
	logctx "github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/pkg/redact"
	"github.com/pribylovaa/chat-auth/internal/service"
)

var errInvalidBody = apierrors.InvalidArgument("invalid request body")

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidBody)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		apierrors.WriteError(w, r, apierrors.InvalidArgument("email and password are required"))
		return
	}

	pair, user, err := h.svc.RegisterUser(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		h.metrics.Login(models.ProviderEmail.String(), loginResult(err))
		logctx.From(r.Context()).Info("register_rejected",
			slog.String("email", redact.Email(in.Email)),
			slog.String("err", err.Error()),
		)
		apierrors.WriteError(w, r, err)
		return
	}

	h.metrics.Login(models.ProviderEmail.String(), metrics.ResultOK)
	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userFromModel(user),
	})
}

func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidBody)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		apierrors.WriteError(w, r, apierrors.InvalidArgument("email and password are required"))
		return
	}

	pair, user, err := h.svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		h.metrics.Login(models.ProviderEmail.String(), loginResult(err))
		apierrors.WriteError(w, r, err)
		return
	}

	h.metrics.Login(models.ProviderEmail.String(), metrics.ResultOK)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userFromModel(user),
	})
}

// RefreshToken обменивает refresh-токен на новую пару. Любой отказ
// отдаётся одинаково: 401 "invalid refresh token".
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidBody)
		return
	}

	if in.RefreshToken == "" {
		h.metrics.Refresh(metrics.ResultRejected)
		apierrors.WriteError(w, r, service.ErrRefreshFailed)
		return
	}

	pair, err := h.svc.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrRefreshFailed) {
			h.metrics.Refresh(metrics.ResultRejected)
			logctx.From(r.Context()).Debug("refresh_rejected")
		} else {
			h.metrics.Refresh(metrics.ResultError)
			logctx.From(r.Context()).Error("refresh_failed", slog.String("err", err.Error()))
		}
		apierrors.WriteError(w, r, err)
		return
	}

	h.metrics.Refresh(metrics.ResultOK)
	writeJSON(w, http.StatusOK, tokensResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, service.ErrAccountCollision):
		return metrics.ResultCollision
	case errors.Is(err, service.ErrMissingEmail):
		return metrics.ResultNoEmail
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDeactivated),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
