package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/pribylovaa/chat-auth/internal/errors"
	"github.com/pribylovaa/chat-auth/internal/http/middleware"
	logctx "github.com/pribylovaa/chat-auth/internal/pkg/log"
	"github.com/pribylovaa/chat-auth/internal/service"
)

// Profile отдаёт пользователя, прикреплённого Session-мидлваром.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: userFromModel(id.User)})
}

// WhoAmI работает за Session в режиме Optional: без сессии отдаёт {"user":null}.
func (h *Handlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, profileResponse{})
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: userFromModel(id.User)})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthorized)
		return
	}

	var in updateProfileRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidBody)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), id.User.ID, service.ProfileInput{
		Name:      in.Name,
		AvatarURL: in.Avatar,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: userFromModel(user)})
}

// DeleteProfile деактивирует аккаунт. Запись не удаляется.
func (h *Handlers) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthorized)
		return
	}

	if err := h.svc.Deactivate(r.Context(), id.User.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	logctx.From(r.Context()).Info("account_deactivated", slog.String("provider", id.Provider.String()))
	w.WriteHeader(http.StatusNoContent)
}
