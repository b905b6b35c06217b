package handlers

import (
	"time"

	"github.com/pribylovaa/chat-auth/internal/models"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Provider  string    `json:"provider"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func userFromModel(u *models.User) *userResponse {
	if u == nil {
		return nil
	}

	return &userResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.AvatarURL,
		Provider:  u.Provider.String(),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type profileResponse struct {
	User *userResponse `json:"user"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *userResponse `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// updateProfileRequest: отсутствующее поле не меняется.
type updateProfileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type providersResponse struct {
	Providers []string `json:"providers"`
}
