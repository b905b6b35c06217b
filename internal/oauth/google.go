package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pribylovaa/chat-auth/internal/config"
	"github.com/pribylovaa/chat-auth/internal/models"
)

const googleAPIURL = "https://www.googleapis.com"

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Google реализует Provider поверх OAuth2 Google и userinfo v2.
type Google struct {
	base
}

// NewGoogle создаёт провайдера Google из конфигурации.
func NewGoogle(pc config.ProviderConfig, opts ...Option) *Google {
	cfg := &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  pc.RedirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}

	return &Google{base: newBase(cfg, googleAPIURL, opts)}
}

func (g *Google) Name() models.Provider { return models.ProviderGoogle }

func (g *Google) Exchange(ctx context.Context, code string) (*models.Handshake, error) {
	const op = "oauth.google.Exchange"

	client, err := g.exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var info googleUserInfo
	if err := getJSON(ctx, client, g.apiURL+"/oauth2/v2/userinfo", &info); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrProfileFetch, err)
	}

	if info.ID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, ErrProfileFetch)
	}

	email := info.Email
	if !info.VerifiedEmail {
		email = ""
	}

	return &models.Handshake{
		Provider:   models.ProviderGoogle,
		ProviderID: info.ID,
		Email:      email,
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}
