package oauth

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/pribylovaa/chat-auth/internal/config"
	"github.com/pribylovaa/chat-auth/internal/models"
)

const githubAPIURL = "https://api.github.com"

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHub реализует Provider поверх OAuth2 GitHub и REST API /user.
//
// По умолчанию используется только публичный e-mail профиля: без него
// handshake вернётся с пустым Email и будет отклонён как MissingEmail.
// С usePrivateEmail недостающий адрес берётся из /user/emails
// (основной подтверждённый).
type GitHub struct {
	base
	usePrivateEmail bool
}

// NewGitHub создаёт провайдера GitHub из конфигурации.
func NewGitHub(gc config.GitHubConfig, opts ...Option) *GitHub {
	scopes := []string{"read:user"}
	if gc.UsePrivateEmail {
		scopes = append(scopes, "user:email")
	}

	cfg := &oauth2.Config{
		ClientID:     gc.ClientID,
		ClientSecret: gc.ClientSecret,
		RedirectURL:  gc.RedirectURL,
		Scopes:       scopes,
		Endpoint:     github.Endpoint,
	}

	return &GitHub{
		base:            newBase(cfg, githubAPIURL, opts),
		usePrivateEmail: gc.UsePrivateEmail,
	}
}

func (g *GitHub) Name() models.Provider { return models.ProviderGitHub }

func (g *GitHub) Exchange(ctx context.Context, code string) (*models.Handshake, error) {
	const op = "oauth.github.Exchange"

	client, err := g.exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var u githubUser
	if err := getJSON(ctx, client, g.apiURL+"/user", &u); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrProfileFetch, err)
	}

	if u.ID == 0 {
		return nil, fmt.Errorf("%s: %w: empty user id", op, ErrProfileFetch)
	}

	email := u.Email
	if email == "" && g.usePrivateEmail {
		var emails []githubEmail
		if err := getJSON(ctx, client, g.apiURL+"/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrProfileFetch, err)
		}

		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}

	return &models.Handshake{
		Provider:   models.ProviderGitHub,
		ProviderID: strconv.FormatInt(u.ID, 10),
		Email:      email,
		Name:       name,
		AvatarURL:  u.AvatarURL,
	}, nil
}
