package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// User: профиль, который отдаёт GET /auth/profile.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Provider string `json:"provider"`
}

// Tokens: пара, выданная обменом refresh-токена.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthAPI: контракт backend-а, нужный Manager.
type AuthAPI interface {
	// Profile проверяет access-токен и возвращает его владельца.
	Profile(ctx context.Context, accessToken string) (*User, error)
	// Refresh меняет refresh-токен на новую пару.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// HTTPAuthAPI ходит в /auth/profile и /auth/refresh-token.
type HTTPAuthAPI struct {
	baseURL string
	t       *transport
}

// NewHTTPAuthAPI создаёт клиента auth-эндпойнтов по базовому адресу.
func NewHTTPAuthAPI(baseURL string, opts ...Option) *HTTPAuthAPI {
	return &HTTPAuthAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		t:       newTransport("auth-api", opts),
	}
}

func (a *HTTPAuthAPI) Profile(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/profile", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.t.do(req)
	if err != nil {
		return nil, err
	}

	var out struct {
		User *User `json:"user"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "empty profile"}
	}

	return out.User, nil
}

func (a *HTTPAuthAPI) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/refresh-token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.t.do(req)
	if err != nil {
		return nil, err
	}

	var out Tokens
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Navigator выполняет жёсткий переход на страницу входа.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc адаптирует функцию к Navigator.
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }
