// oauth выполняет обмен кода авторизации у внешних провайдеров (Google,
// GitHub) и приводит профиль провайдера к models.Handshake. Решение о том,
// какой аккаунт использовать, принимает service.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/pribylovaa/chat-auth/internal/config"
	"github.com/pribylovaa/chat-auth/internal/models"
)

const defaultHTTPTimeout = 10 * time.Second

var (
	// ErrUnknownProvider: провайдер не поддерживается или не настроен.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrExchangeFailed: провайдер отклонил код авторизации.
	ErrExchangeFailed = errors.New("oauth code exchange failed")
	// ErrProfileFetch: не удалось получить профиль пользователя у провайдера.
	ErrProfileFetch = errors.New("oauth profile fetch failed")
)

// Provider: один внешний источник идентичности.
type Provider interface {
	// Name возвращает дискриминант провайдера.
	Name() models.Provider
	// AuthCodeURL строит адрес страницы согласия с переданным state.
	AuthCodeURL(state string) string
	// Exchange меняет код на токен провайдера и загружает профиль.
	Exchange(ctx context.Context, code string) (*models.Handshake, error)
}

// Option настраивает провайдера. Используется в тестах для подмены адресов.
type Option func(*base)

// WithEndpoint подменяет auth/token адреса провайдера.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(b *base) { b.cfg.Endpoint = e }
}

// WithAPIURL подменяет базовый адрес API профиля.
func WithAPIURL(u string) Option {
	return func(b *base) { b.apiURL = u }
}

// WithHTTPClient задаёт HTTP-клиент для обмена кода и запросов профиля.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.httpClient = c }
}

type base struct {
	cfg        *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

func newBase(cfg *oauth2.Config, apiURL string, opts []Option) base {
	b := base{
		cfg:        cfg,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

func (b *base) AuthCodeURL(state string) string {
	return b.cfg.AuthCodeURL(state)
}

// exchange получает токен провайдера и возвращает клиент, подписывающий
// запросы этим токеном.
func (b *base) exchange(ctx context.Context, code string) (*http.Client, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	tok, err := b.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	return b.cfg.Client(ctx, tok), nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

// Registry: набор настроенных провайдеров по имени.
type Registry struct {
	providers map[models.Provider]Provider
}

// NewRegistry собирает реестр. nil-провайдеры пропускаются.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Provider]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}

	return r
}

// FromConfig собирает реестр из провайдеров, для которых задан client_id.
func FromConfig(cfg config.OAuthConfig, opts ...Option) *Registry {
	var providers []Provider
	if cfg.Google.Enabled() {
		providers = append(providers, NewGoogle(cfg.Google, opts...))
	}
	if cfg.GitHub.Enabled() {
		providers = append(providers, NewGitHub(cfg.GitHub, opts...))
	}

	return NewRegistry(providers...)
}

// Get возвращает провайдера по имени из URL.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[models.Provider(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return p, nil
}

// Names возвращает отсортированный список включённых провайдеров.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p.String())
	}
	sort.Strings(out)

	return out
}
