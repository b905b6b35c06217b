package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/cache"
	"github.com/pribylovaa/chat-auth/internal/metrics"
	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/oauth"
	"github.com/pribylovaa/chat-auth/internal/service"
)

// AuthService: операции service.Service, которые нужны хендлерам.
type AuthService interface {
	CompleteHandshake(ctx context.Context, hs *models.Handshake) (*models.TokenPair, *models.User, error)
	RegisterUser(ctx context.Context, email, password, name string) (*models.TokenPair, *models.User, error)
	LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Profile(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in service.ProfileInput) (*models.User, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Providers отдаёт OAuth-провайдера по имени из URL.
type Providers interface {
	Get(name string) (oauth.Provider, error)
	Names() []string
}

// Deps: зависимости хендлеров.
type Deps struct {
	Service     AuthService
	Providers   Providers
	States      cache.StateStore
	Metrics     *metrics.Metrics
	FrontendURL string
	StateTTL    time.Duration
}

// Handlers агрегирует зависимости HTTP-эндпойнтов auth.
type Handlers struct {
	svc         AuthService
	providers   Providers
	states      cache.StateStore
	metrics     *metrics.Metrics
	frontendURL string
	stateTTL    time.Duration
	validate    *validator.Validate
	now         func() time.Time
}

func New(d Deps) *Handlers {
	return &Handlers{
		svc:         d.Service,
		providers:   d.Providers,
		states:      d.States,
		metrics:     d.Metrics,
		frontendURL: d.FrontendURL,
		stateTTL:    d.StateTTL,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// writeJSON: единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict: строгий JSON-декодер, неизвестные поля запрещены.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
