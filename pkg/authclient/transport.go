package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNoToken: вызов API без сохранённого access-токена. Сеть не трогается.
	ErrNoToken = errors.New("authclient: authentication token not found")

	// ErrNotAuthenticated: сессия завершилась выходом (токены отклонены).
	ErrNotAuthenticated = errors.New("authclient: not authenticated")

	// ErrCircuitOpen: breaker разомкнут, запрос не отправлялся.
	ErrCircuitOpen = gobreaker.ErrOpenState
)

// APIError: ответ backend-а со статусом вне 2xx.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authclient: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authclient: http %d", e.StatusCode)
}

// Unauthorized сообщает, что backend отклонил токен.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// isAuthFailure: backend отклонил токен (401). Остальные статусы, сетевые
// ошибки и открытый breaker сессию не меняют.
func isAuthFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// BreakerSettings: параметры circuit breaker исходящих вызовов.
type BreakerSettings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerSettings возвращает параметры по умолчанию.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

type options struct {
	client  *http.Client
	breaker *BreakerSettings
}

// Option настраивает HTTPAuthAPI и ChatClient.
type Option func(*options)

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBreaker переопределяет параметры circuit breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(o *options) { o.breaker = &s }
}

// transport выполняет запросы через circuit breaker. 5xx считается отказом
// и возвращается как *APIError с закрытым телом.
type transport struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newTransport(name string, opts []Option) *transport {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.client == nil {
		o.client = &http.Client{Timeout: defaultTimeout}
	}

	bs := DefaultBreakerSettings(name)
	if o.breaker != nil {
		bs = *o.breaker
	}

	settings := gobreaker.Settings{
		Name:        bs.Name,
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bs.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bs.FailureRatio
		},
	}

	return &transport{
		client:  o.client,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

func (t *transport) do(req *http.Request) (*http.Response, error) {
	return t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			return nil, readAPIError(resp)
		}

		return resp, nil
	})
}

// readAPIError разбирает конверт {"error":{"code","message"}}, если он есть.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}

	return apiErr
}

// decodeResponse читает 2xx-ответ в dst либо возвращает *APIError.
func decodeResponse(resp *http.Response, dst any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("authclient: decode response: %w", err)
	}

	return nil
}
