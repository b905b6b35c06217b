// metrics собирает prometheus-метрики HTTP-слоя и событий аутентификации.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения метки result.
const (
	ResultOK        = "ok"
	ResultCollision = "collision"
	ResultNoEmail   = "missing_email"
	ResultRejected  = "rejected"
	ResultError     = "error"
)

// Metrics: набор коллекторов сервиса.
// Нулевой указатель допустим: все методы становятся no-op.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	logins            *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	sessionRejections *prometheus.CounterVec
}

// New регистрирует коллекторы в reg. Для promhttp.Handler() передаётся
// prometheus.DefaultRegisterer, в тестах отдельный prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
		logins: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Completed login attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_refresh_total",
				Help: "Refresh token exchanges by result",
			},
			[]string{"result"},
		),
		sessionRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_session_rejections_total",
				Help: "Requests rejected by the session middleware by reason",
			},
			[]string{"reason"},
		),
	}
}

// Login учитывает попытку входа через провайдера.
func (m *Metrics) Login(provider, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(provider, result).Inc()
}

// Refresh учитывает обмен refresh-токена.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// SessionRejected учитывает отказ в доступе на уровне Session-мидлвара.
func (m *Metrics) SessionRejected(reason string) {
	if m == nil {
		return
	}
	m.sessionRejections.WithLabelValues(reason).Inc()
}

// responseWriter перехватывает статус для меток.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware собирает метрики HTTP-запросов. Путь берётся из шаблона chi,
// чтобы {provider} не раздувал кардинальность.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}

		status := strconv.Itoa(rw.status)
		m.requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
