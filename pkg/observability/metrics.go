package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginAttemptsTotal   *prometheus.CounterVec
	CallbackFailsTotal   *prometheus.CounterVec
	TokenRefreshesTotal  *prometheus.CounterVec
	JWKSFetchesTotal     *prometheus.CounterVec
	IDTokenVerifyTotal   *prometheus.CounterVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cohort_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_login_attempts_total",
				Help: "Total number of login attempts by principal kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CallbackFailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_callback_failures_total",
				Help: "Total number of failed OIDC callbacks by error kind",
			},
			[]string{"kind", "error"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_token_refreshes_total",
				Help: "Total number of access token refreshes by outcome",
			},
			[]string{"outcome"},
		),
		JWKSFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_jwks_fetches_total",
				Help: "Total number of JWKS endpoint fetches by outcome",
			},
			[]string{"outcome"},
		),
		IDTokenVerifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_id_token_verifications_total",
				Help: "Total number of ID token verifications by outcome",
			},
			[]string{"outcome"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_authz_decisions_total",
				Help: "Total number of authorization decisions by outcome",
			},
			[]string{"decision"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.CallbackFailsTotal,
		m.TokenRefreshesTotal,
		m.JWKSFetchesTotal,
		m.IDTokenVerifyTotal,
		m.AuthzDecisionsTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request counting and timing.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
