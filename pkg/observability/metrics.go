package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow
	LoginsTotal           *prometheus.CounterVec
	OIDCDiscoveryTotal    *prometheus.CounterVec
	LoginRateLimitedTotal prometheus.Counter

	// Authorization
	AuthzDenialsTotal *prometheus.CounterVec

	// Audit sink
	AuditRecordsTotal *prometheus.CounterVec
	AuditQueueDepth   prometheus.Gauge

	// Sessions
	SessionsPurgedTotal prometheus.Counter
}

// Outcome label values shared by the counters above
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDropped = "dropped"
)

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockroom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_logins_total",
				Help: "Login callbacks by outcome",
			},
			[]string{"outcome"},
		),
		OIDCDiscoveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_oidc_discovery_total",
				Help: "OIDC discovery fetches by outcome",
			},
			[]string{"outcome"},
		),
		LoginRateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockroom_login_rate_limited_total",
				Help: "Login requests rejected by the rate limiter",
			},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_authz_denials_total",
				Help: "Requests rejected by the authorization middleware",
			},
			[]string{"reason"},
		),
		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_audit_records_total",
				Help: "Audit records by delivery outcome",
			},
			[]string{"outcome"},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockroom_audit_queue_depth",
				Help: "Audit records waiting to be written",
			},
		),
		SessionsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockroom_sessions_purged_total",
				Help: "Expired sessions removed by the janitor",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.OIDCDiscoveryTotal,
		m.LoginRateLimitedTotal,
		m.AuthzDenialsTotal,
		m.AuditRecordsTotal,
		m.AuditQueueDepth,
		m.SessionsPurgedTotal,
	)

	return m
}

// NewTestMetrics returns metrics registered on a private registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Routes are labelled by their
// mux path template so ids do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
