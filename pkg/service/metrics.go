package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Metrics holds all Prometheus metrics for the governance service.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram

	evaluatorCalls *prometheus.CounterVec
	ledgerRecords  prometheus.Gauge
	rateLimited    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with all service metrics registered
// on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_http_requests_total",
				Help: "Total number of HTTP requests by method, endpoint and status code",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbiter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_decisions_total",
				Help: "Total number of governance decisions by outcome",
			},
			[]string{"outcome"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbiter_decision_duration_seconds",
				Help:    "End-to-end duration of one governance decision",
				Buckets: prometheus.DefBuckets,
			},
		),

		evaluatorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiter_evaluator_calls_total",
				Help: "Total number of evaluator calls by role and status",
			},
			[]string{"role", "status"},
		),

		ledgerRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbiter_ledger_records",
				Help: "Number of records in the attestation ledger",
			},
		),

		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbiter_rate_limited_total",
				Help: "Total number of submissions rejected by the rate limiter",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.decisionsTotal,
		m.decisionDuration,
		m.evaluatorCalls,
		m.ledgerRecords,
		m.rateLimited,
	)

	return m
}

// RecordDecision records one fused governance decision.
func (m *Metrics) RecordDecision(decision *domain.GovernanceDecision, duration time.Duration) {
	m.decisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()
	m.decisionDuration.Observe(duration.Seconds())
	for _, res := range decision.Results {
		m.evaluatorCalls.WithLabelValues(string(res.Role), string(res.Status)).Inc()
	}
}

// SetLedgerRecords updates the ledger size gauge.
func (m *Metrics) SetLedgerRecords(count uint64) {
	m.ledgerRecords.Set(float64(count))
}

// RecordRateLimited records a submission rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency for every handler it wraps.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := endpointName(r.URL.Path)
		m.httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// endpointName normalizes a path to a bounded label value.
func endpointName(path string) string {
	switch path {
	case "/v1/evaluations":
		return "evaluations"
	case "/v1/evaluations/batch":
		return "evaluations_batch"
	case "/v1/audit":
		return "audit"
	case "/v1/stats":
		return "stats"
	case "/v1/verify":
		return "verify"
	case "/healthz":
		return "healthz"
	case "/metrics":
		return "metrics"
	default:
		return "unknown"
	}
}
