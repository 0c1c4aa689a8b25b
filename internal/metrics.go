package internal

import (
	"context"
	"net/http"
	"time"

	"asset-lending-api/internal/lending"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for HTTP requests and lending transitions
type Metrics struct {
	reqTotal    *prometheus.CounterVec
	reqLatency  *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	overdue     prometheus.Gauge
	registry    *prometheus.Registry
}

var _ lending.Observer = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance with a private Prometheus registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reqTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	reqLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_transitions_total",
			Help: "Lending operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lending_overdue_requests",
		Help: "Approved loans past their return date at the last sweep",
	})

	registry.MustRegister(reqTotal, reqLatency, transitions, overdue)

	return &Metrics{
		reqTotal:    reqTotal,
		reqLatency:  reqLatency,
		transitions: transitions,
		overdue:     overdue,
		registry:    registry,
	}
}

// Observe counts one lending event
func (m *Metrics) Observe(_ context.Context, e lending.Event) {
	if e.Action == lending.ActionOverdue {
		return // counted by the sweep gauge
	}
	m.transitions.WithLabelValues(string(e.Action), string(e.Outcome)).Inc()
}

// SetOverdue records the result of an overdue sweep
func (m *Metrics) SetOverdue(n int) {
	m.overdue.Set(float64(n))
}

// Middleware returns a Chi middleware that collects metrics
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Use Chi's route pattern to keep label cardinality bounded
			path := routePattern(r)

			status := http.StatusText(rw.code)
			m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
			m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns an http.Handler that serves Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func routePattern(r *http.Request) string {
	if chiCtx := chi.RouteContext(r.Context()); chiCtx != nil {
		if p := chiCtx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusRecorder captures the HTTP status code for metrics and access logs
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	return sr.ResponseWriter.Write(b)
}
