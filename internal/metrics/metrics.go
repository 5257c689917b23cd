// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access metrics
	GateDecisionsTotal      *prometheus.CounterVec
	MagicLinksIssuedTotal   *prometheus.CounterVec
	MagicLinksConsumedTotal *prometheus.CounterVec
	ThrottleDenialsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on registry, plus the Go and
// process collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutorhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorhub_gate_decisions_total",
				Help: "Authorization gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		MagicLinksIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorhub_magic_links_issued_total",
				Help: "Magic link requests by outcome",
			},
			[]string{"outcome"},
		),
		MagicLinksConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorhub_magic_links_consumed_total",
				Help: "Magic link redemptions by result",
			},
			[]string{"result"},
		),
		ThrottleDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutorhub_throttle_denials_total",
				Help: "Throttled attempts by scope",
			},
			[]string{"scope"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateDecisionsTotal,
		m.MagicLinksIssuedTotal,
		m.MagicLinksConsumedTotal,
		m.ThrottleDenialsTotal,
	)
	return m
}

// GateDecision implements auth.GateObserver.
func (m *Metrics) GateDecision(outcome string) {
	m.GateDecisionsTotal.WithLabelValues(outcome).Inc()
}

// MagicLinkIssued, MagicLinkConsumed and ThrottleDenied implement magiclink.Observer.
func (m *Metrics) MagicLinkIssued(outcome string) {
	m.MagicLinksIssuedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MagicLinkConsumed(result string) {
	m.MagicLinksConsumedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ThrottleDenied(scope string) {
	m.ThrottleDenialsTotal.WithLabelValues(scope).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments a handler. Routes are labelled by their mux
// pattern so tenant slugs and tokens never become label values.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
