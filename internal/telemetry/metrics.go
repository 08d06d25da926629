package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the proxy's Prometheus collectors.
type Metrics struct {
	RequestTotal          *prometheus.CounterVec
	RequestDurationMs     *prometheus.HistogramVec
	UpstreamAttemptsTotal *prometheus.CounterVec
	RetriesTotal          *prometheus.CounterVec
	RateLimitedTotal      prometheus.Counter
	InFlight              prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modelproxy_request_total",
			Help: "Chat completion requests by model, provider and final status.",
		}, []string{"model", "provider", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modelproxy_request_duration_ms",
			Help:    "Time until the response was fully written, in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"model", "provider"}),

		UpstreamAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modelproxy_upstream_attempts_total",
			Help: "Upstream calls by provider and outcome (ok, rejected, server_error, transport_error).",
		}, []string{"provider", "outcome"}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modelproxy_retries_total",
			Help: "Backoff sleeps taken before another upstream attempt.",
		}, []string{"provider"}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "modelproxy_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "modelproxy_in_flight_requests",
			Help: "Chat completion requests currently being served.",
		}),
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Model      string
	Provider   string
	Status     string
	DurationMs float64
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(labels.Model, labels.Provider, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Model, labels.Provider).Observe(labels.DurationMs)
}

// RecordAttempt counts one upstream call.
func (m *Metrics) RecordAttempt(provider, outcome string) {
	m.UpstreamAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordRetry counts one backoff before a retry.
func (m *Metrics) RecordRetry(provider string) {
	m.RetriesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}
