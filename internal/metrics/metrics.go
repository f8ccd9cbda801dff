// Package metrics provides Prometheus metrics for the chat service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcome labels.
const (
	StatusOK           = "ok"
	StatusShortCircuit = "short_circuit"
	StatusModelError   = "model_error"
	StatusStorageError = "storage_error"
)

// Signup and login outcome labels.
const (
	StatusInvalid  = "invalid"
	StatusTaken    = "taken"
	StatusError    = "error"
	StatusRejected = "rejected"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SignupsTotal *prometheus.CounterVec
	LoginsTotal  *prometheus.CounterVec
	SendsTotal   *prometheus.CounterVec
	ModelLatency prometheus.Histogram
}

// New creates and registers all metrics on the given registerer. Tests
// pass a fresh registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_signups_total",
				Help: "Total number of signup attempts",
			},
			[]string{"status"},
		),
		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"},
		),
		SendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_sends_total",
				Help: "Total number of chat send operations",
			},
			[]string{"status"},
		),
		ModelLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_model_latency_seconds",
				Help:    "Duration of hosted-model calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ObserveModelCall records one hosted-model round trip.
func (m *Metrics) ObserveModelCall(d time.Duration) {
	m.ModelLatency.Observe(d.Seconds())
}
