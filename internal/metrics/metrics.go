// Package metrics provides Prometheus instrumentation for studentauth.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the custom Prometheus metrics for studentauth.
type Metrics struct {
	registry *prometheus.Registry

	TransitionsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	HashDuration       prometheus.Histogram
}

// New creates a registry holding the Go and process collectors plus the
// custom metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studentauth_transitions_total",
				Help: "Total number of account state transitions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studentauth_notifications_total",
				Help: "Total number of notification deliveries by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studentauth_notification_queue_depth",
			Help: "Notifications waiting for delivery, sampled by the dispatcher",
		}),
		HashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studentauth_password_hash_seconds",
			Help:    "Time spent in bcrypt hash and compare calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	registry.MustRegister(m.TransitionsTotal)
	registry.MustRegister(m.NotificationsTotal)
	registry.MustRegister(m.QueueDepth)
	registry.MustRegister(m.HashDuration)

	return m
}

// RecordTransition counts the outcome of a state transition.
func (m *Metrics) RecordTransition(operation, outcome string) {
	m.TransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification counts a notification delivery attempt outcome.
func (m *Metrics) RecordNotification(kind, outcome string) {
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetQueueDepth records the current notification backlog.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// ObserveHash records the duration of one bcrypt call.
func (m *Metrics) ObserveHash(d time.Duration) {
	m.HashDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
