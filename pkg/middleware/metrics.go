package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorClassifier maps an error to a low-cardinality reason label.
type ErrorClassifier func(err error) string

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "scenesync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Classify names the reason of a failed event.
	// Default: every error is "internal".
	Classify ErrorClassifier
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// WithErrorClassifier sets the function that names error reasons.
func WithErrorClassifier(fn ErrorClassifier) MetricsOption {
	return func(c *MetricsConfig) {
		c.Classify = fn
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "scenesync",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
		Classify:  func(error) string { return "internal" },
	}
}

// EventMetrics holds the collectors registered by Prometheus.
type EventMetrics struct {
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	EventErrors   *prometheus.CounterVec
}

func newEventMetrics(config MetricsConfig) *EventMetrics {
	factory := promauto.With(config.Registry)

	return &EventMetrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of session events processed",
			ConstLabels: config.ConstLabels,
		}, []string{"event", "status"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"event"}),

		EventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_errors_total",
			Help:        "Total number of failed session events by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"event", "reason"}),
	}
}

// Prometheus creates middleware that records event counts, durations
// and error reasons. The collectors are registered once, when
// Prometheus is called; registering twice on the same registry panics.
func Prometheus(opts ...MetricsOption) Middleware {
	mw, _ := PrometheusWithMetrics(opts...)
	return mw
}

// PrometheusWithMetrics is Prometheus but also returns the registered
// collectors.
func PrometheusWithMetrics(opts ...MetricsOption) (Middleware, *EventMetrics) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Classify == nil {
		config.Classify = defaultMetricsConfig().Classify
	}

	m := newEventMetrics(config)

	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) error {
			label := ev.Label()
			start := time.Now()

			err := next(ctx, ev)

			m.EventDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
			status := "success"
			if err != nil {
				status = "error"
				m.EventErrors.WithLabelValues(label, config.Classify(err)).Inc()
			}
			m.EventsTotal.WithLabelValues(label, status).Inc()

			return err
		}
	}, m
}
