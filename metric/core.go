package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the metrics shared by every ring user: producers, tail
// readers and health checks. Ring internals register their own collectors
// per instance.
type Metrics struct {
	// Tail reader metrics
	ReaderStatus    *prometheus.GaugeVec
	ReaderItems     *prometheus.CounterVec
	ReaderErrors    *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec

	// Producer metrics
	ProducerPushes *prometheus.CounterVec

	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ReaderStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ringtail",
				Subsystem: "reader",
				Name:      "status",
				Help:      "Tail reader status (0=stopped, 1=running)",
			},
			[]string{"reader"},
		),

		ReaderItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringtail",
				Subsystem: "reader",
				Name:      "items_total",
				Help:      "Total number of items delivered to reader handlers",
			},
			[]string{"reader"},
		),

		ReaderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringtail",
				Subsystem: "reader",
				Name:      "handler_errors_total",
				Help:      "Total number of handler errors",
			},
			[]string{"reader"},
		),

		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ringtail",
				Subsystem: "reader",
				Name:      "handler_duration_seconds",
				Help:      "Handler duration per delivery in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"reader"},
		),

		ProducerPushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringtail",
				Subsystem: "producer",
				Name:      "pushes_total",
				Help:      "Total number of producer push attempts by result (accepted, full, dropped)",
			},
			[]string{"producer", "result"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ringtail",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=degraded, 2=healthy)",
			},
			[]string{"component"},
		),
	}
}

func (c *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.ReaderStatus,
		c.ReaderItems,
		c.ReaderErrors,
		c.HandlerDuration,
		c.ProducerPushes,
		c.HealthCheckStatus,
	)
}

// RecordReaderStatus marks a reader as running or stopped
func (c *Metrics) RecordReaderStatus(reader string, running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	c.ReaderStatus.WithLabelValues(reader).Set(value)
}

// RecordDelivery records one handler invocation covering n items
func (c *Metrics) RecordDelivery(reader string, n int, duration time.Duration, err error) {
	c.ReaderItems.WithLabelValues(reader).Add(float64(n))
	c.HandlerDuration.WithLabelValues(reader).Observe(duration.Seconds())
	if err != nil {
		c.ReaderErrors.WithLabelValues(reader).Inc()
	}
}

// RecordPush increments the producer push counter for result
func (c *Metrics) RecordPush(producer, result string) {
	c.ProducerPushes.WithLabelValues(producer, result).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component, status string) {
	value := 0.0
	switch status {
	case "healthy":
		value = 2.0
	case "degraded":
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}
