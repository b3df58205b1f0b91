package ringbuffer

import (
	"log/slog"

	"github.com/c360/ringtail/metric"
)

// Option configures ring behavior using the functional options pattern.
type Option[T any] func(*ringOptions[T])

// ringOptions holds internal configuration for ring instances.
// Stats are ALWAYS collected - they are not optional.
type ringOptions[T any] struct {
	logger *slog.Logger

	// metricsReg is optional - if provided, ring stats are also exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the ring label for Prometheus metrics
	metricsPrefix string

	// keepReleased disables zeroing of slots once every tail has passed them
	keepReleased bool
}

// WithLogger sets the logger used for tail registration events.
// Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(opts *ringOptions[T]) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics export for ring statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *ringOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithKeepReleased leaves consumed values in their slots until the producer
// overwrites them. By default a slot is zeroed as soon as every tail has
// passed it, so the garbage collector can reclaim what it referenced.
func WithKeepReleased[T any]() Option[T] {
	return func(opts *ringOptions[T]) {
		opts.keepReleased = true
	}
}

func applyOptions[T any](options ...Option[T]) *ringOptions[T] {
	opts := &ringOptions[T]{
		logger: slog.Default(),
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
