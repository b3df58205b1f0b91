package ringbuffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ringtail/metric"
)

// ringView is what the scrape-time gauges sample.
type ringView interface {
	Size() int
	MaxSize() int
	TailCount() int
	MaxLag() int
}

// ringMetrics holds Prometheus metrics for ring operations. Counters are
// incremented inline; occupancy figures are gauge funcs sampled at scrape
// time so the hot path never touches them.
type ringMetrics struct {
	pushes   prometheus.Counter
	rejects  prometheus.Counter
	pulled   prometheus.Counter
	advances prometheus.Counter
	released prometheus.Counter
}

// newRingMetrics creates and registers ring metrics with the provided registry.
// If any registration fails, the entries it already added are removed again.
func newRingMetrics(registry *metric.MetricsRegistry, prefix string, view ringView) (*ringMetrics, error) {
	var registered []string
	rollback := func() {
		for _, name := range registered {
			registry.Unregister(prefix, name)
		}
	}

	labels := prometheus.Labels{"ring": prefix}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ringtail",
			Subsystem:   "ring",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(name, help string, fn func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "ringtail",
			Subsystem:   "ring",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		}, fn)
	}

	m := &ringMetrics{
		pushes:   counter("pushes_total", "Total number of accepted pushes"),
		rejects:  counter("rejected_pushes_total", "Total number of pushes rejected because the ring was full"),
		pulled:   counter("pulled_items_total", "Total number of items handed to tails"),
		advances: counter("converge_advances_total", "Total number of converged tail advances"),
		released: counter("released_slots_total", "Total number of slots released back to the producer"),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"ring_pushes", m.pushes},
		{"ring_rejected_pushes", m.rejects},
		{"ring_pulled_items", m.pulled},
		{"ring_converge_advances", m.advances},
		{"ring_released_slots", m.released},
	}
	for _, entry := range counters {
		if err := registry.RegisterCounter(prefix, entry.name, entry.c); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, entry.name)
	}

	usable := float64(view.MaxSize() - 1)
	gauges := []struct {
		name string
		g    prometheus.GaugeFunc
	}{
		{"ring_occupancy", gauge("occupancy", "Slots in use between the converged tail and head",
			func() float64 { return float64(view.Size()) })},
		{"ring_utilization", gauge("utilization", "Occupancy as a fraction of usable capacity (0.0 to 1.0)",
			func() float64 { return float64(view.Size()) / usable })},
		{"ring_tails", gauge("tails", "Number of registered tails",
			func() float64 { return float64(view.TailCount()) })},
		{"ring_max_lag", gauge("max_lag", "Unread items held for the slowest tail",
			func() float64 { return float64(view.MaxLag()) })},
		{"ring_capacity", gauge("capacity", "Usable capacity in items",
			func() float64 { return usable })},
	}
	for _, entry := range gauges {
		if err := registry.RegisterGaugeFunc(prefix, entry.name, entry.g); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, entry.name)
	}

	return m, nil
}

func (m *ringMetrics) recordPush() {
	m.pushes.Inc()
}

func (m *ringMetrics) recordReject() {
	m.rejects.Inc()
}

func (m *ringMetrics) recordPull(n int) {
	m.pulled.Add(float64(n))
}

func (m *ringMetrics) recordAdvance(n int) {
	m.advances.Inc()
	m.released.Add(float64(n))
}
