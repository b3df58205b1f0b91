package health

import "fmt"

// RingView is the read-only view of a ring needed to judge its health.
type RingView interface {
	Size() int
	MaxSize() int
	IsFull() bool
	TailCount() int
	MaxLag() int
}

// RingStatus classifies a ring from the producer's point of view:
//   - unhealthy: the ring is full, so the next push will be rejected
//   - degraded: no tail is registered (the producer stalls once the ring
//     fills), or utilization is at or above degradedAt
//   - healthy otherwise
//
// degradedAt is a fraction of usable capacity; values outside (0, 1] disable
// the utilization check.
func RingStatus(component string, ring RingView, degradedAt float64) Status {
	usable := ring.MaxSize() - 1
	size := ring.Size()
	tails := ring.TailCount()

	utilization := 0.0
	if usable > 0 {
		utilization = float64(size) / float64(usable)
	}

	metrics := &Metrics{
		Occupancy:   size,
		Capacity:    usable,
		Utilization: utilization,
		Tails:       tails,
		MaxLag:      ring.MaxLag(),
	}

	var status Status
	switch {
	case ring.IsFull():
		status = NewUnhealthy(component,
			fmt.Sprintf("ring full (%d/%d), slowest tail is holding the producer", size, usable))
	case tails == 0:
		status = NewDegraded(component, "no tails registered, producer will stall once the ring fills")
	case degradedAt > 0 && degradedAt <= 1 && utilization >= degradedAt:
		status = NewDegraded(component,
			fmt.Sprintf("ring utilization %.0f%% at or above %.0f%%", utilization*100, degradedAt*100))
	default:
		status = NewHealthy(component, fmt.Sprintf("%d tails, %d/%d slots in use", tails, size, usable))
	}

	return status.WithMetrics(metrics)
}
