package ringbuffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks ring activity. Every update is a single atomic
// operation so recording never takes a lock on the push or pull path.
type Statistics struct {
	pushes       atomic.Int64
	rejects      atomic.Int64
	pulled       atomic.Int64
	pullCalls    atomic.Int64
	emptyPulls   atomic.Int64
	tailsAdded   atomic.Int64
	tailsRemoved atomic.Int64
	advances     atomic.Int64
	released     atomic.Int64
	peak         atomic.Int64

	startTime atomic.Int64 // unix nanoseconds
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.startTime.Store(time.Now().UnixNano())
	return s
}

// Push records an accepted push and the occupancy right after it.
func (s *Statistics) Push(occupancy int64) {
	s.pushes.Add(1)
	for {
		peak := s.peak.Load()
		if occupancy <= peak || s.peak.CompareAndSwap(peak, occupancy) {
			return
		}
	}
}

// Reject records a push refused because the ring was full.
func (s *Statistics) Reject() {
	s.rejects.Add(1)
}

// Pull records one successful pull call that returned n items.
func (s *Statistics) Pull(n int64) {
	s.pullCalls.Add(1)
	s.pulled.Add(n)
}

// EmptyPull records a pull call that found nothing.
func (s *Statistics) EmptyPull() {
	s.emptyPulls.Add(1)
}

// TailAdded records a tail registration.
func (s *Statistics) TailAdded() {
	s.tailsAdded.Add(1)
}

// TailRemoved records a tail removal.
func (s *Statistics) TailRemoved() {
	s.tailsRemoved.Add(1)
}

// Advance records the converged tail moving forward by n slots.
func (s *Statistics) Advance(n int64) {
	s.advances.Add(1)
	s.released.Add(n)
}

// Pushes returns the number of accepted pushes.
func (s *Statistics) Pushes() int64 { return s.pushes.Load() }

// Rejects returns the number of pushes refused because the ring was full.
func (s *Statistics) Rejects() int64 { return s.rejects.Load() }

// Pulled returns the total number of items handed to tails.
func (s *Statistics) Pulled() int64 { return s.pulled.Load() }

// PullCalls returns the number of pull calls that returned at least one item.
func (s *Statistics) PullCalls() int64 { return s.pullCalls.Load() }

// EmptyPulls returns the number of pull calls that found nothing.
func (s *Statistics) EmptyPulls() int64 { return s.emptyPulls.Load() }

// TailsAdded returns the number of tail registrations.
func (s *Statistics) TailsAdded() int64 { return s.tailsAdded.Load() }

// TailsRemoved returns the number of tail removals.
func (s *Statistics) TailsRemoved() int64 { return s.tailsRemoved.Load() }

// Advances returns how many times the converged tail moved.
func (s *Statistics) Advances() int64 { return s.advances.Load() }

// Released returns the total number of slots handed back to the producer.
func (s *Statistics) Released() int64 { return s.released.Load() }

// PeakOccupancy returns the highest occupancy observed after a push.
func (s *Statistics) PeakOccupancy() int64 { return s.peak.Load() }

// Uptime returns how long the statistics have been collecting.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(time.Unix(0, s.startTime.Load()))
}

// Throughput returns the average number of accepted pushes per second.
func (s *Statistics) Throughput() float64 {
	elapsed := s.Uptime()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(s.Pushes()) / elapsed.Seconds()
}

// RejectRate returns the fraction of push attempts that were rejected (0.0 to 1.0).
func (s *Statistics) RejectRate() float64 {
	rejects := s.Rejects()
	attempts := s.Pushes() + rejects
	if attempts == 0 {
		return 0.0
	}
	return float64(rejects) / float64(attempts)
}

// Reset sets all counters back to zero and restarts the uptime clock.
func (s *Statistics) Reset() {
	s.pushes.Store(0)
	s.rejects.Store(0)
	s.pulled.Store(0)
	s.pullCalls.Store(0)
	s.emptyPulls.Store(0)
	s.tailsAdded.Store(0)
	s.tailsRemoved.Store(0)
	s.advances.Store(0)
	s.released.Store(0)
	s.peak.Store(0)
	s.startTime.Store(time.Now().UnixNano())
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Pushes        int64         `json:"pushes"`
	Rejects       int64         `json:"rejects"`
	Pulled        int64         `json:"pulled"`
	PullCalls     int64         `json:"pull_calls"`
	EmptyPulls    int64         `json:"empty_pulls"`
	TailsAdded    int64         `json:"tails_added"`
	TailsRemoved  int64         `json:"tails_removed"`
	Advances      int64         `json:"advances"`
	Released      int64         `json:"released"`
	PeakOccupancy int64         `json:"peak_occupancy"`
	Throughput    float64       `json:"throughput"`
	RejectRate    float64       `json:"reject_rate"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Pushes:        s.Pushes(),
		Rejects:       s.Rejects(),
		Pulled:        s.Pulled(),
		PullCalls:     s.PullCalls(),
		EmptyPulls:    s.EmptyPulls(),
		TailsAdded:    s.TailsAdded(),
		TailsRemoved:  s.TailsRemoved(),
		Advances:      s.Advances(),
		Released:      s.Released(),
		PeakOccupancy: s.PeakOccupancy(),
		Throughput:    s.Throughput(),
		RejectRate:    s.RejectRate(),
		Uptime:        s.Uptime(),
	}
}
