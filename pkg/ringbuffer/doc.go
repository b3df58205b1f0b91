// Package ringbuffer implements a fixed-capacity circular buffer with a single
// producer and a dynamic set of independent consumers called tails.
//
// # Overview
//
// A MultiTail ring fans one stream of values out to every registered tail.
// Each tail keeps its own cursor and reads at its own pace; a slot is only
// handed back to the producer once every tail has moved past it. The oldest
// slot still needed by some tail is the converged tail, and the producer can
// never overtake it.
//
// # Quick Start
//
//	ring, err := ringbuffer.NewMultiTail[int](1024)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fast := ring.AddTail()
//	slow := ring.AddTail()
//
//	ring.Push(1)
//	ring.Push(2)
//
//	v, ok := ring.Pull(fast)     // 1, true
//	batch := ring.PullAll(slow)  // [1 2]
//
// With logging and metrics:
//
//	ring, err := ringbuffer.NewMultiTail[*Event](4096,
//		ringbuffer.WithLogger[*Event](logger),
//		ringbuffer.WithMetrics[*Event](registry, "events"),
//	)
//
// # Capacity
//
// A ring created with maxSize slots holds at most maxSize-1 items. One slot
// stays empty so that head == converged always means empty and
// head+1 == converged always means full. Push on a full ring returns false
// immediately; it never blocks and never drops data a tail has not read.
// PushContext wraps Push in a retry loop for producers that prefer to wait.
//
// # Tails
//
// AddTail returns the smallest id not currently in use and positions the new
// tail at the converged tail, so a late joiner sees every item that is still
// retained. RemoveTail releases whatever the removed tail was holding back.
// Unknown ids are tolerated everywhere: reads return nothing and removal is a
// no-op.
//
// When the last tail is removed the converged tail stays where it was. The
// data already pushed is kept for the next tail to register, and the producer
// runs into the old boundary once it wraps around.
//
// # Convergence
//
// After every successful pull the ring recomputes the converged tail as the
// cursor furthest behind head. If any tail still sits on the current
// converged position nothing moves. Slots that every tail has passed are
// zeroed before the new boundary is published so the garbage collector can
// reclaim what they referenced; WithKeepReleased turns this off.
//
// # Thread Safety
//
//   - Push is lock-free and must be called from one goroutine only
//   - Pull, PullTail, PullAll and SizeTail are lock-free on the read side;
//     each tail must be driven by at most one goroutine at a time
//   - Different tails may be pulled concurrently with each other and with Push
//   - AddTail, RemoveTail and convergence serialize on one mutex
//   - Size, IsFull and IsEmpty read two atomics and are advisory under
//     concurrent use
//
// The registry of tails is an immutable table swapped atomically on every
// add or remove, so cursor lookups on the pull path never take the lock.
// Head and the converged tail sit on separate cache lines.
//
// # Observability
//
// Statistics are always collected with atomic counters and are available via
// ring.Stats(). Prometheus metrics are optional via WithMetrics(); counters
// are updated inline while occupancy, utilization, tail count and maximum lag
// are gauge funcs sampled at scrape time.
//
// Tails() and MaxLag() give a point-in-time view of every cursor, which the
// health package uses to classify a ring as healthy, degraded or unhealthy.
//
// # Performance Characteristics
//
//   - Push: O(1), no allocation
//   - Pull: O(1) plus one convergence pass over the registered tails
//   - PullTail/PullAll: O(n) copy, at most two contiguous segments
//   - AddTail/RemoveTail: O(tails) table copy
//   - Memory: maxSize * sizeof(T), allocated once
package ringbuffer
