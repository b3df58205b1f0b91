// Package ringtail provides a bounded, single-producer, multi-consumer ring
// buffer in which every consumer reads the full stream at its own pace.
//
// # Philosophy: One Writer, Many Independent Readers
//
// A ringtail ring has exactly one producer and any number of tails. Each tail
// is an independent read cursor: consuming an item on one tail never hides it
// from another. A slot is only reclaimed once every registered tail has moved
// past it, so the slowest tail throttles the producer instead of losing data.
//
// Ringtail MUST NOT:
//   - Block the producer (Push returns false when the ring is full)
//   - Let one tail's progress affect what another tail observes
//   - Drop data that some registered tail has not consumed yet
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│           Producer                  │  Push (lock-free),
//	│   (ringbuffer.PushContext)          │  backoff while full
//	└─────────────────────────────────────┘
//	           ↓ writes at head
//	┌─────────────────────────────────────┐
//	│      ringbuffer.MultiTail[T]        │  Slots, head, converged
//	│  (tails, convergence, statistics)   │  tail, per-tail cursors
//	└─────────────────────────────────────┘
//	           ↓ read by
//	┌─────────────────────────────────────┐
//	│        tailreader.Reader[T]         │  Single or batch delivery,
//	│   (one tail per reader session)     │  polling backoff, leave-after
//	└─────────────────────────────────────┘
//
// # Core Packages
//
// Ring buffer:
//   - pkg/ringbuffer: MultiTail ring, tails, convergence, statistics, metrics
//   - pkg/tailreader: Polling consumer that owns one tail for its lifetime
//   - pkg/retry: Exponential backoff shared by producers and readers
//
// Infrastructure:
//   - config: Layered JSON/YAML configuration with environment overrides
//   - errors: Classified errors (transient, invalid, fatal)
//   - health: Ring health checks and aggregation
//   - metric: Prometheus registry, core metrics and HTTP server
//
// # Quick Start
//
//	ring, err := ringbuffer.NewMultiTail[string](1024)
//	if err != nil {
//		return err
//	}
//
//	tail := ring.AddTail()
//	defer ring.RemoveTail(tail)
//
//	ring.Push("hello")
//	if v, ok := ring.Pull(tail); ok {
//		fmt.Println(v)
//	}
//
// The cmd/ringtail binary runs a configurable producer and set of tail readers
// against one ring and exposes its metrics and health over HTTP.
package ringtail
