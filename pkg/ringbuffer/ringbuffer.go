package ringbuffer

import (
	"context"

	"github.com/c360/ringtail/errors"
	"github.com/c360/ringtail/pkg/retry"
)

// TailID identifies one registered consumer cursor. IDs are small
// non-negative integers, unique among registered tails and reused after
// RemoveTail.
type TailID int

// Producer is the write side of a ring. Only one goroutine may push.
type Producer[T any] interface {
	// Push enqueues value. It returns false without blocking when the ring is
	// full from the producer's point of view.
	Push(value T) bool

	// IsFull reports whether the next Push would be rejected.
	IsFull() bool
}

// Consumer is the read side of a ring. Each tail must be driven by at most
// one goroutine at a time; different tails may be used concurrently.
type Consumer[T any] interface {
	// AddTail registers a new tail positioned at the oldest retained item.
	AddTail() TailID

	// RemoveTail deregisters a tail and releases the slots it was holding.
	RemoveTail(id TailID)

	// Pull returns the next item for the tail, or false if none is available.
	Pull(id TailID) (T, bool)

	// PullTail returns up to length items for the tail, oldest first.
	PullTail(id TailID, length int) []T

	// PullAll returns every item currently available to the tail.
	PullAll(id TailID) []T

	// SizeTail returns how many items are available to the tail.
	SizeTail(id TailID) int
}

// Ring combines both sides with global sizing.
type Ring[T any] interface {
	Producer[T]
	Consumer[T]

	// Size returns the number of slots in use between the converged tail and head.
	Size() int

	// MaxSize returns the fixed slot count; usable capacity is MaxSize()-1.
	MaxSize() int

	// IsEmpty reports whether every registered tail has consumed everything.
	IsEmpty() bool

	// Stats returns ring statistics (always available for observability).
	Stats() *Statistics
}

var _ Ring[int] = (*MultiTail[int])(nil)

// TailInfo is a point-in-time view of one registered tail.
type TailInfo struct {
	ID     TailID `json:"id"`
	Cursor int    `json:"cursor"`
	Lag    int    `json:"lag"`
}

// NewMultiTail creates a ring with maxSize slots (maxSize-1 usable).
// Stats are ALWAYS collected. Metrics are optional via WithMetrics().
// Returns an invalid error when maxSize < 2 and a transient error if metrics
// registration fails.
func NewMultiTail[T any](maxSize int, options ...Option[T]) (*MultiTail[T], error) {
	opts := applyOptions(options...)
	return newMultiTail(maxSize, opts)
}

// PushContext pushes value, backing off while the ring is full. It returns
// nil once the value is accepted, a transient error wrapping
// errors.ErrRingFull when the attempt budget in cfg runs out, or the context
// error when ctx is done first.
func PushContext[T any](ctx context.Context, p Producer[T], value T, cfg retry.Config) error {
	return retry.Do(ctx, cfg, func() error {
		if p.Push(value) {
			return nil
		}
		return errors.ErrRingFull
	})
}
