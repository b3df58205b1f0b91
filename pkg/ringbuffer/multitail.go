package ringbuffer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/c360/ringtail/errors"
)

// tailCursor is one consumer's read position. Only the owning consumer
// stores to pos; convergence and introspection load it.
type tailCursor struct {
	pos atomic.Uint64
	_   cpu.CacheLinePad
}

// tailTable is an immutable snapshot of the registry. Index is the TailID,
// nil marks a free id. A new table is published on every add or remove so
// the pull path can look cursors up without the registry lock.
type tailTable struct {
	cursors []*tailCursor
	count   int
}

// MultiTail is a fixed-size circular buffer with one producer and any number
// of tails. The producer may only reuse a slot once every registered tail has
// moved past it; that boundary is the converged tail.
//
// With no tails registered the converged tail stays where it was, so data
// already pushed is kept for the next tail to register, and the producer
// stops at the old boundary once the ring wraps.
type MultiTail[T any] struct {
	_ cpu.CacheLinePad
	// head is the next slot the producer writes. Written only by Push.
	head atomic.Uint64
	_    cpu.CacheLinePad
	// converged is the oldest slot any tail still needs. Written only under mu.
	converged atomic.Uint64
	_         cpu.CacheLinePad

	maxSize uint64
	slots   []T

	// mu serializes registration, removal and convergence.
	mu    sync.Mutex
	tails atomic.Pointer[tailTable]

	stats   *Statistics
	metrics *ringMetrics
	logger  *slog.Logger
	opts    *ringOptions[T]
}

func newMultiTail[T any](maxSize int, opts *ringOptions[T]) (*MultiTail[T], error) {
	if maxSize < 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidCapacity, "MultiTail", "New", "validate capacity")
	}

	r := &MultiTail[T]{
		maxSize: uint64(maxSize),
		slots:   make([]T, maxSize),
		stats:   NewStatistics(),
		logger:  opts.logger,
		opts:    opts,
	}
	r.tails.Store(&tailTable{})

	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		metrics, err := newRingMetrics(opts.metricsReg, opts.metricsPrefix, r)
		if err != nil {
			return nil, errors.WrapTransient(err, "MultiTail", "New", "metrics registration")
		}
		r.metrics = metrics
	}

	return r, nil
}

// distance is the wrap-aware number of slots from tail forward to head.
func (r *MultiTail[T]) distance(head, tail uint64) uint64 {
	if head < tail {
		return r.maxSize - tail + head
	}
	return head - tail
}

func (r *MultiTail[T]) wrap(pos uint64) uint64 {
	if pos >= r.maxSize {
		return pos - r.maxSize
	}
	return pos
}

// Push writes value at head and publishes the new head. It returns false if
// advancing head would land on the converged tail. Push must only be called
// from a single goroutine.
func (r *MultiTail[T]) Push(value T) bool {
	head := r.head.Load()
	next := r.wrap(head + 1)
	converged := r.converged.Load()

	if next == converged {
		r.stats.Reject()
		if r.metrics != nil {
			r.metrics.recordReject()
		}
		return false
	}

	r.slots[head] = value
	r.head.Store(next)

	r.stats.Push(int64(r.distance(next, converged)))
	if r.metrics != nil {
		r.metrics.recordPush()
	}
	return true
}

// cursor returns the registered cursor for id, or nil.
func (r *MultiTail[T]) cursor(id TailID) *tailCursor {
	table := r.tails.Load()
	if id < 0 || int(id) >= len(table.cursors) {
		return nil
	}
	return table.cursors[id]
}

// Pull copies out the next item for tail id and advances its cursor.
// It returns false if the tail has caught up with head or id is not registered.
func (r *MultiTail[T]) Pull(id TailID) (T, bool) {
	var zero T

	c := r.cursor(id)
	if c == nil {
		return zero, false
	}

	tail := c.pos.Load()
	if tail == r.head.Load() {
		r.stats.EmptyPull()
		return zero, false
	}

	value := r.slots[tail]
	c.pos.Store(r.wrap(tail + 1))

	r.stats.Pull(1)
	if r.metrics != nil {
		r.metrics.recordPull(1)
	}

	r.converge()
	return value, true
}

// PullTail copies out up to length items for tail id, oldest first, and
// advances its cursor past them. Requests beyond SizeTail(id) are clamped.
// It returns nil when nothing is available.
func (r *MultiTail[T]) PullTail(id TailID, length int) []T {
	c := r.cursor(id)
	if c == nil || length <= 0 {
		return nil
	}

	tail := c.pos.Load()
	available := r.distance(r.head.Load(), tail)
	n := uint64(length)
	if n > available {
		n = available
	}
	if n == 0 {
		r.stats.EmptyPull()
		return nil
	}

	out := make([]T, n)
	first := copy(out, r.slots[tail:min(tail+n, r.maxSize)])
	copy(out[first:], r.slots)
	c.pos.Store(r.wrap(tail + n))

	r.stats.Pull(int64(n))
	if r.metrics != nil {
		r.metrics.recordPull(int(n))
	}

	r.converge()
	return out
}

// PullAll drains every item currently available to tail id.
func (r *MultiTail[T]) PullAll(id TailID) []T {
	return r.PullTail(id, r.SizeTail(id))
}

// SizeTail returns the number of items available to tail id; 0 for an
// unknown id.
func (r *MultiTail[T]) SizeTail(id TailID) int {
	c := r.cursor(id)
	if c == nil {
		return 0
	}
	return int(r.distance(r.head.Load(), c.pos.Load()))
}

// Size returns the number of slots held between the converged tail and head.
func (r *MultiTail[T]) Size() int {
	return int(r.distance(r.head.Load(), r.converged.Load()))
}

// MaxSize returns the fixed slot count.
func (r *MultiTail[T]) MaxSize() int {
	return int(r.maxSize)
}

// IsFull reports whether the next Push would be rejected.
func (r *MultiTail[T]) IsFull() bool {
	return r.wrap(r.head.Load()+1) == r.converged.Load()
}

// IsEmpty reports whether the converged tail has caught up with head.
func (r *MultiTail[T]) IsEmpty() bool {
	return r.converged.Load() == r.head.Load()
}

// Stats returns ring statistics (always available for observability).
func (r *MultiTail[T]) Stats() *Statistics {
	return r.stats
}

// Head returns the producer's next write position.
func (r *MultiTail[T]) Head() int {
	return int(r.head.Load())
}

// ConvergedTail returns the oldest position still held for some tail.
func (r *MultiTail[T]) ConvergedTail() int {
	return int(r.converged.Load())
}

// AddTail registers a new tail at the converged tail, so it sees every item
// that is still retained. The smallest free id is returned.
func (r *MultiTail[T]) AddTail() TailID {
	r.mu.Lock()

	old := r.tails.Load()

	id := TailID(len(old.cursors))
	for i, c := range old.cursors {
		if c == nil {
			id = TailID(i)
			break
		}
	}

	size := len(old.cursors)
	if int(id) == size {
		size++
	}
	cursors := make([]*tailCursor, size)
	copy(cursors, old.cursors)

	c := &tailCursor{}
	start := r.converged.Load()
	c.pos.Store(start)
	cursors[id] = c

	r.tails.Store(&tailTable{cursors: cursors, count: old.count + 1})
	r.mu.Unlock()

	r.stats.TailAdded()
	r.logger.Debug("Tail registered",
		"tail_id", int(id),
		"cursor", start,
		"head", r.head.Load(),
		"tails", old.count+1)

	return id
}

// RemoveTail deregisters tail id and recomputes the converged tail so slots
// held only for it can be reused. Unknown ids are ignored.
func (r *MultiTail[T]) RemoveTail(id TailID) {
	r.mu.Lock()

	old := r.tails.Load()
	if id < 0 || int(id) >= len(old.cursors) || old.cursors[id] == nil {
		r.mu.Unlock()
		return
	}

	end := len(old.cursors)
	if int(id) == end-1 {
		end--
		for end > 0 && old.cursors[end-1] == nil {
			end--
		}
	}
	cursors := make([]*tailCursor, end)
	copy(cursors, old.cursors[:end])
	if int(id) < end {
		cursors[id] = nil
	}

	cursor := old.cursors[id].pos.Load()
	r.tails.Store(&tailTable{cursors: cursors, count: old.count - 1})
	r.convergeLocked()
	converged := r.converged.Load()
	r.mu.Unlock()

	r.stats.TailRemoved()
	r.logger.Debug("Tail removed",
		"tail_id", int(id),
		"cursor", cursor,
		"converged", converged,
		"tails", old.count-1)
}

func (r *MultiTail[T]) converge() {
	r.mu.Lock()
	r.convergeLocked()
	r.mu.Unlock()
}

// convergeLocked moves the converged tail up to the tail furthest behind
// head. If any tail still sits on the converged tail nothing can move. With
// no tails the converged tail is left where it is. Caller holds mu.
func (r *MultiTail[T]) convergeLocked() {
	table := r.tails.Load()
	if table.count == 0 {
		return
	}

	converged := r.converged.Load()
	lowest := ^uint64(0)

	for _, c := range table.cursors {
		if c == nil {
			continue
		}
		pos := c.pos.Load()
		if pos == converged {
			return
		}
		// unwrap so every cursor compares as converged <= pos
		if pos < converged {
			pos += r.maxSize
		}
		if pos < lowest {
			lowest = pos
		}
	}

	released := lowest - converged
	if !r.opts.keepReleased {
		r.release(converged, released)
	}

	r.converged.Store(r.wrap(lowest))

	r.stats.Advance(int64(released))
	if r.metrics != nil {
		r.metrics.recordAdvance(int(released))
	}
}

// release zeroes n slots starting at from. Every tail has passed them and
// the producer cannot reach them until the converged tail is published.
func (r *MultiTail[T]) release(from, n uint64) {
	end := from + n
	if end <= r.maxSize {
		clear(r.slots[from:end])
		return
	}
	clear(r.slots[from:])
	clear(r.slots[:end-r.maxSize])
}

// TailCount returns the number of registered tails.
func (r *MultiTail[T]) TailCount() int {
	return r.tails.Load().count
}

// Tails returns a snapshot of every registered tail ordered by id. It holds
// the registry lock, so no convergence or registration change interleaves
// with the scan.
func (r *MultiTail[T]) Tails() []TailInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.tails.Load()

	// Cursors are read before head so no cursor is ahead of it.
	infos := make([]TailInfo, 0, table.count)
	for i, c := range table.cursors {
		if c == nil {
			continue
		}
		infos = append(infos, TailInfo{ID: TailID(i), Cursor: int(c.pos.Load())})
	}

	head := r.head.Load()
	for i := range infos {
		infos[i].Lag = int(r.distance(head, uint64(infos[i].Cursor)))
	}
	return infos
}

// MaxLag returns the largest number of unread items across all tails,
// scanned under the registry lock.
func (r *MultiTail[T]) MaxLag() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.tails.Load()
	positions := make([]uint64, 0, table.count)
	for _, c := range table.cursors {
		if c != nil {
			positions = append(positions, c.pos.Load())
		}
	}

	head := r.head.Load()
	lag := uint64(0)
	for _, pos := range positions {
		if d := r.distance(head, pos); d > lag {
			lag = d
		}
	}
	return int(lag)
}
