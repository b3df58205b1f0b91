package tailreader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/ringtail/errors"
	"github.com/c360/ringtail/metric"
	"github.com/c360/ringtail/pkg/retry"
	"github.com/c360/ringtail/pkg/ringbuffer"
)

// Mode selects how items are handed to the handler.
type Mode int

const (
	// ModeSingle delivers one item per handler call.
	ModeSingle Mode = iota
	// ModeBatch delivers every available item, up to BatchSize, per call.
	ModeBatch
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeBatch:
		return "batch"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "single" or "batch" (case-insensitive) to a Mode.
// An empty string means ModeSingle.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ModeSingle, nil
	case "batch":
		return ModeBatch, nil
	default:
		return ModeSingle, errors.WrapInvalid(
			fmt.Errorf("%w: unknown reader mode %q", errors.ErrInvalidConfig, s),
			"tailreader", "ParseMode", "parse mode")
	}
}

// Source is the consumer side of a ring.
type Source[T any] interface {
	ringbuffer.Consumer[T]
}

// Handler processes one delivery. Items are owned by the handler.
type Handler[T any] func(ctx context.Context, items []T) error

// Config controls a Reader.
type Config struct {
	// Name labels logs and metrics.
	Name string

	Mode Mode

	// BatchSize caps a ModeBatch delivery; 0 means everything available.
	BatchSize int

	// Poll is the idle backoff used while the tail is caught up. The zero
	// value means retry.Poll(). MaxAttempts is ignored.
	Poll retry.Config

	// LeaveAfter makes Run return once this many items were delivered;
	// 0 means run until the context is done.
	LeaveAfter int

	// StopOnError makes Run return the first handler error instead of
	// logging it and moving on.
	StopOnError bool
}

// Validate checks the reader configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tailreader", "Validate", "reader name")
	}
	if c.Mode != ModeSingle && c.Mode != ModeBatch {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tailreader", "Validate", "reader mode")
	}
	if c.BatchSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tailreader", "Validate", "negative batch size")
	}
	if c.LeaveAfter < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tailreader", "Validate", "negative leave-after")
	}
	return c.Poll.Validate()
}

// Option configures optional Reader dependencies.
type Option func(*readerOptions)

type readerOptions struct {
	logger  *slog.Logger
	metrics *metric.Metrics
}

// WithLogger sets the reader logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *readerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records reader status and deliveries in the shared metrics.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(o *readerOptions) {
		o.metrics = metrics
	}
}

// Reader drives one tail of a ring: it registers the tail, polls it with
// idle backoff and hands items to a handler until told to stop.
type Reader[T any] struct {
	cfg     Config
	source  Source[T]
	session string
	logger  *slog.Logger
	metrics *metric.Metrics

	running atomic.Bool
	tailID  atomic.Int64

	// Statistics (atomic)
	delivered  atomic.Int64
	deliveries atomic.Int64
	failed     atomic.Int64
	idle       atomic.Int64
}

// New creates a reader over source. Each reader gets a random session id
// that appears in every log line it writes.
func New[T any](source Source[T], cfg Config, options ...Option) (*Reader[T], error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "tailreader", "New", "source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Poll == (retry.Config{}) {
		cfg.Poll = retry.Poll()
	}

	opts := &readerOptions{logger: slog.Default()}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	r := &Reader[T]{
		cfg:     cfg,
		source:  source,
		session: uuid.NewString(),
		metrics: opts.metrics,
	}
	r.logger = opts.logger.With("reader", cfg.Name, "session", r.session)
	r.tailID.Store(-1)
	return r, nil
}

// Name returns the configured reader name.
func (r *Reader[T]) Name() string {
	return r.cfg.Name
}

// Session returns the reader's session id.
func (r *Reader[T]) Session() string {
	return r.session
}

// TailID returns the tail currently held by Run, if any.
func (r *Reader[T]) TailID() (ringbuffer.TailID, bool) {
	id := r.tailID.Load()
	if id < 0 {
		return 0, false
	}
	return ringbuffer.TailID(id), true
}

// IsRunning reports whether Run is active.
func (r *Reader[T]) IsRunning() bool {
	return r.running.Load()
}

// Run registers a tail and delivers items to handler until ctx is done,
// LeaveAfter items have been delivered, or (with StopOnError) the handler
// fails. The tail is always removed before Run returns. Context
// cancellation is a normal stop and returns nil.
func (r *Reader[T]) Run(ctx context.Context, handler Handler[T]) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tailreader", "Run", "handler")
	}
	if !r.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyRunning, "tailreader", "Run", "start reader")
	}
	defer r.running.Store(false)

	id := r.source.AddTail()
	r.tailID.Store(int64(id))
	logger := r.logger.With("tail_id", int(id))
	logger.Info("Tail reader started",
		"mode", r.cfg.Mode.String(),
		"batch_size", r.cfg.BatchSize,
		"leave_after", r.cfg.LeaveAfter)
	if r.metrics != nil {
		r.metrics.RecordReaderStatus(r.cfg.Name, true)
	}

	defer func() {
		r.source.RemoveTail(id)
		r.tailID.Store(-1)
		if r.metrics != nil {
			r.metrics.RecordReaderStatus(r.cfg.Name, false)
		}
		logger.Info("Tail reader stopped",
			"delivered", r.delivered.Load(),
			"failed", r.failed.Load())
	}()

	backoff := retry.NewBackoff(r.cfg.Poll)
	var received int64

	for {
		if ctx.Err() != nil {
			return nil
		}

		items := r.next(id, received)
		if len(items) == 0 {
			r.idle.Add(1)
			if err := backoff.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		backoff.Reset()

		start := time.Now()
		err := handler(ctx, items)
		duration := time.Since(start)

		received += int64(len(items))
		r.deliveries.Add(1)
		r.delivered.Add(int64(len(items)))
		if r.metrics != nil {
			r.metrics.RecordDelivery(r.cfg.Name, len(items), duration, err)
		}

		if err != nil {
			r.failed.Add(1)
			if r.cfg.StopOnError {
				logger.Error("Handler failed, stopping reader", "items", len(items), "error", err)
				return errors.Wrap(err, "tailreader", "Run", "handle items")
			}
			logger.Warn("Handler failed", "items", len(items), "error", err)
		}

		if r.cfg.LeaveAfter > 0 && received >= int64(r.cfg.LeaveAfter) {
			logger.Info("Leave-after reached", "received", received)
			return nil
		}
	}
}

// next pulls the following delivery for tail id, never past LeaveAfter.
func (r *Reader[T]) next(id ringbuffer.TailID, received int64) []T {
	if r.cfg.Mode == ModeSingle {
		v, ok := r.source.Pull(id)
		if !ok {
			return nil
		}
		return []T{v}
	}

	limit := r.cfg.BatchSize
	if r.cfg.LeaveAfter > 0 {
		remaining := r.cfg.LeaveAfter - int(received)
		if limit == 0 || remaining < limit {
			limit = remaining
		}
	}
	if limit == 0 {
		return r.source.PullAll(id)
	}
	return r.source.PullTail(id, limit)
}

// Stats returns current reader statistics.
func (r *Reader[T]) Stats() Stats {
	tail := -1
	if id, ok := r.TailID(); ok {
		tail = int(id)
	}
	return Stats{
		Name:       r.cfg.Name,
		Session:    r.session,
		TailID:     tail,
		Running:    r.IsRunning(),
		Delivered:  r.delivered.Load(),
		Deliveries: r.deliveries.Load(),
		Failed:     r.failed.Load(),
		IdlePolls:  r.idle.Load(),
	}
}

// Stats represents tail reader statistics.
type Stats struct {
	Name       string `json:"name"`
	Session    string `json:"session"`
	TailID     int    `json:"tail_id"`
	Running    bool   `json:"running"`
	Delivered  int64  `json:"delivered"`
	Deliveries int64  `json:"deliveries"`
	Failed     int64  `json:"failed"`
	IdlePolls  int64  `json:"idle_polls"`
}
