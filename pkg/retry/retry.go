// Package retry provides exponential backoff for polling and retrying non-blocking operations
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/ringtail/errors"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return stderrors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (0 = unlimited for Do, bounded by ctx)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Add up to 25% randomness to each delay
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Poll returns a config suited to idle polling of a ring tail: short first
// delay, low ceiling, no attempt limit.
func Poll() Config {
	return Config{
		InitialDelay: 100 * time.Microsecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// Validate checks the config for values Backoff cannot work with.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative InitialDelay")
	}
	if c.MaxDelay < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative MaxDelay")
	}
	if c.Multiplier < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative Multiplier")
	}
	if c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "MaxDelay below InitialDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// Backoff produces successive delays for one retry sequence. It is not safe
// for concurrent use; each poller owns its own Backoff.
type Backoff struct {
	cfg     Config
	current time.Duration
	attempt int
}

// NewBackoff creates a Backoff from cfg, filling zero fields with defaults.
func NewBackoff(cfg Config) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, current: cfg.InitialDelay}
}

// Next returns the delay to wait before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	delay := b.current
	b.attempt++

	next := float64(b.current) * b.cfg.Multiplier
	if next > float64(b.cfg.MaxDelay) {
		b.current = b.cfg.MaxDelay
	} else {
		b.current = time.Duration(next)
	}

	if b.cfg.AddJitter && delay >= 4 {
		randMu.Lock()
		jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
		randMu.Unlock()
		delay += jitter
	}
	return delay
}

// Attempt returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset restarts the sequence at InitialDelay.
func (b *Backoff) Reset() {
	b.current = b.cfg.InitialDelay
	b.attempt = 0
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempt budget runs out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	backoff := NewBackoff(cfg)
	var lastErr error

	for attempt := 1; cfg.MaxAttempts <= 0 || attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts {
			break
		}

		if err := backoff.Wait(ctx); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w (last error: %v)",
				attempt+1, err, lastErr)
		}
	}

	return errors.WrapTransient(
		fmt.Errorf("%w after %d attempts: %w", errors.ErrMaxRetriesExceeded, cfg.MaxAttempts, lastErr),
		"retry", "Do", "operation")
}
