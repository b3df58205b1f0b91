// Package retry provides exponential backoff for operations that report
// failure without blocking.
//
// # Overview
//
// The ring buffer never blocks: a full ring rejects Push and an empty tail
// returns nothing from Pull. Callers that want to wait do so here, with a
// Backoff that grows the delay between attempts and resets once work shows up.
//
// # Core Types
//
//   - Backoff: a single retry sequence (Next, Wait, Reset)
//   - Do: run fn with backoff until success, non-retryable error, attempt limit or ctx done
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Poll(): unlimited attempts, 100µs-10ms delay, for idle tail polling
//
// # Usage
//
// Producer waiting for the slowest tail to free a slot:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    if !ring.Push(v) {
//	        return errors.ErrRingFull
//	    }
//	    return nil
//	})
//
// Consumer idling on an empty tail:
//
//	backoff := retry.NewBackoff(retry.Poll())
//	for {
//	    if items := ring.PullAll(id); len(items) > 0 {
//	        backoff.Reset()
//	        handle(items)
//	        continue
//	    }
//	    if err := backoff.Wait(ctx); err != nil {
//	        return err
//	    }
//	}
//
// Wrap an error with NonRetryable to stop Do immediately.
package retry
