// Package errors provides standardized error handling patterns for ringtail components.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or configuration, do not retry) and Fatal (unrecoverable, stop
// processing).
//
// The ring buffer hot path does not return errors at all: Push reports a full
// ring with false and Pull reports an empty tail with ok=false. Errors appear
// at the edges, in constructors, metric registration, configuration loading
// and the retrying producer helper.
//
// # Quick Start
//
// Wrap errors with context:
//
//	if err := registry.RegisterCounter(prefix, "pushes", c); err != nil {
//	    return errors.WrapTransient(err, "MultiTail", "New", "metrics registration")
//	}
//
// Check classification:
//
//	if err := ringbuffer.PushContext(ctx, ring, v, cfg); err != nil {
//	    if errors.IsTransient(err) {
//	        // ring stayed full, drop or try again later
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows "component.method: action failed: %w" so that the
// originating component and operation appear in logs. Classified errors keep
// the wrapped chain intact, so errors.Is and errors.As work through them.
package errors
