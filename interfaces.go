package cognetivy

import "context"

// EventHook receives async notifications after an event is durably appended
// to a run's log. Multiple hooks may be registered via multiple WithEventHook
// calls. Hook methods run in goroutines and must not block indefinitely.
// Failures are logged but do not fail the originating append.
type EventHook interface {
	OnEvent(ctx context.Context, runID string, event Event) error
}

// EventHookFunc adapts a plain function to EventHook.
type EventHookFunc func(ctx context.Context, runID string, event Event) error

// OnEvent calls f.
func (f EventHookFunc) OnEvent(ctx context.Context, runID string, event Event) error {
	return f(ctx, runID, event)
}
