package emit

import "context"

// Emitter receives and processes observability events from the runtime and
// cluster components.
//
// Implementations should be non-blocking and thread-safe: Emit may be called
// concurrently from the goroutines driving different workflows. Emit must
// never panic.
type Emitter interface {
	// Emit sends a single observability event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving order.
	// Returns error only on catastrophic failures; individual event
	// delivery failures should be logged internally, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered or ctx expires.
	// Safe to call multiple times.
	Flush(ctx context.Context) error
}
