// Package emit provides event emission and observability for the durable
// runtime.
package emit

// Event represents an observability event produced while driving a workflow.
//
// The runtime emits these events:
//   - workflow started / completed / failed
//   - side effect executed / replayed
//
// The membership, ring and transport packages emit no events.
//
// Events are emitted to an Emitter which can log them, forward them to
// OpenTelemetry, or buffer them for inspection in tests.
type Event struct {
	// WorkflowID identifies the workflow run that produced this event.
	// Empty for cluster-level events (gossip, membership).
	WorkflowID string

	// Step is the sequential journal step at the time of the event.
	// Zero for events that don't correspond to a journal append.
	Step int

	// Source identifies what produced the event: a step key, a node ID,
	// or a component name ("membership", "ring", "transport").
	Source string

	// Msg is a short machine-checkable event name, e.g. "workflow_started",
	// "side_effect_replayed", "node_suspect".
	Msg string

	// Meta contains additional structured data specific to this event.
	Meta map[string]interface{}
}
