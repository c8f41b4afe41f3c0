// Package journal provides durable, ordered, per-workflow event logs for the
// durable runtime (runtime.Runtime). It implements the Journal Store
// component: atomic append, ordered load, and indexed lookups of the latest
// value for a state key and the recorded result for a side-effect step.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrStorageFull is returned by Append when the backend has no room left
// for new events (e.g. a size-bounded in-memory store, or a full disk).
var ErrStorageFull = errors.New("journal: storage full")

// ErrIOFailure is returned by Append or Load when the backend could not
// complete the operation due to an I/O error. Callers should treat this as
// transient and retry with backoff.
var ErrIOFailure = errors.New("journal: I/O failure")

// ErrAlreadyStarted is returned by Append when a Started event is appended
// for a workflow that already has one.
var ErrAlreadyStarted = errors.New("journal: workflow already started")

// ErrTerminal is returned by Append when attempting to append any event
// after a Completed or Failed event has already been recorded.
var ErrTerminal = errors.New("journal: workflow already terminal")

// ErrDuplicateStep is returned by Append when a SideEffectResult is
// appended for a step_key that already has a recorded result. The journal
// guarantees at most one SideEffectResult per step_key; see
// runtime.Context.SideEffect, which checks for an existing result before
// ever calling Append for a step.
var ErrDuplicateStep = errors.New("journal: duplicate side-effect step")

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventStarted marks the first event of a workflow run, carrying the
	// original input. Appears exactly once, and first.
	EventStarted EventKind = iota
	// EventSideEffectResult records the durable result of one named
	// sideEffect step.
	EventSideEffectResult
	// EventStateSet records a write to a named piece of workflow-local
	// state.
	EventStateSet
	// EventCompleted is the terminal event for a workflow that returned
	// normally.
	EventCompleted
	// EventFailed is the terminal event for a workflow whose function (or
	// a side effect) raised a non-retryable error.
	EventFailed
)

// String renders the event kind for logs and error messages.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "Started"
	case EventSideEffectResult:
		return "SideEffectResult"
	case EventStateSet:
		return "StateSet"
	case EventCompleted:
		return "Completed"
	case EventFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is one append-only record in a workflow's journal. Only the fields
// relevant to Kind are populated; see the EventKind constants for which
// fields apply to which variant.
type Event struct {
	// Kind tags which variant this event carries.
	Kind EventKind `json:"kind"`

	// Seq is this event's 1-indexed position within its workflow's
	// journal. Assigned by the Store on Append.
	Seq int `json:"seq"`

	// StepKey identifies the sideEffect step for EventSideEffectResult.
	StepKey string `json:"step_key,omitempty"`

	// StateKey identifies the named state slot for EventStateSet.
	StateKey string `json:"state_key,omitempty"`

	// ErrorKind classifies the failure for EventFailed. The runtime records
	// the Go type of the error here (e.g. "*runtime.nonRetryable").
	ErrorKind string `json:"error_kind,omitempty"`

	// Message is a human-readable failure description for EventFailed.
	Message string `json:"message,omitempty"`

	// Payload carries the event's value: the workflow input for Started,
	// the step result for SideEffectResult, the written value for
	// StateSet, or the workflow output for Completed.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp records when the event was appended.
	Timestamp time.Time `json:"timestamp"`
}

// TerminalKind reports whether a workflow has reached Completed or Failed,
// distinct from the full Event so callers don't need to branch on Kind for
// every other field.
type TerminalKind int

const (
	// NotTerminal means the workflow is still Running.
	NotTerminal TerminalKind = iota
	// TerminalCompleted means the workflow returned normally.
	TerminalCompleted
	// TerminalFailed means the workflow was marked Failed.
	TerminalFailed
)

// TerminalStatus describes a workflow's terminal outcome, if any.
type TerminalStatus struct {
	Kind      TerminalKind
	Output    json.RawMessage // set when Kind == TerminalCompleted
	ErrorKind string          // set when Kind == TerminalFailed
	Message   string          // set when Kind == TerminalFailed
}

// Store persists and retrieves per-workflow ordered event records, plus
// indexed random access to the latest value of each named state key and
// the existence of each step key.
//
// Append is linearizable per WorkflowId; cross-workflow ordering is
// unspecified. A successful return from Append implies the event is
// visible to the next Load on the same WorkflowId, even across process
// restart for durable backends.
type Store interface {
	// Append atomically adds event to workflowID's journal, assigning its
	// Seq and Timestamp. Returns ErrAlreadyStarted, ErrTerminal, or
	// ErrDuplicateStep if the event would violate a journal invariant;
	// ErrStorageFull or ErrIOFailure on backend failure.
	Append(ctx context.Context, workflowID string, event Event) error

	// Load returns every event recorded for workflowID, in append order.
	// Returns an empty slice (not an error) if the workflow is unknown.
	Load(ctx context.Context, workflowID string) ([]Event, error)

	// LatestState returns the most recently written value for stateKey
	// within workflowID, and whether it has ever been set.
	LatestState(ctx context.Context, workflowID, stateKey string) (value json.RawMessage, ok bool, err error)

	// StepResult returns the recorded result for stepKey within
	// workflowID, and whether it exists.
	StepResult(ctx context.Context, workflowID, stepKey string) (result json.RawMessage, ok bool, err error)

	// TerminalStatus returns the workflow's terminal outcome, or nil if
	// it is still Running (or unknown).
	TerminalStatus(ctx context.Context, workflowID string) (*TerminalStatus, error)

	// Close releases any resources held by the store (file handles,
	// connection pools). Safe to call on stores with nothing to release.
	Close() error
}
