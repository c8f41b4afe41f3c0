package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dshills/durableflow/emit"
	"github.com/dshills/durableflow/journal"
)

// Func is the type-erased shape of a registered workflow function: it
// consumes and produces json.RawMessage so the Runtime can hold a single
// registry of heterogeneously-typed workflows. Register wraps a typed
// func(*Context, I) (O, error) into this shape.
type Func func(ctx *Context, input json.RawMessage) (json.RawMessage, error)

// Runtime drives workflow functions against a journal.Store, implementing
// the record/replay execution model: submit ensures Started is recorded,
// invokes the workflow function, and journals Completed or Failed
// depending on how the function returns.
type Runtime struct {
	store       journal.Store
	emitter     emit.Emitter
	metrics     Metrics
	retryPolicy AppendRetryPolicy

	mu        sync.RWMutex
	workflows map[string]Func

	driving sync.Map // workflowID string -> struct{}
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithEmitter sets the event emitter used for workflow/side-effect
// lifecycle events. Defaults to emit.NewNullEmitter().
func WithEmitter(e emit.Emitter) Option {
	return func(r *Runtime) { r.emitter = e }
}

// WithMetrics sets the Metrics sink. Defaults to NewNoopMetrics().
func WithMetrics(m Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithAppendRetryPolicy overrides DefaultAppendRetryPolicy for journal
// append retries.
func WithAppendRetryPolicy(p AppendRetryPolicy) Option {
	return func(r *Runtime) { r.retryPolicy = p }
}

// New constructs a Runtime backed by store.
func New(store journal.Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:       store,
		emitter:     emit.NewNullEmitter(),
		metrics:     NewNoopMetrics(),
		retryPolicy: DefaultAppendRetryPolicy(),
		workflows:   make(map[string]Func),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds workflowName to fn. Register[I, O] wraps the typed
// function in a Func that unmarshals input_blob into I and marshals the
// returned O into output_blob, per SPEC_FULL.md §6's codec pairing.
// Workflow names must be consistent across every node in a cluster for
// the same logical workflow.
func Register[I, O any](r *Runtime, workflowName string, fn func(*Context, I) (O, error)) {
	wrapped := func(c *Context, raw json.RawMessage) (json.RawMessage, error) {
		var input I
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, fmt.Errorf("runtime: decode input for %q: %w", workflowName, err)
			}
		}
		output, err := fn(c, input)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(output)
		if err != nil {
			return nil, fmt.Errorf("runtime: encode output for %q: %w", workflowName, err)
		}
		return payload, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[workflowName] = wrapped
}

// Submit drives workflowID, starting it if this is the first call. If the
// workflow is already terminal, the recorded terminal Outcome is returned
// without re-invoking anything. Returns ErrWorkflowUnknown if workflowName
// has no registered Func, and ErrAlreadyDriving if another goroutine is
// concurrently driving the same workflowID.
func (r *Runtime) Submit(ctx context.Context, workflowName, workflowID string, input json.RawMessage) (Outcome, error) {
	return r.drive(ctx, workflowName, workflowID, input, true)
}

// Resume re-drives an already-started workflowID from its journal,
// re-invoking the workflow function from scratch (replaying every
// SideEffect against its cached result). It does not accept new input;
// the original Started event's payload is reused.
func (r *Runtime) Resume(ctx context.Context, workflowName, workflowID string) (Outcome, error) {
	return r.drive(ctx, workflowName, workflowID, nil, false)
}

func (r *Runtime) drive(ctx context.Context, workflowName, workflowID string, input json.RawMessage, allowStart bool) (Outcome, error) {
	r.mu.RLock()
	fn, ok := r.workflows[workflowName]
	r.mu.RUnlock()
	if !ok {
		return Outcome{}, ErrWorkflowUnknown
	}

	if status, err := r.store.TerminalStatus(ctx, workflowID); err != nil {
		return Outcome{}, err
	} else if status != nil {
		return terminalOutcome(status), nil
	}

	if _, already := r.driving.LoadOrStore(workflowID, struct{}{}); already {
		return Outcome{}, ErrAlreadyDriving
	}
	defer r.driving.Delete(workflowID)

	if r.metrics != nil {
		r.metrics.SetWorkflowsRunning(1)
		defer r.metrics.SetWorkflowsRunning(-1)
	}

	events, err := r.store.Load(ctx, workflowID)
	if err != nil {
		return Outcome{}, err
	}

	startedInput := input
	if len(events) == 0 {
		if !allowStart {
			return Outcome{}, fmt.Errorf("runtime: workflow %q not started", workflowID)
		}
		if err := r.store.Append(ctx, workflowID, journal.Event{Kind: journal.EventStarted, Payload: input}); err != nil {
			return Outcome{}, err
		}
		r.emitter.Emit(emit.Event{WorkflowID: workflowID, Source: workflowName, Msg: "workflow_started"})
	} else {
		startedInput = events[0].Payload
	}

	workflowCtx := &Context{
		ctx:          ctx,
		workflowID:   workflowID,
		workflowName: workflowName,
		store:        r.store,
		emitter:      r.emitter,
		metrics:      r.metrics,
		retryPolicy:  r.retryPolicy,
	}

	output, runErr := fn(workflowCtx, startedInput)
	if runErr == nil {
		if err := r.store.Append(ctx, workflowID, journal.Event{Kind: journal.EventCompleted, Payload: output}); err != nil {
			return Outcome{}, err
		}
		r.emitter.Emit(emit.Event{WorkflowID: workflowID, Source: workflowName, Msg: "workflow_completed"})
		return Outcome{Kind: Completed, Output: output}, nil
	}

	if runErr == ErrWorkflowStalled {
		return Outcome{Kind: Pending}, nil
	}

	if Classify(runErr) {
		// Retryable: leave Running, nothing journaled, next drive retries.
		return Outcome{Kind: Pending}, nil
	}

	errorKind := fmt.Sprintf("%T", runErr)
	message := runErr.Error()
	if err := r.store.Append(ctx, workflowID, journal.Event{
		Kind:      journal.EventFailed,
		ErrorKind: errorKind,
		Message:   message,
	}); err != nil {
		return Outcome{}, err
	}
	r.emitter.Emit(emit.Event{WorkflowID: workflowID, Source: workflowName, Msg: "workflow_failed"})
	return Outcome{Kind: Failed, ErrorKind: errorKind, Message: message}, nil
}

func terminalOutcome(status *journal.TerminalStatus) Outcome {
	switch status.Kind {
	case journal.TerminalCompleted:
		return Outcome{Kind: Completed, Output: status.Output}
	case journal.TerminalFailed:
		return Outcome{Kind: Failed, ErrorKind: status.ErrorKind, Message: status.Message}
	default:
		return Outcome{Kind: Pending}
	}
}
