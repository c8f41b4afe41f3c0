package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/durableflow/emit"
	"github.com/dshills/durableflow/journal"
)

// Context is passed to every workflow function. It exposes the three
// operations a workflow uses to interact with durability: sideEffect
// (via the package-level SideEffect function, since Go methods cannot
// carry their own type parameters), GetState/SetState, and WorkflowID.
type Context struct {
	ctx          context.Context
	workflowID   string
	workflowName string
	store        journal.Store
	emitter      emit.Emitter
	metrics      Metrics
	retryPolicy  AppendRetryPolicy
}

// WorkflowID returns the stable identifier of the workflow run this
// Context belongs to.
func (c *Context) WorkflowID() string { return c.workflowID }

// Context returns the underlying context.Context, for thunks that need to
// make cancellable calls.
func (c *Context) Context() context.Context { return c.ctx }

// appendWithRetry appends event to the journal, retrying transient
// failures (journal.ErrStorageFull, journal.ErrIOFailure) with bounded
// exponential backoff per c.retryPolicy. Exhaustion returns
// ErrWorkflowStalled: the workflow stays Running and the caller's drive
// attempt ends without journaling anything further.
func (c *Context) appendWithRetry(event journal.Event) error {
	policy := c.retryPolicy
	if policy.MaxAttempts < 1 {
		policy = DefaultAppendRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := c.store.Append(c.ctx, c.workflowID, event)
		if err == nil {
			return nil
		}
		if err == journal.ErrAlreadyStarted || err == journal.ErrTerminal || err == journal.ErrDuplicateStep {
			return err
		}
		lastErr = err
		if c.metrics != nil {
			c.metrics.RecordRetry(c.workflowName, "journal_append")
		}
		if attempt < policy.MaxAttempts-1 {
			delay := computeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, nil)
			select {
			case <-time.After(delay):
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}
	}
	_ = lastErr
	return ErrWorkflowStalled
}

// SideEffect is the heart of durability. If a result for stepKey is
// already recorded in the journal, thunk is not invoked and the recorded
// result is decoded and returned. Otherwise thunk runs; on success its
// result is journaled before SideEffect returns; on error, nothing is
// journaled and the error propagates (the step is retried on the next
// drive).
//
// Go cannot express this as a method of Context because methods cannot
// declare their own type parameters; it is a free function taking ctx
// explicitly, mirroring the workflowFunc(Context, Input) shape elsewhere
// in this package.
func SideEffect[T any](c *Context, stepKey string, thunk func() (T, error)) (T, error) {
	var zero T

	if raw, ok, err := c.store.StepResult(c.ctx, c.workflowID, stepKey); err != nil {
		return zero, err
	} else if ok {
		var result T
		if err := json.Unmarshal(raw, &result); err != nil {
			return zero, fmt.Errorf("runtime: decode cached result for step %q: %w", stepKey, err)
		}
		if c.emitter != nil {
			c.emitter.Emit(emit.Event{WorkflowID: c.workflowID, Source: stepKey, Msg: "side_effect_replayed"})
		}
		if c.metrics != nil {
			c.metrics.RecordSideEffect(c.workflowName, stepKey, "replayed")
		}
		return result, nil
	}

	start := time.Now()
	result, err := thunk()
	if err != nil {
		return zero, err
	}
	elapsed := time.Since(start)

	payload, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("runtime: encode result for step %q: %w", stepKey, err)
	}

	if err := c.appendWithRetry(journal.Event{
		Kind:    journal.EventSideEffectResult,
		StepKey: stepKey,
		Payload: payload,
	}); err != nil {
		return zero, err
	}

	if c.emitter != nil {
		c.emitter.Emit(emit.Event{WorkflowID: c.workflowID, Source: stepKey, Msg: "side_effect_executed"})
	}
	if c.metrics != nil {
		c.metrics.RecordSideEffect(c.workflowName, stepKey, "executed")
		c.metrics.RecordStepLatency(c.workflowName, stepKey, elapsed)
	}

	return result, nil
}

// GetState reads the most recently written value for stateKey. ok is
// false if it has never been set.
func GetState[T any](c *Context, stateKey string) (value T, ok bool, err error) {
	raw, present, err := c.store.LatestState(c.ctx, c.workflowID, stateKey)
	if err != nil || !present {
		return value, present, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("runtime: decode state %q: %w", stateKey, err)
	}
	return value, true, nil
}

// SetState durably writes value for stateKey; it becomes visible to
// subsequent GetState calls within the same run (and, on replay, from the
// start of the next drive).
func SetState[T any](c *Context, stateKey string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("runtime: encode state %q: %w", stateKey, err)
	}
	return c.appendWithRetry(journal.Event{
		Kind:     journal.EventStateSet,
		StateKey: stateKey,
		Payload:  payload,
	})
}
