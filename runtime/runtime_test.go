package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dshills/durableflow/journal"
)

// TestRecordReplayAtMostOnce is scenario S1: a workflow performs three
// sideEffect calls returning "a", "b", "c". The Runtime is "crashed" after
// the second side effect commits by constructing a fresh Runtime over the
// same Store and resuming; only one invocation of each thunk must occur
// and the final output must equal the original.
func TestRecordReplayAtMostOnce(t *testing.T) {
	store := journal.NewMemoryStore()
	ctx := context.Background()

	var calls int32
	letters := func(letter string) func() (string, error) {
		return func() (string, error) {
			atomic.AddInt32(&calls, 1)
			return letter, nil
		}
	}

	crashAfterB := true
	workflow := func(c *Context, _ json.RawMessage) (string, error) {
		a, err := SideEffect(c, "step-a", letters("a"))
		if err != nil {
			return "", err
		}
		b, err := SideEffect(c, "step-b", letters("b"))
		if err != nil {
			return "", err
		}
		if crashAfterB {
			return "", errors.New("simulated crash after step-b")
		}
		cc, err := SideEffect(c, "step-c", letters("c"))
		if err != nil {
			return "", err
		}
		return a + b + cc, nil
	}

	rt1 := New(store)
	Register(rt1, "letters", func(c *Context, input json.RawMessage) (string, error) {
		return workflow(c, input)
	})

	outcome, err := rt1.Submit(ctx, "letters", "wf-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if outcome.Kind != Pending {
		t.Fatalf("expected Pending after simulated crash, got %v", outcome.Kind)
	}
	if calls != 2 {
		t.Fatalf("expected 2 thunk calls before crash, got %d", calls)
	}

	// Restart: new Runtime, same Store, crash flag cleared.
	crashAfterB = false
	rt2 := New(store)
	Register(rt2, "letters", func(c *Context, input json.RawMessage) (string, error) {
		return workflow(c, input)
	})

	outcome, err = rt2.Resume(ctx, "letters", "wf-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome.Kind != Completed {
		t.Fatalf("expected Completed after resume, got %v", outcome.Kind)
	}

	var output string
	if err := json.Unmarshal(outcome.Output, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output != "abc" {
		t.Fatalf("expected output 'abc', got %q", output)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 total thunk invocations (a, b replayed not re-run, c new), got %d", calls)
	}

	// Idempotence: submitting again must return the same terminal value.
	again, err := rt2.Submit(ctx, "letters", "wf-1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Kind != Completed {
		t.Fatalf("expected resubmit to be Completed, got %v", again.Kind)
	}
	var againOutput string
	if err := json.Unmarshal(again.Output, &againOutput); err != nil {
		t.Fatalf("decode resubmit output: %v", err)
	}
	if againOutput != "abc" {
		t.Fatalf("expected resubmit output 'abc', got %q", againOutput)
	}
}

// TestCounterRecoveryNoDuplicates is scenario S2: a workflow loop runs
// sideEffect("step"+i) for i in 0..10 and fails at i==5. After the
// failure, resuming must process exactly 10 unique items with no
// duplicates.
func TestCounterRecoveryNoDuplicates(t *testing.T) {
	store := journal.NewMemoryStore()
	ctx := context.Background()

	processed := make(map[int]int) // item index -> invocation count
	failAt := 5

	workflow := func(c *Context, _ json.RawMessage) (int, error) {
		for i := 0; i < 10; i++ {
			if i == failAt {
				return 0, errors.New("simulated failure at item 5")
			}
			stepKey := itoaStep(i)
			_, err := SideEffect(c, stepKey, func() (int, error) {
				processed[i]++
				return i, nil
			})
			if err != nil {
				return 0, err
			}
		}
		return 10, nil
	}

	rt1 := New(store)
	Register(rt1, "counter", workflow)
	outcome, err := rt1.Submit(ctx, "counter", "wf-2", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if outcome.Kind != Pending {
		t.Fatalf("expected Pending after simulated failure, got %v", outcome.Kind)
	}

	failAt = -1 // disable the failure on resume
	rt2 := New(store)
	Register(rt2, "counter", workflow)
	outcome, err = rt2.Resume(ctx, "counter", "wf-2")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome.Kind != Completed {
		t.Fatalf("expected Completed after resume, got %v", outcome.Kind)
	}

	if len(processed) != 10 {
		t.Fatalf("expected 10 unique processed items, got %d", len(processed))
	}
	for i := 0; i < 10; i++ {
		if processed[i] != 1 {
			t.Fatalf("expected item %d processed exactly once, got %d", i, processed[i])
		}
	}
}

func TestSubmitUnknownWorkflowName(t *testing.T) {
	rt := New(journal.NewMemoryStore())
	_, err := rt.Submit(context.Background(), "nope", "wf-x", json.RawMessage(`{}`))
	if !errors.Is(err, ErrWorkflowUnknown) {
		t.Fatalf("expected ErrWorkflowUnknown, got %v", err)
	}
}

func TestNonRetryableErrorFailsWorkflow(t *testing.T) {
	rt := New(journal.NewMemoryStore())
	Register(rt, "boom", func(c *Context, _ json.RawMessage) (string, error) {
		return "", NonRetryable(errors.New("fatal configuration error"))
	})

	outcome, err := rt.Submit(context.Background(), "boom", "wf-3", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Kind != Failed {
		t.Fatalf("expected Failed, got %v", outcome.Kind)
	}
	if outcome.Message != "fatal configuration error" {
		t.Fatalf("unexpected message: %q", outcome.Message)
	}

	// Terminal stability: resubmitting returns the same Failed outcome.
	again, err := rt.Submit(context.Background(), "boom", "wf-3", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Kind != Failed || again.Message != outcome.Message {
		t.Fatalf("expected identical Failed outcome on resubmit, got %+v", again)
	}
}

func TestGetStateSetStateRoundTrip(t *testing.T) {
	rt := New(journal.NewMemoryStore())
	Register(rt, "accum", func(c *Context, _ json.RawMessage) (int, error) {
		total := 0
		for i := 0; i < 3; i++ {
			if _, err := SideEffect(c, itoaStep(i), func() (int, error) { return i, nil }); err != nil {
				return 0, err
			}
			total += i
			if err := SetState(c, "total", total); err != nil {
				return 0, err
			}
			got, ok, err := GetState[int](c, "total")
			if err != nil || !ok || got != total {
				return 0, fmt.Errorf("GetState(total) = %d, ok=%v, err=%v; want %d", got, ok, err, total)
			}
		}
		return total, nil
	})

	outcome, err := rt.Submit(context.Background(), "accum", "wf-4", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Kind != Completed {
		t.Fatalf("expected Completed, got %v", outcome.Kind)
	}
	var total int
	if err := json.Unmarshal(outcome.Output, &total); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
}

func itoaStep(i int) string {
	return fmt.Sprintf("step-%d", i)
}
