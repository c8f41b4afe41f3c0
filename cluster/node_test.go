package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/durableflow/runtime"
	"github.com/dshills/durableflow/transport"
)

func TestSingleNodeSubmitDrivesLocally(t *testing.T) {
	registry := transport.NewLocalRegistry()
	tr := transport.NewLocalTransport(registry, "addr-1")
	node, err := New(tr, WithNodeID("solo"), WithBindAddress("addr-1"))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	Register(node, "double", func(c *runtime.Context, input int) (int, error) {
		return runtime.SideEffect(c, "double-step", func() (int, error) { return input * 2, nil })
	})

	ctx := context.Background()
	if err := node.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = node.Stop(ctx) }()

	input, _ := json.Marshal(21)
	outcome, err := node.Submit(ctx, "double", "wf-solo", input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Kind != runtime.Completed {
		t.Fatalf("expected Completed, got %v", outcome.Kind)
	}
	var out int
	if err := json.Unmarshal(outcome.Output, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out != 42 {
		t.Fatalf("expected 42, got %d", out)
	}

	// Resubmitting the same workflow ID must return the same recorded
	// outcome without re-running the workflow function.
	outcome2, err := node.Submit(ctx, "double", "wf-solo", input)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if string(outcome2.Output) != string(outcome.Output) {
		t.Fatalf("resubmit produced a different output: %s vs %s", outcome2.Output, outcome.Output)
	}
}

func TestSubmitUnregisteredWorkflowNameFails(t *testing.T) {
	registry := transport.NewLocalRegistry()
	tr := transport.NewLocalTransport(registry, "addr-1")
	node, err := New(tr, WithNodeID("solo"), WithBindAddress("addr-1"))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	ctx := context.Background()
	if err := node.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = node.Stop(ctx) }()

	input, _ := json.Marshal(1)
	_, err = node.Submit(ctx, "never-registered", "wf-1", input)
	if !errors.Is(err, runtime.ErrWorkflowUnknown) {
		t.Fatalf("expected ErrWorkflowUnknown, got %v", err)
	}
}

func TestNewWithMySQLJournalWiresThroughToMySQLStore(t *testing.T) {
	registry := transport.NewLocalRegistry()
	tr := transport.NewLocalTransport(registry, "addr-1")

	// No MySQL server is reachable at this DSN in a test environment; the
	// point of this test is that New actually attempts to open a
	// journal.MySQLStore for MySQLBackend instead of silently falling
	// back to memory, surfacing the open failure as a wrapped error.
	_, err := New(tr, WithNodeID("solo"), WithBindAddress("addr-1"),
		WithMySQLJournal("nonexistent:nonexistent@tcp(127.0.0.1:1)/durableflow?timeout=1s"))
	if err == nil {
		t.Fatalf("expected New to fail opening an unreachable mysql journal")
	}
	if !strings.Contains(err.Error(), "mysql journal") {
		t.Fatalf("expected error to mention the mysql journal open path, got: %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	registry := transport.NewLocalRegistry()
	tr := transport.NewLocalTransport(registry, "addr-1")
	node, err := New(tr, WithNodeID("solo"), WithBindAddress("addr-1"))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	ctx := context.Background()
	if err := node.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := node.Stop(ctx); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := node.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}
}
