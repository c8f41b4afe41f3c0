package emit

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBufferedEmitterHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{WorkflowID: "wf-1", Step: 1, Msg: "workflow_started"})
	b.Emit(Event{WorkflowID: "wf-1", Step: 2, Msg: "side_effect_executed", Source: "charge"})
	b.Emit(Event{WorkflowID: "wf-2", Step: 1, Msg: "workflow_started"})

	hist := b.History("wf-1")
	if len(hist) != 2 {
		t.Fatalf("expected 2 events for wf-1, got %d", len(hist))
	}
	if hist[1].Source != "charge" {
		t.Fatalf("expected source 'charge', got %q", hist[1].Source)
	}

	b.Clear("wf-1")
	if len(b.History("wf-1")) != 0 {
		t.Fatalf("expected wf-1 history cleared")
	}
	if len(b.History("wf-2")) != 1 {
		t.Fatalf("expected wf-2 history untouched")
	}
}

func TestLogEmitterTextAndJSON(t *testing.T) {
	var buf bytes.Buffer
	text := NewLogEmitter(&buf, false)
	text.Emit(Event{WorkflowID: "wf-1", Step: 1, Msg: "workflow_started"})
	if !strings.Contains(buf.String(), "[workflow_started] wf=wf-1 step=1") {
		t.Fatalf("unexpected text output: %s", buf.String())
	}

	buf.Reset()
	jsonEmitter := NewLogEmitter(&buf, true)
	jsonEmitter.Emit(Event{WorkflowID: "wf-1", Step: 1, Msg: "workflow_started"})
	if !strings.Contains(buf.String(), `"workflowID":"wf-1"`) {
		t.Fatalf("unexpected json output: %s", buf.String())
	}
}

func TestNullEmitterDiscardsEvents(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{Msg: "anything"})
	if err := n.EmitBatch(context.Background(), []Event{{Msg: "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
