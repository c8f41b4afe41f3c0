package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/durableflow/runtime"
	"github.com/dshills/durableflow/transport"
)

// Register binds workflowName to fn on this node's Runtime. Register[I,
// O] wraps the typed function with the input/output codec pairing
// described in spec §6; workflowName must be registered identically
// (same name, compatible codec) on every node that might own a
// submission for it, or remote routing will fail to deserialize.
func Register[I, O any](n *Node, workflowName string, fn func(*runtime.Context, I) (O, error)) {
	runtime.Register(n.runtime, workflowName, fn)
}

// Submit implements the external Submit API (spec §6): if workflowID
// hashes to this node, drive it locally; otherwise forward the
// submission over Transport to the owning node. Multiple submissions
// with the same workflowID are idempotent — the same outcome is
// returned whether driven here or elsewhere, because the outcome is
// always read from (or written to) the workflow's single journal.
func (n *Node) Submit(ctx context.Context, workflowName, workflowID string, input json.RawMessage) (runtime.Outcome, error) {
	owner, ok := n.ring.Owner(workflowID)
	if !ok {
		return runtime.Outcome{}, ErrNodeNotInRing
	}

	if owner == n.cfg.nodeID {
		return n.runtime.Submit(ctx, workflowName, workflowID, input)
	}

	info, known := n.table.Get(owner)
	if !known || info.Address == "" {
		return runtime.Outcome{}, fmt.Errorf("%w: %s", ErrOwnerUnreachable, owner)
	}

	reply, err := n.transport.Send(ctx, info.Address, transport.Message{
		Kind:         transport.WorkflowSubmit,
		FromID:       n.cfg.nodeID,
		WorkflowID:   workflowID,
		WorkflowName: workflowName,
		InputBlob:    input,
	})
	if err != nil {
		return runtime.Outcome{}, fmt.Errorf("%w: %v", ErrOwnerUnreachable, err)
	}
	return messageToOutcome(reply), nil
}

func outcomeToMessage(workflowID string, outcome runtime.Outcome) transport.Message {
	msg := transport.Message{Kind: transport.WorkflowSubmitAck, WorkflowID: workflowID}
	switch outcome.Kind {
	case runtime.Completed:
		msg.Status = "completed"
		msg.OutputBlob = outcome.Output
	case runtime.Failed:
		msg.Status = "failed"
		msg.ErrorKind = outcome.ErrorKind
		msg.ErrorMessage = outcome.Message
	default:
		msg.Status = "pending"
	}
	return msg
}

func messageToOutcome(msg transport.Message) runtime.Outcome {
	switch msg.Status {
	case "completed":
		return runtime.Outcome{Kind: runtime.Completed, Output: msg.OutputBlob}
	case "failed":
		return runtime.Outcome{Kind: runtime.Failed, ErrorKind: msg.ErrorKind, Message: msg.ErrorMessage}
	default:
		return runtime.Outcome{Kind: runtime.Pending}
	}
}
