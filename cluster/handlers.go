package cluster

import (
	"context"

	"github.com/dshills/durableflow/membership"
	"github.com/dshills/durableflow/transport"
)

func transportMessageJoin(nodeID, address string) transport.Message {
	return transport.Message{Kind: transport.Join, FromID: nodeID, FromAddress: address, FromIncarnation: 0}
}

func transportMessageGossip(nodeID string, updates []membership.GossipUpdate) transport.Message {
	return transport.Message{Kind: transport.Gossip, FromID: nodeID, Updates: updates}
}

// registerHandlers installs the node's responses to every incoming
// message kind it must serve: Ping/PingReq (failure detection),
// Gossip/Join (membership dissemination and bootstrap), and
// WorkflowSubmit (remote-forwarded workflow drive requests).
func (n *Node) registerHandlers() {
	n.transport.RegisterHandler(transport.Ping, n.handlePing)
	n.transport.RegisterHandler(transport.PingReq, n.handlePingReq)
	n.transport.RegisterHandler(transport.Gossip, n.handleGossip)
	n.transport.RegisterHandler(transport.Join, n.handleJoin)
	n.transport.RegisterHandler(transport.WorkflowSubmit, n.handleWorkflowSubmit)
}

func (n *Node) mergeIncoming(updates []membership.GossipUpdate) {
	for _, u := range updates {
		changed, refuted := n.table.Merge(u)
		if changed {
			n.diss.Add(u)
		}
		if refuted {
			if self, ok := n.table.Self(); ok {
				n.diss.Add(membership.GossipUpdate{NodeID: self.NodeID, Address: self.Address, State: membership.Alive, Incarnation: self.Incarnation})
			}
		}
	}
}

func (n *Node) handlePing(_ context.Context, msg transport.Message) (transport.Message, error) {
	n.mergeIncoming(msg.Updates)
	return transport.Message{Kind: transport.Ack, FromID: n.cfg.nodeID, Updates: n.diss.Piggyback(n.cfg.gossipFanout)}, nil
}

func (n *Node) handlePingReq(ctx context.Context, msg transport.Message) (transport.Message, error) {
	n.mergeIncoming(msg.Updates)

	relayCtx, cancel := context.WithTimeout(ctx, n.cfg.directPingTimeout)
	defer cancel()

	reply, err := n.transport.Send(relayCtx, msg.TargetAddress, transport.Message{
		Kind:     transport.Ping,
		FromID:   n.cfg.nodeID,
		TargetID: msg.TargetID,
		Updates:  n.diss.Piggyback(n.cfg.gossipFanout),
	})
	if err != nil || reply.Kind != transport.Ack {
		return transport.Message{Kind: transport.Ack, FromID: n.cfg.nodeID}, err
	}

	n.mergeIncoming(reply.Updates)
	return transport.Message{Kind: transport.Ack, FromID: n.cfg.nodeID, Updates: reply.Updates}, nil
}

func (n *Node) handleGossip(_ context.Context, msg transport.Message) (transport.Message, error) {
	n.mergeIncoming(msg.Updates)
	return transport.Message{Kind: transport.Gossip, FromID: n.cfg.nodeID}, nil
}

func (n *Node) handleJoin(_ context.Context, msg transport.Message) (transport.Message, error) {
	update := membership.GossipUpdate{NodeID: msg.FromID, Address: msg.FromAddress, State: membership.Alive, Incarnation: msg.FromIncarnation}
	changed, _ := n.table.Merge(update)
	if changed {
		n.diss.Add(update)
		n.diss.SetClusterSize(len(n.table.AliveMembers()))
	}

	snapshot := make([]membership.GossipUpdate, 0)
	for _, info := range n.table.Snapshot() {
		snapshot = append(snapshot, membership.GossipUpdate{NodeID: info.NodeID, Address: info.Address, State: info.State, Incarnation: info.Incarnation})
	}

	return transport.Message{
		Kind:     transport.JoinResponse,
		FromID:   n.cfg.nodeID,
		Snapshot: snapshot,
		Updates:  n.diss.Piggyback(n.cfg.gossipFanout),
	}, nil
}

func (n *Node) mergeSnapshot(reply transport.Message) {
	for _, u := range reply.Snapshot {
		changed, _ := n.table.Merge(u)
		if changed {
			n.diss.Add(u)
		}
	}
	n.mergeIncoming(reply.Updates)
}

func (n *Node) handleWorkflowSubmit(ctx context.Context, msg transport.Message) (transport.Message, error) {
	outcome, err := n.runtime.Submit(ctx, msg.WorkflowName, msg.WorkflowID, msg.InputBlob)
	if err != nil {
		return transport.Message{
			Kind:         transport.WorkflowSubmitAck,
			WorkflowID:   msg.WorkflowID,
			Status:       "failed",
			ErrorMessage: err.Error(),
		}, nil
	}
	return outcomeToMessage(msg.WorkflowID, outcome), nil
}
