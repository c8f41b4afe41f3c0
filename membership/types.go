// Package membership implements SWIM-style cluster membership: a
// per-node table of peer state, a failure detector driving direct and
// indirect probes, and a bounded-transmission update disseminator that
// piggybacks membership changes onto outgoing protocol messages.
package membership

import "fmt"

// NodeState is the derived liveness state of a cluster member.
type NodeState int

const (
	// Alive means the node is believed reachable.
	Alive NodeState = iota
	// Suspect means a probe round failed to confirm the node and it is
	// pending a Dead conversion unless refuted.
	Suspect
	// Dead means the node has been confirmed gone and is evicted from the
	// ring.
	Dead
	// Left means the node announced a graceful departure.
	Left
)

// Priority orders NodeState for the merge rule's "strictly higher
// priority" tie-break when incarnations are equal: Left beats Dead, which
// beats Suspect, which beats Alive. Left must strictly outrank Dead so a
// node's graceful departure at the same incarnation it was already
// declared Dead at still converges to Left instead of getting stuck. A
// node's own refutation always raises its incarnation, so the priority
// tie-break only matters for same-incarnation updates about other nodes
// racing through gossip.
func (s NodeState) Priority() int {
	switch s {
	case Alive:
		return 0
	case Suspect:
		return 1
	case Dead:
		return 2
	case Left:
		return 3
	default:
		return -1
	}
}

// String renders the state for logs.
func (s NodeState) String() string {
	switch s {
	case Alive:
		return "Alive"
	case Suspect:
		return "Suspect"
	case Dead:
		return "Dead"
	case Left:
		return "Left"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// NodeInfo is one row of the membership table: everything known about a
// peer's identity, address, and derived liveness.
type NodeInfo struct {
	NodeID      string
	Address     string
	State       NodeState
	Incarnation uint64
}

// GossipUpdate is the wire-level unit disseminated by gossip: a claim
// about one node's state at one incarnation. The Disseminator piggybacks
// a bounded set of these onto every outgoing protocol message.
type GossipUpdate struct {
	NodeID      string
	Address     string
	State       NodeState
	Incarnation uint64
}
