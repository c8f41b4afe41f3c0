// Package transport delivers the cluster's wire messages: Ping, PingReq,
// Ack, Gossip, Join, JoinResponse, WorkflowSubmit, and WorkflowSubmitAck
// (spec §4.5 / §6). Delivery is unreliable and best-effort; every
// recipient-side handler must be idempotent, since duplicates are
// acceptable and reliability comes from repetition at the protocol layer
// above this package (membership's probe retries, gossip's bounded
// retransmission).
package transport

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dshills/durableflow/membership"
)

// Kind discriminates the message variants carried by Message. The wire
// framing is implementation-defined (see LocalRegistry and HTTPTransport)
// but every framing carries this one-byte-equivalent discriminator ahead
// of a structured payload, per spec §6.
type Kind int

const (
	// Ping is a direct liveness probe.
	Ping Kind = iota
	// PingReq asks a relay to probe a third node on the sender's behalf.
	PingReq
	// Ack answers a Ping or a relayed PingReq.
	Ack
	// Gossip is an unsolicited update-list push (outside the ping cycle).
	Gossip
	// Join is a new node's introduction to a seed.
	Join
	// JoinResponse answers Join with a membership snapshot.
	JoinResponse
	// WorkflowSubmit forwards a submission to a workflow's owning node.
	WorkflowSubmit
	// WorkflowSubmitAck answers WorkflowSubmit with the drive outcome.
	WorkflowSubmitAck
)

// String renders the kind for logs and HTTP routing.
func (k Kind) String() string {
	switch k {
	case Ping:
		return "Ping"
	case PingReq:
		return "PingReq"
	case Ack:
		return "Ack"
	case Gossip:
		return "Gossip"
	case Join:
		return "Join"
	case JoinResponse:
		return "JoinResponse"
	case WorkflowSubmit:
		return "WorkflowSubmit"
	case WorkflowSubmitAck:
		return "WorkflowSubmitAck"
	default:
		return "Unknown"
	}
}

// MaxMessageBytes bounds a single message's encoded size (spec §4.5: "must
// fit within a small bound (e.g., 64 KiB) to keep probe latency
// predictable").
const MaxMessageBytes = 64 * 1024

// Message is the single envelope carrying every Kind; unused fields for a
// given Kind are left zero. A single envelope (rather than one Go type
// per Kind) keeps LocalRegistry and HTTPTransport's dispatch uniform.
type Message struct {
	Kind Kind `json:"kind"`

	// MessageID identifies this envelope for logs and tracing; it plays no
	// role in correctness (every handler is idempotent per the package
	// doc), so a missing or duplicate MessageID is never an error.
	MessageID string `json:"message_id,omitempty"`

	FromID          string `json:"from_id,omitempty"`
	FromAddress     string `json:"from_address,omitempty"`
	FromIncarnation uint64 `json:"from_incarnation,omitempty"`

	TargetID      string `json:"target_id,omitempty"`
	TargetAddress string `json:"target_address,omitempty"`

	Updates  []membership.GossipUpdate `json:"updates,omitempty"`
	Snapshot []membership.GossipUpdate `json:"snapshot,omitempty"`

	WorkflowID   string          `json:"workflow_id,omitempty"`
	WorkflowName string          `json:"workflow_name,omitempty"`
	InputBlob    json.RawMessage `json:"input_blob,omitempty"`

	Status       string          `json:"status,omitempty"` // "pending" | "completed" | "failed"
	OutputBlob   json.RawMessage `json:"output_blob,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// stampMessageID assigns a fresh MessageID to msg if it doesn't already
// have one, so a caller building a Message by hand never has to think
// about it. Both Transport implementations call this from Send.
func stampMessageID(msg Message) Message {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	return msg
}
