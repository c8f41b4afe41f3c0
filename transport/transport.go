package transport

import (
	"context"
	"errors"
)

// ErrTransientTransport is returned by Send when the message could not be
// delivered (timeout, drop, connection reset, unknown address). Callers
// that need durability retry at the protocol layer; this package never
// retries on its own.
var ErrTransientTransport = errors.New("transport: transient delivery failure")

// Handler answers an incoming Message, returning the reply to send back
// (e.g. Ack for Ping, JoinResponse for Join) or an error if it cannot be
// produced. Handlers must be idempotent: Transport delivery is
// unreliable and best-effort, so the same Message may arrive more than
// once.
type Handler func(ctx context.Context, msg Message) (Message, error)

// Transport delivers one Message to targetAddress and returns its reply.
// Implementations: LocalTransport (in-process, for deterministic tests)
// and HTTPTransport (real network). Both honor ctx's deadline and must
// not block indefinitely on a send.
type Transport interface {
	// Send delivers msg to targetAddress and returns the handler's reply.
	// Returns ErrTransientTransport (possibly wrapped) on any delivery
	// failure: unknown address, timeout, or a dropped send.
	Send(ctx context.Context, targetAddress string, msg Message) (Message, error)

	// RegisterHandler installs the handler invoked for incoming messages
	// of kind. Only one handler may be registered per kind; a second
	// registration replaces the first.
	RegisterHandler(kind Kind, handler Handler)

	// LocalAddress returns the address this transport listens on.
	LocalAddress() string

	// Close releases any resources (listeners, registry entries).
	Close() error
}
