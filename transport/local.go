package transport

import (
	"context"
	"fmt"
	"sync"
)

// LocalRegistry is the shared directory backing every in-process
// LocalTransport in a test cluster: a map from NodeAddress to the
// transport currently listening there. Deterministic and synchronous —
// built for scenario tests (spec §4.5's "in-process registry keyed by
// NodeAddress for deterministic tests"), not for production traffic.
type LocalRegistry struct {
	mu    sync.RWMutex
	nodes map[string]*LocalTransport
}

// NewLocalRegistry returns an empty registry. Share one instance across
// every LocalTransport in a test cluster.
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{nodes: make(map[string]*LocalTransport)}
}

// LocalTransport is a Transport backed by a LocalRegistry. Sends are
// synchronous direct calls into the target's registered handler; there
// is no network, no serialization, and no goroutine hop, which keeps
// scenario tests deterministic.
type LocalTransport struct {
	registry *LocalRegistry
	address  string

	mu       sync.RWMutex
	handlers map[Kind]Handler
	dropAll  bool // simulates a fully-partitioned node for fault-injection tests
}

// NewLocalTransport registers a new LocalTransport at address within
// registry. Registering the same address twice replaces the previous
// listener.
func NewLocalTransport(registry *LocalRegistry, address string) *LocalTransport {
	t := &LocalTransport{
		registry: registry,
		address:  address,
		handlers: make(map[Kind]Handler),
	}
	registry.mu.Lock()
	registry.nodes[address] = t
	registry.mu.Unlock()
	return t
}

// Send implements Transport.
func (t *LocalTransport) Send(ctx context.Context, targetAddress string, msg Message) (Message, error) {
	msg = stampMessageID(msg)
	if t.isDropped() {
		return Message{}, fmt.Errorf("%w: sender %s is partitioned", ErrTransientTransport, t.address)
	}

	t.registry.mu.RLock()
	target, ok := t.registry.nodes[targetAddress]
	t.registry.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("%w: no listener at %s", ErrTransientTransport, targetAddress)
	}
	if target.isDropped() {
		return Message{}, fmt.Errorf("%w: target %s is partitioned", ErrTransientTransport, targetAddress)
	}

	target.mu.RLock()
	handler, ok := target.handlers[msg.Kind]
	target.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("%w: %s has no handler for %s", ErrTransientTransport, targetAddress, msg.Kind)
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	default:
	}

	return handler(ctx, msg)
}

// RegisterHandler implements Transport.
func (t *LocalTransport) RegisterHandler(kind Kind, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = handler
}

// LocalAddress implements Transport.
func (t *LocalTransport) LocalAddress() string { return t.address }

// Close removes this transport from its registry.
func (t *LocalTransport) Close() error {
	t.registry.mu.Lock()
	delete(t.registry.nodes, t.address)
	t.registry.mu.Unlock()
	return nil
}

// SetPartitioned simulates a full network partition: every Send to or
// from this transport fails until cleared. Used by fault-injection
// scenario tests (e.g. simulating a node going dark for the detector to
// catch).
func (t *LocalTransport) SetPartitioned(dropped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropAll = dropped
}

func (t *LocalTransport) isDropped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropAll
}
