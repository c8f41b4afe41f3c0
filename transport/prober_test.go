package transport

import (
	"context"
	"testing"

	"github.com/dshills/durableflow/membership"
)

func TestProberAdapterPing(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	b := NewLocalTransport(registry, "node-b")
	defer func() { _ = a.Close(); _ = b.Close() }()

	b.RegisterHandler(Ping, func(_ context.Context, msg Message) (Message, error) {
		return Message{Kind: Ack, Updates: []membership.GossipUpdate{
			{NodeID: "node-b", State: membership.Alive, Incarnation: 1},
		}}, nil
	})

	prober := NewProber(a, "node-a")
	updates, ok, err := prober.Ping(context.Background(), "node-b", "node-b", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(updates) != 1 || updates[0].NodeID != "node-b" {
		t.Fatalf("unexpected updates: %+v", updates)
	}
}

func TestProberAdapterPingUnreachable(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	defer func() { _ = a.Close() }()

	prober := NewProber(a, "node-a")
	_, ok, err := prober.Ping(context.Background(), "ghost", "ghost", nil)
	if err == nil {
		t.Fatalf("expected error for unreachable target")
	}
	if ok {
		t.Fatalf("expected ok=false")
	}
}
