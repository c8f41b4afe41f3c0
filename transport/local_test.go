package transport

import (
	"context"
	"errors"
	"testing"
)

func TestLocalTransportSendReceive(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	b := NewLocalTransport(registry, "node-b")
	defer func() { _ = a.Close(); _ = b.Close() }()

	b.RegisterHandler(Ping, func(_ context.Context, msg Message) (Message, error) {
		return Message{Kind: Ack, FromID: "node-b"}, nil
	})

	reply, err := a.Send(context.Background(), "node-b", Message{Kind: Ping, FromID: "node-a"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Kind != Ack || reply.FromID != "node-b" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestLocalTransportUnknownAddressIsTransient(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	defer func() { _ = a.Close() }()

	_, err := a.Send(context.Background(), "ghost", Message{Kind: Ping})
	if !errors.Is(err, ErrTransientTransport) {
		t.Fatalf("expected ErrTransientTransport, got %v", err)
	}
}

func TestLocalTransportPartitionDropsSend(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	b := NewLocalTransport(registry, "node-b")
	defer func() { _ = a.Close(); _ = b.Close() }()

	b.RegisterHandler(Ping, func(_ context.Context, msg Message) (Message, error) {
		return Message{Kind: Ack}, nil
	})

	b.SetPartitioned(true)
	if _, err := a.Send(context.Background(), "node-b", Message{Kind: Ping}); !errors.Is(err, ErrTransientTransport) {
		t.Fatalf("expected ErrTransientTransport while partitioned, got %v", err)
	}

	b.SetPartitioned(false)
	if _, err := a.Send(context.Background(), "node-b", Message{Kind: Ping}); err != nil {
		t.Fatalf("expected send to succeed after partition heals: %v", err)
	}
}

func TestLocalTransportMissingHandlerIsTransient(t *testing.T) {
	registry := NewLocalRegistry()
	a := NewLocalTransport(registry, "node-a")
	b := NewLocalTransport(registry, "node-b")
	defer func() { _ = a.Close(); _ = b.Close() }()

	_, err := a.Send(context.Background(), "node-b", Message{Kind: Gossip})
	if !errors.Is(err, ErrTransientTransport) {
		t.Fatalf("expected ErrTransientTransport for unregistered kind, got %v", err)
	}
}
