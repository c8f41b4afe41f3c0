package transport

import (
	"context"
	"errors"
	"testing"
)

func TestHTTPTransportSendReceive(t *testing.T) {
	server, err := NewHTTPTransport("127.0.0.1:17801")
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer func() { _ = server.Close() }()

	server.RegisterHandler(Ping, func(_ context.Context, msg Message) (Message, error) {
		return Message{Kind: Ack, FromID: "server"}, nil
	})

	client, err := NewHTTPTransport("127.0.0.1:17802")
	if err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer func() { _ = client.Close() }()

	reply, err := client.Send(context.Background(), "127.0.0.1:17801", Message{Kind: Ping, FromID: "client"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Kind != Ack || reply.FromID != "server" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestHTTPTransportUnreachableTargetIsTransient(t *testing.T) {
	client, err := NewHTTPTransport("127.0.0.1:17803")
	if err != nil {
		t.Fatalf("start client: %v", err)
	}
	defer func() { _ = client.Close() }()

	_, err = client.Send(context.Background(), "127.0.0.1:1", Message{Kind: Ping})
	if !errors.Is(err, ErrTransientTransport) {
		t.Fatalf("expected ErrTransientTransport for unreachable address, got %v", err)
	}
}
