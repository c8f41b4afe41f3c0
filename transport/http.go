package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPTransport is a network Transport: every message is a JSON-encoded
// POST to the target's "/durableflow/rpc" endpoint, grounded on the same
// client-construction idiom as the node's outbound tool-calling HTTP
// client (bounded client, context-driven timeout) and on the gossip
// layer's "POST .../gossip/receive" framing.
type HTTPTransport struct {
	client  *http.Client
	server  *http.Server
	address string

	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewHTTPTransport starts an HTTP listener on address (host:port) and
// returns a Transport ready to Send and receive messages. Call Close to
// shut the listener down.
func NewHTTPTransport(address string) (*HTTPTransport, error) {
	t := &HTTPTransport{
		client:   &http.Client{},
		address:  address,
		handlers: make(map[Kind]Handler),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/durableflow/rpc", t.serveRPC)
	t.server = &http.Server{Addr: address, Handler: mux}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- t.server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if err != nil && err != http.ErrServerClosed {
			return nil, fmt.Errorf("transport: listen on %s: %w", address, err)
		}
	case <-time.After(50 * time.Millisecond):
		// Server is up and serving; ListenAndServe blocks until shutdown.
	}

	return t, nil
}

func (t *HTTPTransport) serveRPC(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, MaxMessageBytes)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "request too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		http.Error(w, "malformed message", http.StatusBadRequest)
		return
	}

	t.mu.RLock()
	handler, ok := t.handlers[msg.Kind]
	t.mu.RUnlock()
	if !ok {
		http.Error(w, fmt.Sprintf("no handler for %s", msg.Kind), http.StatusNotImplemented)
		return
	}

	reply, err := handler(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, targetAddress string, msg Message) (Message, error) {
	msg = stampMessageID(msg)
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("transport: encode message: %w", err)
	}
	if len(payload) > MaxMessageBytes {
		return Message{}, fmt.Errorf("%w: message exceeds %d bytes", ErrTransientTransport, MaxMessageBytes)
	}

	url := fmt.Sprintf("http://%s/durableflow/rpc", targetAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Message{}, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTransientTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Message{}, fmt.Errorf("%w: target returned status %d", ErrTransientTransport, resp.StatusCode)
	}

	var reply Message
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxMessageBytes)).Decode(&reply); err != nil {
		return Message{}, fmt.Errorf("%w: decode reply: %v", ErrTransientTransport, err)
	}
	return reply, nil
}

// RegisterHandler implements Transport.
func (t *HTTPTransport) RegisterHandler(kind Kind, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = handler
}

// LocalAddress implements Transport.
func (t *HTTPTransport) LocalAddress() string { return t.address }

// Close shuts down the HTTP listener.
func (t *HTTPTransport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}
