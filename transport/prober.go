package transport

import (
	"context"
	"fmt"

	"github.com/dshills/durableflow/membership"
)

// ProberAdapter implements membership.Prober over any Transport, so the
// failure detector never depends on a concrete transport implementation.
type ProberAdapter struct {
	Transport Transport
	LocalID   string
}

// NewProber wraps t as a membership.Prober for the node identified by
// localID.
func NewProber(t Transport, localID string) *ProberAdapter {
	return &ProberAdapter{Transport: t, LocalID: localID}
}

// Ping implements membership.Prober.
func (p *ProberAdapter) Ping(ctx context.Context, targetID, targetAddr string, updates []membership.GossipUpdate) ([]membership.GossipUpdate, bool, error) {
	reply, err := p.Transport.Send(ctx, targetAddr, Message{
		Kind:        Ping,
		FromID:      p.LocalID,
		FromAddress: p.Transport.LocalAddress(),
		TargetID:    targetID,
		Updates:     updates,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransientTransport, err)
	}
	if reply.Kind != Ack {
		return nil, false, nil
	}
	return reply.Updates, true, nil
}

// PingReq implements membership.Prober.
func (p *ProberAdapter) PingReq(ctx context.Context, viaID, viaAddr, targetID, targetAddr string, updates []membership.GossipUpdate) ([]membership.GossipUpdate, bool, error) {
	reply, err := p.Transport.Send(ctx, viaAddr, Message{
		Kind:          PingReq,
		FromID:        p.LocalID,
		FromAddress:   p.Transport.LocalAddress(),
		TargetID:      targetID,
		TargetAddress: targetAddr,
		Updates:       updates,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransientTransport, err)
	}
	if reply.Kind != Ack {
		return nil, false, nil
	}
	return reply.Updates, true, nil
}
