package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/durableflow/journal"
	"github.com/dshills/durableflow/membership"
	"github.com/dshills/durableflow/ring"
	"github.com/dshills/durableflow/runtime"
	"github.com/dshills/durableflow/transport"
)

// Node wires the Journal Store, Durable Runtime, Hash Ring, Membership
// table, and Transport into one running cluster member. External callers
// interact with it through Submit and Register.
type Node struct {
	cfg       config
	store     journal.Store
	runtime   *runtime.Runtime
	table     *membership.Table
	diss      *membership.Disseminator
	detector  *membership.Detector
	ring      *ring.Ring
	transport transport.Transport

	group  *errgroup.Group
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New constructs a Node. t is the already-constructed Transport this node
// listens on (transport.NewLocalTransport for tests, transport.NewHTTPTransport
// for a real deployment); cluster does not construct transports itself so
// that test clusters can share a transport.LocalRegistry.
func New(t transport.Transport, opts ...Option) (*Node, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.nodeID == "" {
		return nil, fmt.Errorf("cluster: WithNodeID is required")
	}

	var store journal.Store
	switch cfg.journalBackend {
	case PersistentBackend:
		s, err := journal.NewSQLiteStore(cfg.journalPath)
		if err != nil {
			return nil, fmt.Errorf("cluster: open persistent journal: %w", err)
		}
		store = s
	case MySQLBackend:
		s, err := journal.NewMySQLStore(cfg.journalDSN)
		if err != nil {
			return nil, fmt.Errorf("cluster: open mysql journal: %w", err)
		}
		store = s
	default:
		store = journal.NewMemoryStore()
	}

	rt := runtime.New(store,
		runtime.WithEmitter(cfg.emitter),
		runtime.WithMetrics(cfg.metrics),
		runtime.WithAppendRetryPolicy(cfg.retryPolicy),
	)

	table := membership.NewTable(cfg.nodeID)
	hashRing := ring.New(cfg.virtualNodesPerMember)
	table.Subscribe(func(nodeID string, alive bool) {
		hashRing.Apply(ring.ChangeEvent{NodeID: nodeID, Alive: alive})
	})
	table.Merge(membership.GossipUpdate{NodeID: cfg.nodeID, Address: cfg.bindAddress, State: membership.Alive, Incarnation: 1})

	diss := membership.NewDisseminator(1)
	prober := transport.NewProber(t, cfg.nodeID)
	detector := membership.NewDetector(table, diss, prober, cfg.detectorConfig())

	n := &Node{
		cfg:       cfg,
		store:     store,
		runtime:   rt,
		table:     table,
		diss:      diss,
		detector:  detector,
		ring:      hashRing,
		transport: t,
	}
	n.registerHandlers()
	return n, nil
}

// Runtime exposes the underlying *runtime.Runtime for Register to wrap.
func (n *Node) Runtime() *runtime.Runtime { return n.runtime }

// Table exposes the membership table, mainly for tests and diagnostics.
func (n *Node) Table() *membership.Table { return n.table }

// Ring exposes the hash ring, mainly for tests and diagnostics.
func (n *Node) Ring() *ring.Ring { return n.ring }

// NodeID returns this node's configured identifier.
func (n *Node) NodeID() string { return n.cfg.nodeID }

// Start joins the cluster (if seeds are configured) and launches the
// background gossip-tick loop. Safe to call once; a second call is a
// no-op.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = true
	n.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	n.group = group

	for _, seed := range n.cfg.seeds {
		if err := n.join(ctx, seed); err != nil {
			n.diss.SetClusterSize(len(n.table.AliveMembers()))
			continue
		}
	}
	n.diss.SetClusterSize(len(n.table.AliveMembers()))

	group.Go(func() error {
		return n.gossipLoop(groupCtx)
	})

	return nil
}

func (n *Node) gossipLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.gossipTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.detector.Tick(ctx)
			n.diss.SetClusterSize(len(n.table.AliveMembers()))
		}
	}
}

func (n *Node) join(ctx context.Context, seedAddr string) error {
	reply, err := n.transport.Send(ctx, seedAddr, transportMessageJoin(n.cfg.nodeID, n.cfg.bindAddress))
	if err != nil {
		return err
	}
	n.mergeSnapshot(reply)
	return nil
}

// Stop leaves the cluster gracefully per spec §9's shutdown ordering:
// stop the gossip timer, announce Left, then close the journal.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	if n.group != nil {
		_ = n.group.Wait()
	}
	n.detector.Stop()

	if self, ok := n.table.Self(); ok {
		leave := membership.Leave(self)
		n.table.Merge(leave)
		n.broadcastLeave(ctx, leave)
	}

	return n.store.Close()
}

func (n *Node) broadcastLeave(ctx context.Context, leave membership.GossipUpdate) {
	for _, nodeID := range n.table.AliveMembers() {
		if nodeID == n.cfg.nodeID {
			continue
		}
		info, ok := n.table.Get(nodeID)
		if !ok || info.Address == "" {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, n.cfg.directPingTimeout)
		_, _ = n.transport.Send(sendCtx, info.Address, transportMessageGossip(n.cfg.nodeID, []membership.GossipUpdate{leave}))
		cancel()
	}
}
