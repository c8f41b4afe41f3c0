package membership

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Prober sends the direct/indirect probe messages the Detector needs.
// Implementations live in package transport; Detector depends only on
// this interface so membership never imports transport (transport
// imports membership for GossipUpdate/NodeState, not the reverse).
type Prober interface {
	// Ping sends a direct Ping to (targetID, targetAddr), piggybacking
	// updates, and waits up to the caller's context deadline for an Ack.
	// ok is false on timeout or send failure (both are the spec's
	// "unreliable, best-effort" transport — the Detector treats them
	// identically).
	Ping(ctx context.Context, targetID, targetAddr string, updates []GossipUpdate) (ack []GossipUpdate, ok bool, err error)

	// PingReq asks viaID to relay a Ping to (targetID, targetAddr) on our
	// behalf and waits for a relayed Ack.
	PingReq(ctx context.Context, viaID, viaAddr, targetID, targetAddr string, updates []GossipUpdate) (ack []GossipUpdate, ok bool, err error)
}

// DetectorConfig holds the probe/timeout periods from spec §4.4.
type DetectorConfig struct {
	TickPeriod        time.Duration // default ~1s
	DirectPingTimeout time.Duration // T_dir, default ~500ms
	IndirectTimeout   time.Duration // T_ind, default ~1s
	SuspectTimeout    time.Duration // T_sus, default ~5s
	IndirectFanout    int           // k, default 3
}

// DefaultDetectorConfig matches the spec's recommended defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		TickPeriod:        time.Second,
		DirectPingTimeout: 500 * time.Millisecond,
		IndirectTimeout:   time.Second,
		SuspectTimeout:    5 * time.Second,
		IndirectFanout:    3,
	}
}

// Detector runs the SWIM failure-detection loop: one direct probe per
// tick against a random peer, falling back to indirect probes via k
// relays, and scheduling a Suspect->Dead conversion unless the target is
// refuted or confirmed alive first.
type Detector struct {
	table  *Table
	diss   *Disseminator
	prober Prober
	config DetectorConfig
	rng    *rand.Rand

	mu              sync.Mutex
	probedThisRound map[string]bool
	suspectTimers   map[string]*time.Timer
}

// NewDetector constructs a Detector driving table via prober, piggybacking
// diss's pending updates on every probe message.
func NewDetector(table *Table, diss *Disseminator, prober Prober, config DetectorConfig) *Detector {
	if config.TickPeriod <= 0 {
		config = DefaultDetectorConfig()
	}
	return &Detector{
		table:           table,
		diss:            diss,
		prober:          prober,
		config:          config,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // peer selection, not security
		probedThisRound: make(map[string]bool),
		suspectTimers:   make(map[string]*time.Timer),
	}
}

// Tick runs one protocol round: pick a random peer not yet probed this
// round, direct-probe it, and on failure fall back to indirect probing.
// Resets the per-round "already probed" set once every member has been
// probed.
func (d *Detector) Tick(ctx context.Context) {
	target, targetAddr, ok := d.pickProbeTarget()
	if !ok {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, d.config.DirectPingTimeout)
	updates := d.diss.Piggyback(3)
	ack, ok, err := d.prober.Ping(tickCtx, target, targetAddr, updates)
	cancel()
	if err == nil && ok {
		d.mergeAck(ack)
		d.confirmAlive(target, targetAddr)
		return
	}

	d.indirectProbe(ctx, target, targetAddr)
}

func (d *Detector) pickProbeTarget() (nodeID, addr string, ok bool) {
	snapshot := d.table.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()

	candidates := make([]NodeInfo, 0, len(snapshot))
	for _, info := range snapshot {
		if info.NodeID == d.table.LocalID() || info.State != Alive {
			continue
		}
		if !d.probedThisRound[info.NodeID] {
			candidates = append(candidates, info)
		}
	}

	if len(candidates) == 0 {
		// Start a new round.
		d.probedThisRound = make(map[string]bool)
		for _, info := range snapshot {
			if info.NodeID == d.table.LocalID() || info.State != Alive {
				continue
			}
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	chosen := candidates[d.rng.Intn(len(candidates))]
	d.probedThisRound[chosen.NodeID] = true
	return chosen.NodeID, chosen.Address, true
}

func (d *Detector) indirectProbe(ctx context.Context, target, targetAddr string) {
	relays := d.pickRelays(target, d.config.IndirectFanout)
	if len(relays) == 0 {
		d.markSuspect(target, targetAddr)
		return
	}

	indirectCtx, cancel := context.WithTimeout(ctx, d.config.IndirectTimeout)
	defer cancel()

	results := make(chan bool, len(relays))
	for _, relay := range relays {
		relay := relay
		go func() {
			updates := d.diss.Piggyback(3)
			ack, ok, err := d.prober.PingReq(indirectCtx, relay.NodeID, relay.Address, target, targetAddr, updates)
			if err == nil && ok {
				d.mergeAck(ack)
			}
			results <- err == nil && ok
		}()
	}

	confirmed := false
	for i := 0; i < len(relays); i++ {
		if <-results {
			confirmed = true
		}
	}

	if confirmed {
		d.confirmAlive(target, targetAddr)
	} else {
		d.markSuspect(target, targetAddr)
	}
}

func (d *Detector) pickRelays(exclude string, k int) []NodeInfo {
	snapshot := d.table.Snapshot()
	candidates := make([]NodeInfo, 0, len(snapshot))
	for _, info := range snapshot {
		if info.NodeID == d.table.LocalID() || info.NodeID == exclude || info.State != Alive {
			continue
		}
		candidates = append(candidates, info)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

func (d *Detector) confirmAlive(nodeID, addr string) {
	d.cancelSuspectTimer(nodeID)

	info, known := d.table.Get(nodeID)
	incarnation := uint64(0)
	if known {
		incarnation = info.Incarnation
	}
	changed, _ := d.table.Merge(GossipUpdate{NodeID: nodeID, Address: addr, State: Alive, Incarnation: incarnation})
	if changed {
		d.diss.Add(GossipUpdate{NodeID: nodeID, Address: addr, State: Alive, Incarnation: incarnation})
	}
}

func (d *Detector) markSuspect(nodeID, addr string) {
	info, known := d.table.Get(nodeID)
	incarnation := uint64(0)
	if known {
		incarnation = info.Incarnation
	}

	update := GossipUpdate{NodeID: nodeID, Address: addr, State: Suspect, Incarnation: incarnation}
	changed, _ := d.table.Merge(update)
	if !changed {
		return
	}
	d.diss.Add(update)
	d.scheduleDeath(nodeID, addr, incarnation)
}

func (d *Detector) scheduleDeath(nodeID, addr string, incarnation uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.suspectTimers[nodeID]; ok {
		existing.Stop()
	}
	d.suspectTimers[nodeID] = time.AfterFunc(d.config.SuspectTimeout, func() {
		update := GossipUpdate{NodeID: nodeID, Address: addr, State: Dead, Incarnation: incarnation}
		changed, _ := d.table.Merge(update)
		if changed {
			d.diss.Add(update)
		}
	})
}

func (d *Detector) cancelSuspectTimer(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.suspectTimers[nodeID]; ok {
		timer.Stop()
		delete(d.suspectTimers, nodeID)
	}
}

func (d *Detector) mergeAck(updates []GossipUpdate) {
	for _, u := range updates {
		changed, refuted := d.table.Merge(u)
		if changed {
			d.diss.Add(u)
		}
		if refuted {
			if self, ok := d.table.Self(); ok {
				d.diss.Add(GossipUpdate{NodeID: self.NodeID, Address: self.Address, State: Alive, Incarnation: self.Incarnation})
			}
		}
	}
}

// Stop cancels every pending Suspect->Dead timer, for clean shutdown.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, timer := range d.suspectTimers {
		timer.Stop()
	}
	d.suspectTimers = make(map[string]*time.Timer)
}
