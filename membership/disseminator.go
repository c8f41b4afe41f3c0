package membership

import (
	"math"
	"sort"
	"sync"
)

// transmissionConstant is the "c" in maxTransmissions = c * ceil(log2(N+1))
// from spec §4.4. A small constant keeps per-update overhead bounded
// while still guaranteeing O(log N) expected dissemination rounds.
const transmissionConstant = 3

// trackedUpdate pairs a GossipUpdate with how many times it has already
// been piggybacked.
type trackedUpdate struct {
	update GossipUpdate
	sent   int
}

// Disseminator holds the bounded set of GossipUpdates still being
// actively piggybacked onto outgoing protocol messages. Each update is
// retired once its transmission counter reaches maxTransmissions,
// recomputed whenever the known cluster size changes (spec §9).
type Disseminator struct {
	mu      sync.Mutex
	pending map[string]*trackedUpdate // keyed by NodeID: latest update wins
	maxTx   int
}

// NewDisseminator constructs a Disseminator with an initial cluster-size
// estimate (used to seed maxTransmissions; 1 is a safe default for a
// node that hasn't joined anyone yet).
func NewDisseminator(initialClusterSize int) *Disseminator {
	d := &Disseminator{pending: make(map[string]*trackedUpdate)}
	d.SetClusterSize(initialClusterSize)
	return d
}

// SetClusterSize recomputes maxTransmissions = c * ceil(log2(N+1)) for
// the current alive-member count N. Call this whenever membership size
// changes (spec §9's resolution of the "what bounds a rumor's
// transmission count" open question).
func (d *Disseminator) SetClusterSize(n int) {
	if n < 0 {
		n = 0
	}
	maxTx := int(math.Ceil(math.Log2(float64(n+1)))) * transmissionConstant
	if maxTx < transmissionConstant {
		maxTx = transmissionConstant
	}

	d.mu.Lock()
	d.maxTx = maxTx
	d.mu.Unlock()
}

// Add enqueues update for dissemination, replacing any pending update
// about the same NodeID (the newest claim about a node is always what
// gets spread; stale updates about the same node don't accumulate
// separate transmission budgets).
func (d *Disseminator) Add(update GossipUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[update.NodeID] = &trackedUpdate{update: update}
}

// Piggyback returns up to fanout updates to attach to an outgoing
// message, incrementing each one's transmission counter and retiring any
// that reach maxTransmissions. Updates with the fewest transmissions so
// far are preferred, so every update gets a fair chance to spread before
// newer ones crowd it out.
func (d *Disseminator) Piggyback(fanout int) []GossipUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()

	candidates := make([]*trackedUpdate, 0, len(d.pending))
	for _, tu := range d.pending {
		candidates = append(candidates, tu)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sent != candidates[j].sent {
			return candidates[i].sent < candidates[j].sent
		}
		return candidates[i].update.NodeID < candidates[j].update.NodeID
	})

	if fanout > len(candidates) {
		fanout = len(candidates)
	}

	out := make([]GossipUpdate, 0, fanout)
	for i := 0; i < fanout; i++ {
		tu := candidates[i]
		out = append(out, tu.update)
		tu.sent++
		if tu.sent >= d.maxTx {
			delete(d.pending, tu.update.NodeID)
		}
	}
	return out
}

// Len reports the number of updates still pending dissemination.
func (d *Disseminator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
