package membership

import (
	"sort"
	"sync"
)

// ChangeListener is notified whenever Merge changes a node's derived
// Alive/not-Alive status. Table has no reference to package ring; callers
// (the cluster facade) wire Subscribe's callback to ring.Ring.Apply,
// satisfying the "ring reads membership, does not mutate it" ownership
// rule (spec §3).
type ChangeListener func(nodeID string, alive bool)

// Table is the membership table: NodeId -> NodeInfo, guarded by a single
// readers-writer lock per spec §5 ("many concurrent readers, single
// writer per gossip tick").
type Table struct {
	mu        sync.RWMutex
	nodes     map[string]NodeInfo
	localID   string
	listeners []ChangeListener
}

// NewTable constructs a Table for localID, the node this process runs as
// (used by Merge to detect, and refute, false suspicions about itself).
func NewTable(localID string) *Table {
	return &Table{
		nodes:   make(map[string]NodeInfo),
		localID: localID,
	}
}

// Subscribe registers fn to be called after every Merge that changes a
// node's Alive/not-Alive projection. Not retroactive: call Subscribe
// before seeding the table if the listener must see the initial Alive
// entries.
func (t *Table) Subscribe(fn ChangeListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Self returns the table's current record for the local node, if any.
func (t *Table) Self() (NodeInfo, bool) {
	return t.Get(t.localID)
}

// LocalID returns the identifier this table treats as "self" for
// refutation purposes.
func (t *Table) LocalID() string { return t.localID }

// Get returns the current record for nodeID.
func (t *Table) Get(nodeID string) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.nodes[nodeID]
	return info, ok
}

// Snapshot returns every current record, sorted by NodeID for determinism.
func (t *Table) Snapshot() []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]NodeInfo, 0, len(t.nodes))
	for _, info := range t.nodes {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// AliveMembers returns the NodeIDs currently derived Alive, sorted.
func (t *Table) AliveMembers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.nodes))
	for id, info := range t.nodes {
		if info.State == Alive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Merge applies an incoming GossipUpdate per the spec §4.4 rule: accept
// iff the update's incarnation strictly exceeds the local record's, OR
// the incarnations are equal and the update's state has strictly higher
// Priority(). When the update concerns the local node and would mark it
// Suspect or Dead at an incarnation equal to or higher than the one we
// already hold, we instead refute: raise our own incarnation above both
// and record Alive, and Merge returns that refutation as the effective
// change. A Suspect or Dead claim about the local node at a lower
// incarnation than ours is rejected as stale and does not trigger a
// refutation.
//
// Returns (changed, refuted): changed is true if the table's record for
// update.NodeID was modified (including by refutation); refuted is true
// if this call triggered a self-refutation rather than accepting the
// update as given.
func (t *Table) Merge(update GossipUpdate) (changed bool, refuted bool) {
	t.mu.Lock()

	if update.NodeID == t.localID && (update.State == Suspect || update.State == Dead) {
		local, ok := t.nodes[t.localID]
		if !ok || update.Incarnation >= local.Incarnation {
			nextIncarnation := update.Incarnation + 1
			if ok && local.Incarnation >= nextIncarnation {
				nextIncarnation = local.Incarnation + 1
			}
			refutation := NodeInfo{
				NodeID:      t.localID,
				Address:     local.Address,
				State:       Alive,
				Incarnation: nextIncarnation,
			}
			if update.Address != "" && refutation.Address == "" {
				refutation.Address = update.Address
			}
			t.nodes[t.localID] = refutation
			t.mu.Unlock()
			t.notify(t.localID, true)
			return true, true
		}
	}

	existing, known := t.nodes[update.NodeID]
	accept := !known ||
		update.Incarnation > existing.Incarnation ||
		(update.Incarnation == existing.Incarnation && update.State.Priority() > existing.State.Priority())

	if !accept {
		t.mu.Unlock()
		return false, false
	}

	wasAlive := known && existing.State == Alive
	t.nodes[update.NodeID] = NodeInfo{
		NodeID:      update.NodeID,
		Address:     update.Address,
		State:       update.State,
		Incarnation: update.Incarnation,
	}
	nowAlive := update.State == Alive
	t.mu.Unlock()

	if wasAlive != nowAlive {
		t.notify(update.NodeID, nowAlive)
	}
	return true, false
}

func (t *Table) notify(nodeID string, alive bool) {
	t.mu.RLock()
	listeners := make([]ChangeListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn(nodeID, alive)
	}
}
