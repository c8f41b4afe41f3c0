// Package ring implements the consistent-hash routing component: a
// virtual-node hash ring mapping a WorkflowId to its owning NodeId. The
// ring is a projection of the membership table (package membership) — it
// does not itself probe or gossip; membership owns node liveness, the
// ring only reads it.
package ring

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the recommended virtual-point count per member
// (spec §4.3: V = 150), balancing load distribution against ring size.
const DefaultVirtualNodes = 150

type point struct {
	hash   uint64
	nodeID string
}

// Ring is a virtual-node consistent hash ring. It is safe for concurrent
// use: mutations (Add/Remove) are serialized under a single writer lock;
// Owner/Members take a read lock and return values consistent with some
// past mutation, per spec §5's "readers observe snapshots" guarantee.
type Ring struct {
	mu           sync.RWMutex
	virtualNodes int
	points       []point         // sorted by hash, ascending
	members      map[string]bool // nodeID -> present
}

// New constructs an empty Ring using virtualNodes points per member. A
// non-positive virtualNodes falls back to DefaultVirtualNodes.
func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &Ring{
		virtualNodes: virtualNodes,
		members:      make(map[string]bool),
	}
}

// Add inserts nodeID's virtual points into the ring. Idempotent: adding an
// already-present node is a no-op.
func (r *Ring) Add(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[nodeID] {
		return
	}
	r.members[nodeID] = true

	for i := 0; i < r.virtualNodes; i++ {
		r.points = append(r.points, point{hash: hashVirtualPoint(nodeID, i), nodeID: nodeID})
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i].hash < r.points[j].hash })
}

// Remove deletes nodeID's virtual points from the ring. Idempotent:
// removing an absent node is a no-op.
func (r *Ring) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.members[nodeID] {
		return
	}
	delete(r.members, nodeID)

	filtered := r.points[:0]
	for _, p := range r.points {
		if p.nodeID != nodeID {
			filtered = append(filtered, p)
		}
	}
	r.points = filtered
}

// Owner returns the NodeId owning key: the node at the next virtual point
// clockwise from hash(key), wrapping around to the first point if hash(key)
// exceeds every point. ok is false iff the ring is empty.
func (r *Ring) Owner(key string) (nodeID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return "", false
	}

	h := hashKey(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return r.points[idx].nodeID, true
}

// Members returns the set of distinct node IDs currently in the ring.
func (r *Ring) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for nodeID := range r.members {
		out = append(out, nodeID)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether nodeID currently has virtual points in the
// ring.
func (r *Ring) Contains(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[nodeID]
}

func hashVirtualPoint(nodeID string, index int) uint64 {
	return xxhash.Sum64String(nodeID + "#" + strconv.Itoa(index))
}

func hashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// String renders the ring's member set for logs.
func (r *Ring) String() string {
	return fmt.Sprintf("ring(members=%v)", r.Members())
}
