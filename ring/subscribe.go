package ring

// ChangeEvent describes a single membership transition the ring should
// apply. Alive true adds the node, false removes it — the ring only ever
// contains nodes the membership table currently derives as Alive
// (spec §4.3).
type ChangeEvent struct {
	NodeID string
	Alive  bool
}

// Apply wires the ring to a membership change feed without the ring
// importing package membership directly (event-bus pattern: membership
// pushes ChangeEvent values, the ring has no reference back). Callers
// typically pass membership.Table.Subscribe's callback through to this.
func (r *Ring) Apply(event ChangeEvent) {
	if event.Alive {
		r.Add(event.NodeID)
	} else {
		r.Remove(event.NodeID)
	}
}
