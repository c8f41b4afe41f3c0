package membership

// Seed produces the GossipUpdate a joining node sends to a seed address:
// its own identity at incarnation 0, Alive (spec §4.4's Join protocol).
func Seed(nodeID, address string) GossipUpdate {
	return GossipUpdate{NodeID: nodeID, Address: address, State: Alive, Incarnation: 0}
}

// Leave produces the GossipUpdate a node broadcasts on graceful shutdown:
// Left at its current incarnation. Recipients merge it like any other
// update; the ring removes the node because Left is not Alive.
func Leave(self NodeInfo) GossipUpdate {
	return GossipUpdate{NodeID: self.NodeID, Address: self.Address, State: Left, Incarnation: self.Incarnation}
}
