package membership

import "testing"

func TestMergeAcceptsHigherIncarnation(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", Address: "1.1.1.1:7800", State: Alive, Incarnation: 1})

	changed, refuted := tbl.Merge(GossipUpdate{NodeID: "a", Address: "1.1.1.1:7800", State: Suspect, Incarnation: 2})
	if !changed || refuted {
		t.Fatalf("expected accepted non-refuting update, got changed=%v refuted=%v", changed, refuted)
	}

	info, ok := tbl.Get("a")
	if !ok || info.State != Suspect || info.Incarnation != 2 {
		t.Fatalf("unexpected state after merge: %+v", info)
	}
}

func TestMergeRejectsLowerIncarnation(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 5})

	changed, _ := tbl.Merge(GossipUpdate{NodeID: "a", State: Dead, Incarnation: 3})
	if changed {
		t.Fatalf("expected lower-incarnation update to be rejected")
	}

	info, _ := tbl.Get("a")
	if info.State != Alive || info.Incarnation != 5 {
		t.Fatalf("expected state unchanged, got %+v", info)
	}
}

func TestMergeSameProrityTieBreak(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})

	// Same incarnation, higher priority (Suspect > Alive): accepted.
	changed, _ := tbl.Merge(GossipUpdate{NodeID: "a", State: Suspect, Incarnation: 1})
	if !changed {
		t.Fatalf("expected same-incarnation higher-priority update accepted")
	}

	// Same incarnation, lower-or-equal priority (Alive vs current Suspect): rejected.
	changed, _ = tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})
	if changed {
		t.Fatalf("expected same-incarnation lower-priority update rejected")
	}
}

func TestMergeSameIncarnationLeftOverridesDead(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})

	// The failure detector declares "a" Dead at incarnation 1.
	changed, _ := tbl.Merge(GossipUpdate{NodeID: "a", State: Dead, Incarnation: 1})
	if !changed {
		t.Fatalf("expected Dead update to be accepted")
	}

	// "a" then announces a graceful Left at the same incarnation. Left
	// must strictly outrank Dead so this isn't dropped as a tie.
	changed, _ = tbl.Merge(GossipUpdate{NodeID: "a", State: Left, Incarnation: 1})
	if !changed {
		t.Fatalf("expected same-incarnation Left to override Dead")
	}

	info, ok := tbl.Get("a")
	if !ok || info.State != Left {
		t.Fatalf("expected final state Left, got %+v", info)
	}

	// A stale Dead replay at the same incarnation must not move it back.
	changed, _ = tbl.Merge(GossipUpdate{NodeID: "a", State: Dead, Incarnation: 1})
	if changed {
		t.Fatalf("expected same-incarnation Dead to be rejected once Left is recorded")
	}
}

func TestMergeRefutesFalseSuspicionOfLocalNode(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "local", Address: "addr", State: Alive, Incarnation: 1})

	changed, refuted := tbl.Merge(GossipUpdate{NodeID: "local", State: Suspect, Incarnation: 1})
	if !changed || !refuted {
		t.Fatalf("expected self-refutation, got changed=%v refuted=%v", changed, refuted)
	}

	self, ok := tbl.Get("local")
	if !ok || self.State != Alive || self.Incarnation <= 1 {
		t.Fatalf("expected refutation to raise incarnation above 1 and stay Alive, got %+v", self)
	}
}

func TestMergeNeverIncrementsAnotherNodesIncarnationImplicitly(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})
	info, _ := tbl.Get("a")
	if info.Incarnation != 1 {
		t.Fatalf("expected incarnation to be exactly what was merged, got %d", info.Incarnation)
	}
}

func TestAliveMembersAndSnapshot(t *testing.T) {
	tbl := NewTable("local")
	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})
	tbl.Merge(GossipUpdate{NodeID: "b", State: Alive, Incarnation: 1})
	tbl.Merge(GossipUpdate{NodeID: "c", State: Dead, Incarnation: 1})

	alive := tbl.AliveMembers()
	if len(alive) != 2 || alive[0] != "a" || alive[1] != "b" {
		t.Fatalf("unexpected alive set: %v", alive)
	}

	snapshot := tbl.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 total records, got %d", len(snapshot))
	}
}

func TestSubscribeNotifiesOnAliveTransition(t *testing.T) {
	tbl := NewTable("local")

	var events []string
	tbl.Subscribe(func(nodeID string, alive bool) {
		if alive {
			events = append(events, nodeID+":alive")
		} else {
			events = append(events, nodeID+":dead")
		}
	})

	tbl.Merge(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})
	tbl.Merge(GossipUpdate{NodeID: "a", State: Dead, Incarnation: 2})

	if len(events) != 2 || events[0] != "a:alive" || events[1] != "a:dead" {
		t.Fatalf("unexpected event sequence: %v", events)
	}
}

func TestMergeIdempotentUnderPermutation(t *testing.T) {
	updates := []GossipUpdate{
		{NodeID: "a", State: Alive, Incarnation: 1},
		{NodeID: "b", State: Alive, Incarnation: 1},
		{NodeID: "a", State: Dead, Incarnation: 2},
	}

	orderings := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}
	var first []NodeInfo
	for _, order := range orderings {
		tbl := NewTable("local")
		for _, i := range order {
			tbl.Merge(updates[i])
		}
		snapshot := tbl.Snapshot()
		if first == nil {
			first = snapshot
			continue
		}
		if len(snapshot) != len(first) {
			t.Fatalf("expected consistent snapshot size across orderings")
		}
		for i := range snapshot {
			if snapshot[i] != first[i] {
				t.Fatalf("merge result depends on application order: %+v vs %+v", snapshot, first)
			}
		}
	}
}
