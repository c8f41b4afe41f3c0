package ring

import (
	"fmt"
	"testing"
)

func TestOwnerEmptyRing(t *testing.T) {
	r := New(DefaultVirtualNodes)
	if _, ok := r.Owner("anything"); ok {
		t.Fatalf("expected ok=false for empty ring")
	}
}

func TestOwnerDeterministic(t *testing.T) {
	r := New(DefaultVirtualNodes)
	r.Add("node-a")
	r.Add("node-b")
	r.Add("node-c")

	keys := []string{"wf-1", "wf-2", "wf-3", "wf-4", "wf-5"}
	first := make(map[string]string)
	for _, k := range keys {
		owner, ok := r.Owner(k)
		if !ok {
			t.Fatalf("expected an owner for %q", k)
		}
		first[k] = owner
	}

	for i := 0; i < 5; i++ {
		for _, k := range keys {
			owner, _ := r.Owner(k)
			if owner != first[k] {
				t.Fatalf("owner(%q) not deterministic: got %q, want %q", k, owner, first[k])
			}
		}
	}
}

func TestAddRemoveIdempotent(t *testing.T) {
	r := New(10)
	r.Add("node-a")
	r.Add("node-a")
	if len(r.Members()) != 1 {
		t.Fatalf("expected 1 member after double add, got %d", len(r.Members()))
	}

	r.Remove("node-a")
	r.Remove("node-a")
	if len(r.Members()) != 0 {
		t.Fatalf("expected 0 members after double remove, got %d", len(r.Members()))
	}
	if _, ok := r.Owner("key"); ok {
		t.Fatalf("expected empty ring after removing sole member")
	}
}

func TestMembersReflectsRing(t *testing.T) {
	r := New(10)
	r.Add("a")
	r.Add("b")
	r.Remove("a")

	members := r.Members()
	if len(members) != 1 || members[0] != "b" {
		t.Fatalf("expected members=[b], got %v", members)
	}
	if r.Contains("a") {
		t.Fatalf("expected a removed")
	}
	if !r.Contains("b") {
		t.Fatalf("expected b present")
	}
}

func TestDistributionIsReasonablyBalanced(t *testing.T) {
	r := New(DefaultVirtualNodes)
	for i := 0; i < 5; i++ {
		r.Add(fmt.Sprintf("node-%d", i))
	}

	counts := make(map[string]int)
	const sampleSize = 5000
	for i := 0; i < sampleSize; i++ {
		owner, ok := r.Owner(fmt.Sprintf("wf-%d", i))
		if !ok {
			t.Fatalf("expected an owner")
		}
		counts[owner]++
	}

	if len(counts) != 5 {
		t.Fatalf("expected all 5 nodes to own at least one key, got %d", len(counts))
	}
	expected := sampleSize / 5
	for node, count := range counts {
		if count < expected/3 || count > expected*3 {
			t.Fatalf("node %q owns %d keys, far from expected ~%d", node, count, expected)
		}
	}
}

func TestApplyWiresMembershipEvents(t *testing.T) {
	r := New(10)
	r.Apply(ChangeEvent{NodeID: "a", Alive: true})
	if !r.Contains("a") {
		t.Fatalf("expected a added via Apply")
	}
	r.Apply(ChangeEvent{NodeID: "a", Alive: false})
	if r.Contains("a") {
		t.Fatalf("expected a removed via Apply")
	}
}
