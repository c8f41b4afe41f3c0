package membership

import "testing"

func TestDisseminatorRetiresAfterMaxTransmissions(t *testing.T) {
	d := NewDisseminator(3) // small cluster -> small maxTx
	d.Add(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})

	rounds := 0
	for d.Len() > 0 && rounds < 100 {
		d.Piggyback(1)
		rounds++
	}
	if rounds >= 100 {
		t.Fatalf("update was not retired within 100 rounds")
	}
	if d.Len() != 0 {
		t.Fatalf("expected update retired, pending=%d", d.Len())
	}
}

func TestDisseminatorNewestUpdateReplacesOld(t *testing.T) {
	d := NewDisseminator(5)
	d.Add(GossipUpdate{NodeID: "a", State: Alive, Incarnation: 1})
	d.Add(GossipUpdate{NodeID: "a", State: Suspect, Incarnation: 2})

	if d.Len() != 1 {
		t.Fatalf("expected single pending entry per node, got %d", d.Len())
	}
	batch := d.Piggyback(10)
	if len(batch) != 1 || batch[0].State != Suspect || batch[0].Incarnation != 2 {
		t.Fatalf("expected newest update to win, got %+v", batch)
	}
}

func TestDisseminatorFanoutBound(t *testing.T) {
	d := NewDisseminator(10)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		d.Add(GossipUpdate{NodeID: id, State: Alive, Incarnation: 1})
	}

	batch := d.Piggyback(2)
	if len(batch) != 2 {
		t.Fatalf("expected exactly 2 updates respecting fanout bound, got %d", len(batch))
	}
}

func TestDisseminatorClusterSizeRecompute(t *testing.T) {
	d := NewDisseminator(1)
	smallMax := d.maxTx
	d.SetClusterSize(1000)
	if d.maxTx <= smallMax {
		t.Fatalf("expected maxTransmissions to grow with cluster size: small=%d large=%d", smallMax, d.maxTx)
	}
}
