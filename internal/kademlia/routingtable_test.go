package kademlia

import "testing"

// Bucket ranges should be pairwise disjoint, and their union plus the local
// id should cover the full id space.
func TestRoutingTableBucketsPartitionIDSpace(t *testing.T) {
	local := Zero
	rt := NewRoutingTable(local)

	buckets := rt.Buckets()
	if len(buckets) == 0 {
		t.Fatal("expected at least one bucket")
	}

	for i, a := range buckets {
		if Less(a.End, a.Start) {
			t.Fatalf("bucket %d has start > end", i)
		}
		if a.Contains(local) {
			t.Fatalf("bucket %d unexpectedly contains the local id", i)
		}
		for j, b := range buckets {
			if i == j {
				continue
			}
			if rangesOverlap(a, b) {
				t.Fatalf("buckets %d and %d overlap: [%v,%v] vs [%v,%v]", i, j, a.Start, a.End, b.Start, b.End)
			}
		}
	}

	// coverage: every byte value's id, plus local, is in exactly one bucket or is local
	for v := 0; v < 256; v++ {
		id := idFromHexByte(byte(v))
		if id.Equal(local) {
			continue
		}
		covered := 0
		for _, b := range buckets {
			if b.Contains(id) {
				covered++
			}
		}
		if covered != 1 {
			t.Fatalf("id %v covered by %d buckets, want exactly 1", id, covered)
		}
	}
}

func rangesOverlap(a, b *Bucket) bool {
	return !Less(a.End, b.Start) && !Less(b.End, a.Start)
}

func TestRoutingTableAddFindRemove(t *testing.T) {
	local := Zero
	rt := NewRoutingTable(local)

	n := nodeWithID(t, 0x42, 1)
	if !rt.Add(n) {
		t.Fatal("expected first add to report true")
	}
	if rt.Add(n) {
		t.Fatal("expected re-add to report false")
	}

	found, ok := rt.Find(n.ID)
	if !ok || !found.ID.Equal(n.ID) {
		t.Fatal("expected to find the added node")
	}

	if !rt.RemoveByID(n.ID) {
		t.Fatal("expected remove to succeed")
	}
	if _, ok := rt.Find(n.ID); ok {
		t.Fatal("expected node to be gone after remove")
	}
}

func TestRoutingTableRemoveByAddrRemovesAllMatches(t *testing.T) {
	local := Zero
	rt := NewRoutingTable(local)

	a1 := nodeWithID(t, 0x10, 0)
	a1.Endpoint.Addr = "1.2.3.4"
	a2 := nodeWithID(t, 0x20, 1)
	a2.Endpoint.Addr = "1.2.3.4"
	other := nodeWithID(t, 0x30, 2)
	other.Endpoint.Addr = "5.6.7.8"

	rt.Add(a1)
	rt.Add(a2)
	rt.Add(other)

	removed := rt.RemoveByAddr("1.2.3.4")
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, ok := rt.Find(other.ID); !ok {
		t.Fatal("expected unrelated node to survive")
	}
}

func TestRoutingTableFindClosestNodesAcrossBuckets(t *testing.T) {
	local := Zero
	rt := NewRoutingTable(local)

	rt.Add(nodeWithID(t, 0x01, 0))
	rt.Add(nodeWithID(t, 0x02, 1))
	rt.Add(nodeWithID(t, 0x04, 2))
	rt.Add(nodeWithID(t, 0xff, 3))

	closest := rt.FindClosestNodes(Zero, 3)
	if len(closest) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(closest))
	}
	want := []byte{0x01, 0x02, 0x04}
	for i, n := range closest {
		if n.ID[IDLength-1] != want[i] {
			t.Fatalf("position %d: got %x, want %x", i, n.ID[IDLength-1], want[i])
		}
	}
}
