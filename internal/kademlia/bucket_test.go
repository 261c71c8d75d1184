package kademlia

import "testing"

// Inserting 9 distinct ids into a bucket should evict the oldest of the
// first 8, leaving the 9th at the head.
func TestBucketAdmissionEvictsOldestOnOverflow(t *testing.T) {
	b := NewBucket(Zero, Max)

	var inserted []Node
	for i := 1; i <= 8; i++ {
		n := nodeWithID(t, byte(i), uint16(i))
		if !b.Add(n) {
			t.Fatalf("expected insert %d to report true", i)
		}
		inserted = append(inserted, n)
	}
	if len(b.Nodes) != BucketCapacity {
		t.Fatalf("expected %d nodes, got %d", BucketCapacity, len(b.Nodes))
	}

	ninth := nodeWithID(t, 9, 9)
	if !b.Add(ninth) {
		t.Fatal("expected insert 9 to report true")
	}

	if len(b.Nodes) != BucketCapacity {
		t.Fatalf("expected bucket to stay at capacity %d, got %d", BucketCapacity, len(b.Nodes))
	}
	if !b.Nodes[0].ID.Equal(ninth.ID) {
		t.Fatalf("expected the 9th node at the head, got %v", b.Nodes[0].ID)
	}
	if _, ok := b.indexOfPublic(inserted[0].ID); ok {
		t.Fatalf("expected the oldest node (id=1) to have been evicted")
	}
}

// indexOfPublic is a small test-only wrapper so the test doesn't reach past
// the package boundary for an internal helper it already has access to.
func (b *Bucket) indexOfPublic(id ID) (int, bool) {
	i := b.indexOf(id)
	return i, i >= 0
}

// Re-adding an existing id should refresh its contact info in place, not
// reorder the list, and report false (no new node inserted).
func TestBucketReAddRefreshesWithoutReordering(t *testing.T) {
	b := NewBucket(Zero, Max)
	first := nodeWithID(t, 1, 1)
	second := nodeWithID(t, 2, 2)
	b.Add(first)
	b.Add(second)
	// head is currently `second`; re-add `first` with new contact info
	refreshed := first
	refreshed.Endpoint.Port = 7000

	if b.Add(refreshed) {
		t.Fatal("expected re-add of an existing id to report false")
	}
	if len(b.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(b.Nodes))
	}
	if !b.Nodes[0].ID.Equal(second.ID) {
		t.Fatal("expected list position to remain unchanged on refresh")
	}
	idx := b.indexOf(first.ID)
	if b.Nodes[idx].Endpoint.Port != 7000 {
		t.Fatalf("expected refreshed port 7000, got %d", b.Nodes[idx].Endpoint.Port)
	}
}

// ClosestNodes should return results in ascending XOR-distance order.
func TestClosestNodesOrdering(t *testing.T) {
	b := NewBucket(Zero, Max)
	b.Add(nodeWithID(t, 0x01, 1))
	b.Add(nodeWithID(t, 0x02, 2))
	b.Add(nodeWithID(t, 0x04, 3))
	b.Add(nodeWithID(t, 0xff, 4))

	closest := b.ClosestNodes(Zero, 3)
	if len(closest) != 3 {
		t.Fatalf("expected 3 results, got %d", len(closest))
	}
	want := []byte{0x01, 0x02, 0x04}
	for i, n := range closest {
		if n.ID[IDLength-1] != want[i] {
			t.Fatalf("position %d: got id byte %x, want %x", i, n.ID[IDLength-1], want[i])
		}
	}
}

func TestBucketInvariantAllNodesWithinRange(t *testing.T) {
	start := idFromHexByte(0x10)
	end := idFromHexByte(0x1f)
	b := NewBucket(start, end)
	in := idFromHexByte(0x15)
	b.Add(NewNode(in, mustEndpoint(t)))

	for _, n := range b.Nodes {
		if !b.Contains(n.ID) {
			t.Fatalf("node %v violates bucket range [%v, %v]", n.ID, start, end)
		}
	}
}

func mustEndpoint(t *testing.T) Endpoint {
	t.Helper()
	e, err := NewEndpoint("127.0.0.1", 6881)
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	return e
}
