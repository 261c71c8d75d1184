package kademlia

import (
	"testing"
	"time"
)

func nodeWithID(t *testing.T, last byte, port uint16) Node {
	t.Helper()
	id := idFromHexByte(last)
	endpoint, err := NewEndpoint("127.0.0.1", int(6881+port))
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	return NewNode(id, endpoint)
}

// Compacting a node and decoding it back should yield an equivalent node.
func TestNodeCompactRoundTrip(t *testing.T) {
	n := nodeWithID(t, 0x7a, 3)

	compact, err := n.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(compact) != CompactNodeLen {
		t.Fatalf("expected %d bytes, got %d", CompactNodeLen, len(compact))
	}

	decoded, err := NodeFromCompact(compact)
	if err != nil {
		t.Fatalf("NodeFromCompact: %v", err)
	}
	if !decoded.ID.Equal(n.ID) || !decoded.Endpoint.Equal(n.Endpoint) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, n)
	}
}

func TestNodeFromCompactRejectsWrongLength(t *testing.T) {
	if _, err := NodeFromCompact(make([]byte, CompactNodeLen-1)); err == nil {
		t.Fatal("expected an error for a short buffer")
	}
}

func TestDecodeCompactNodesRoundTrip(t *testing.T) {
	a := nodeWithID(t, 0x01, 0)
	b := nodeWithID(t, 0x02, 1)

	ca, err := a.Compact()
	if err != nil {
		t.Fatalf("Compact a: %v", err)
	}
	cb, err := b.Compact()
	if err != nil {
		t.Fatalf("Compact b: %v", err)
	}
	blob := append(append([]byte{}, ca...), cb...)

	nodes, err := DecodeCompactNodes(blob)
	if err != nil {
		t.Fatalf("DecodeCompactNodes: %v", err)
	}
	if len(nodes) != 2 || !nodes[0].ID.Equal(a.ID) || !nodes[1].ID.Equal(b.ID) {
		t.Fatalf("unexpected decode result: %+v", nodes)
	}
}

func TestDecodeCompactNodesRejectsPartialTrailingEntry(t *testing.T) {
	if _, err := DecodeCompactNodes(make([]byte, CompactNodeLen+1)); err == nil {
		t.Fatal("expected an error for a length that isn't a multiple of CompactNodeLen")
	}
}

func TestNodeIsActive(t *testing.T) {
	n := nodeWithID(t, 0x03, 2)
	if !n.IsActive() {
		t.Fatal("expected a freshly created node to be active")
	}
	n.ActiveAt = time.Now().Add(-2 * StalenessThreshold)
	if n.IsActive() {
		t.Fatal("expected a stale node to be inactive")
	}
}
