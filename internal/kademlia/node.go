package kademlia

import (
	"fmt"
	"time"
)

// StalenessThreshold is how long a Node can go without activity before
// IsActive reports false.
const StalenessThreshold = 5 * time.Minute

// CompactNodeLen is the size in bytes of a compact node-info encoding:
// ID(20) || Endpoint(6).
const CompactNodeLen = IDLength + CompactLen

// Node is a remote DHT participant: its identifier, its contact endpoint, and
// the last time we heard from (or touched) it.
type Node struct {
	ID       ID
	Endpoint Endpoint
	ActiveAt time.Time
}

// NewNode constructs a Node with ActiveAt set to now.
func NewNode(id ID, endpoint Endpoint) Node {
	return Node{ID: id, Endpoint: endpoint, ActiveAt: time.Now()}
}

// Update refreshes a node's contact info and activity timestamp in place,
// as happens whenever a previously-known node is re-added or re-pinged.
func (n *Node) Update(addr string, port uint16) {
	n.Endpoint.Addr = addr
	n.Endpoint.Port = port
	n.ActiveAt = time.Now()
}

// Touch refreshes only the activity timestamp, leaving contact info intact.
func (n *Node) Touch() {
	n.ActiveAt = time.Now()
}

// IsActive is a pure, derived view over ActiveAt — it never mutates state.
func (n Node) IsActive() bool {
	return time.Since(n.ActiveAt) < StalenessThreshold
}

// Compact encodes a node as ID(20) || Endpoint(6) = 26 bytes.
func (n Node) Compact() ([]byte, error) {
	endpointBytes, err := n.Endpoint.Compact()
	if err != nil {
		return nil, fmt.Errorf("kademlia: compacting node %s: %w", n.ID, err)
	}
	out := make([]byte, 0, CompactNodeLen)
	out = append(out, n.ID[:]...)
	out = append(out, endpointBytes...)
	return out, nil
}

// NodeFromCompact decodes the 26-byte compact node-info encoding.
func NodeFromCompact(b []byte) (Node, error) {
	if len(b) != CompactNodeLen {
		return Node{}, fmt.Errorf("kademlia: compact node must be %d bytes, got %d", CompactNodeLen, len(b))
	}
	id, err := IDFromBytes(b[:IDLength])
	if err != nil {
		return Node{}, err
	}
	endpoint, err := EndpointFromCompact(b[IDLength:])
	if err != nil {
		return Node{}, err
	}
	return NewNode(id, endpoint), nil
}

// DecodeCompactNodes splits a concatenated compact-node blob (a multiple of
// CompactNodeLen bytes) into individual Nodes.
func DecodeCompactNodes(b []byte) ([]Node, error) {
	if len(b)%CompactNodeLen != 0 {
		return nil, fmt.Errorf("kademlia: compact node list length %d is not a multiple of %d", len(b), CompactNodeLen)
	}
	count := len(b) / CompactNodeLen
	nodes := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		chunk := b[i*CompactNodeLen : (i+1)*CompactNodeLen]
		node, err := NodeFromCompact(chunk)
		if err != nil {
			return nil, fmt.Errorf("kademlia: decoding compact node %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
