// Package dht wires the Kademlia routing table, the KRPC protocol engine, and
// the info-hash store into a running node: the UDP dispatcher, the four
// query/response handler pairs, the outbound sender capability, and the
// periodic maintenance driver.
package dht

import "github.com/Sloaix/torrent-dht/internal/kademlia"

// LocalNode is this process's own identity, built on the same Node type
// remote participants use. It is never stored in its own routing table.
type LocalNode struct {
	Node kademlia.Node
}

// NewLocalNode builds a LocalNode from an id and the advertised endpoint.
func NewLocalNode(id kademlia.ID, endpoint kademlia.Endpoint) LocalNode {
	return LocalNode{Node: kademlia.NewNode(id, endpoint)}
}

// ID returns the local node identifier.
func (l LocalNode) ID() kademlia.ID {
	return l.Node.ID
}

// IsActive always reports true for the local node: there is no remote
// liveness to go stale.
func (l LocalNode) IsActive() bool {
	return true
}
