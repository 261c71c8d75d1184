package kademlia

import (
	"sync"
	"time"
)

// RoutingTable is the prefix-tree-derived set of Buckets covering the XOR id
// space [0, 2^160-1] minus the local id. It is owned by one local node for
// the lifetime of the process; buckets are destroyed only alongside the
// table itself. The dispatcher's receive loop and the maintenance driver run
// on separate goroutines and both touch the table, so access is guarded by a
// mutex rather than relying on goroutine confinement alone.
type RoutingTable struct {
	LocalID ID

	mu      sync.Mutex
	buckets []*Bucket
}

// NewRoutingTable builds the initial bucket partitioning around localID by
// walking two cursors from the full id space towards localID, peeling off the
// half that does not contain it as a single bucket at each step. This gives
// the usual Kademlia shape directly, without needing to split a bucket
// lazily as nodes arrive.
func NewRoutingTable(localID ID) *RoutingTable {
	rt := &RoutingTable{LocalID: localID}
	lo, hi := Zero, Max
	for lo != hi {
		mid := midpoint(lo, subOne(hi))
		midPlusOne := addOne(mid)

		localInLeft := !Less(localID, lo) && !Less(mid, localID)
		if localInLeft {
			rt.buckets = append(rt.buckets, NewBucket(midPlusOne, hi))
			hi = mid
		} else {
			rt.buckets = append(rt.buckets, NewBucket(lo, mid))
			lo = midPlusOne
		}
	}
	return rt
}

// Buckets returns a shallow copy of the table's bucket pointers, ordered from
// coarsest (farthest from the local id) to finest (closest to it). Callers
// must not read or write into the returned *Bucket values directly — the
// bucket's own Nodes/UpdatedAt fields are only safe to touch from inside
// RoutingTable's locked methods; use StaleTails for maintenance scans.
func (rt *RoutingTable) Buckets() []*Bucket {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Bucket, len(rt.buckets))
	copy(out, rt.buckets)
	return out
}

// bucketFor returns the unique bucket whose range covers id. Callers must
// hold rt.mu.
func (rt *RoutingTable) bucketFor(id ID) *Bucket {
	for _, b := range rt.buckets {
		if b.Contains(id) {
			return b
		}
	}
	return nil
}

// Add locates the bucket whose range covers node.ID and delegates admission
// to it, reporting whether the node was newly inserted.
func (rt *RoutingTable) Add(node Node) bool {
	if node.ID.Equal(rt.LocalID) {
		return false // the local id is never stored in its own table
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	bucket := rt.bucketFor(node.ID)
	if bucket == nil {
		return false
	}
	return bucket.Add(node)
}

// Remove deletes a specific node by value (matched by id).
func (rt *RoutingTable) Remove(node Node) bool {
	return rt.RemoveByID(node.ID)
}

// RemoveByID deletes the node with the given id from whichever bucket holds
// it.
func (rt *RoutingTable) RemoveByID(id ID) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	bucket := rt.bucketFor(id)
	if bucket == nil {
		return false
	}
	return bucket.Remove(id)
}

// RemoveByAddr removes every node across every bucket whose endpoint address
// equals addr, returning the total number removed. Used by the dispatcher to
// penalise a peer that sent a malformed datagram.
func (rt *RoutingTable) RemoveByAddr(addr string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	total := 0
	for _, b := range rt.buckets {
		total += b.RemoveByAddr(addr)
	}
	return total
}

// FindClosestNodes collects every node across every bucket, stable-sorts by
// XOR distance to target, and returns the first min(k, total).
func (rt *RoutingTable) FindClosestNodes(target ID, k int) []Node {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var all []Node
	for _, b := range rt.buckets {
		all = append(all, b.Nodes...)
	}
	return closestOf(all, target, k)
}

// Find performs a linear scan for an exact id match.
func (rt *RoutingTable) Find(id ID) (Node, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, b := range rt.buckets {
		if i := b.indexOf(id); i >= 0 {
			return b.Nodes[i], true
		}
	}
	return Node{}, false
}

// RandomNode returns the first node in the first non-empty bucket.
func (rt *RoutingTable) RandomNode() (Node, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, b := range rt.buckets {
		if len(b.Nodes) > 0 {
			return b.Nodes[0], true
		}
	}
	return Node{}, false
}

// Len returns the total number of nodes currently stored across all buckets.
func (rt *RoutingTable) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	total := 0
	for _, b := range rt.buckets {
		total += len(b.Nodes)
	}
	return total
}

// StaleTails returns the oldest (tail) node of every non-empty bucket whose
// UpdatedAt is older than maxAge, the standard Kademlia bucket-refresh
// candidate set. Reading bucket contents here under rt.mu (rather than
// letting a caller range over Buckets() and read Nodes/UpdatedAt directly)
// keeps bucket-internal state from being read concurrently with a
// dispatcher-goroutine Add/Remove.
func (rt *RoutingTable) StaleTails(maxAge time.Duration) []Node {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	now := time.Now()
	var tails []Node
	for _, b := range rt.buckets {
		if len(b.Nodes) == 0 || now.Sub(b.UpdatedAt) < maxAge {
			continue
		}
		tails = append(tails, b.Nodes[len(b.Nodes)-1])
	}
	return tails
}
