package kademlia

import (
	"sort"
	"time"
)

// BucketCapacity is the maximum number of nodes a single Bucket holds.
const BucketCapacity = 8

// Bucket is an MRU-ordered list of nodes whose ids all fall within
// [Start, End]. Nodes[0] is the most recently touched; Nodes[len-1] is the
// oldest and the first candidate for eviction.
type Bucket struct {
	Start     ID
	End       ID
	Nodes     []Node
	UpdatedAt time.Time
}

// NewBucket creates an empty bucket covering [start, end].
func NewBucket(start, end ID) *Bucket {
	return &Bucket{Start: start, End: end, UpdatedAt: time.Now()}
}

// Contains reports whether id falls within the bucket's XOR range.
func (b *Bucket) Contains(id ID) bool {
	return !Less(id, b.Start) && !Less(b.End, id)
}

// indexOf returns the position of a node with the given id, or -1.
func (b *Bucket) indexOf(id ID) int {
	for i := range b.Nodes {
		if b.Nodes[i].ID.Equal(id) {
			return i
		}
	}
	return -1
}

// Add inserts node at the MRU end, refreshing it in place if already present
// and evicting the tail when the bucket is full, reporting whether a new
// node was inserted (false for a refresh of an existing member).
func (b *Bucket) Add(node Node) bool {
	b.UpdatedAt = time.Now()

	if i := b.indexOf(node.ID); i >= 0 {
		b.Nodes[i].Update(node.Endpoint.Addr, node.Endpoint.Port)
		return false
	}

	if len(b.Nodes) == BucketCapacity {
		b.Nodes = b.Nodes[:len(b.Nodes)-1] // evict the tail (oldest)
	}

	node.Touch()
	b.Nodes = append([]Node{node}, b.Nodes...)
	return true
}

// Remove deletes the node with the given id, if present, and reports whether
// anything was removed.
func (b *Bucket) Remove(id ID) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.Nodes = append(b.Nodes[:i], b.Nodes[i+1:]...)
	return true
}

// RemoveByAddr removes every node whose endpoint address matches addr,
// reporting how many were removed.
func (b *Bucket) RemoveByAddr(addr string) int {
	kept := b.Nodes[:0]
	removed := 0
	for _, n := range b.Nodes {
		if n.Endpoint.Addr == addr {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	b.Nodes = kept
	return removed
}

// ClosestNodes returns the k members of this bucket closest to target, in
// ascending XOR-distance order, ties broken by byte-lexicographic id order.
func (b *Bucket) ClosestNodes(target ID, k int) []Node {
	return closestOf(b.Nodes, target, k)
}

// closestOf sorts a copy of candidates by XOR distance to target (ties
// broken by id order) and returns the first min(k, len(candidates)).
func closestOf(candidates []Node, target ID, k int) []Node {
	sorted := make([]Node, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := sorted[i].ID.Xor(target)
		dj := sorted[j].ID.Xor(target)
		if di == dj {
			return Less(sorted[i].ID, sorted[j].ID)
		}
		return Less(di, dj)
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}
