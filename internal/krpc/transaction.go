package krpc

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// tidAlphabet is the character set transaction ids are drawn from.
const tidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TransactionTTL is how long a borrowed transaction id stays valid before it
// is eligible for garbage collection. 24 hours comfortably outlasts any
// single query/response round trip while still bounding how long a tid can
// be stuck outstanding after a peer goes silent.
const TransactionTTL = 24 * time.Hour

// Context is the per-request state attached to a transaction id when it is
// created, and returned to the caller when the matching response or error
// arrives.
type Context struct {
	QueryType  Query
	TargetAddr string
	TargetPort uint16
	InfoHash   string // hex-encoded; empty unless QueryType needs one
}

type borrowedEntry struct {
	ctx       Context
	expiresAt time.Time
}

// Registry is the fixed pool of 62*62 two-character transaction ids. A tid
// is, at any instant, in exactly one of {free pool, borrowed map} — never
// both, never neither.
type Registry struct {
	mu       sync.Mutex
	free     []string
	borrowed map[string]borrowedEntry
	ttl      time.Duration
	total    int
	now      func() time.Time
}

// NewRegistry builds the full 3844-slot pool, shuffled uniformly at random.
func NewRegistry() *Registry {
	return newRegistryWithClock(time.Now)
}

func newRegistryWithClock(now func() time.Time) *Registry {
	var ids []string
	for _, a := range tidAlphabet {
		for _, b := range tidAlphabet {
			ids = append(ids, string([]rune{a, b}))
		}
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	return &Registry{
		free:     ids,
		borrowed: make(map[string]borrowedEntry),
		ttl:      TransactionTTL,
		total:    len(ids),
		now:      now,
	}
}

// Create allocates a transaction id for ctx, garbage-collecting expired
// borrowings (and, under saturation, forcibly reclaiming the oldest-expiring
// half) to make room first.
func (r *Registry) Create(ctx Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.borrowed) >= r.total/2 {
		r.gcExpiredLocked()
	}
	if len(r.free) == 0 {
		r.reclaimOldestHalfLocked()
	}
	if len(r.free) == 0 {
		return "", fmt.Errorf("krpc: transaction pool exhausted")
	}

	tid := r.free[0]
	r.free = r.free[1:]
	r.borrowed[tid] = borrowedEntry{ctx: ctx, expiresAt: r.now().Add(r.ttl)}
	return tid, nil
}

// gcExpiredLocked moves every expired borrowing back to the free pool.
func (r *Registry) gcExpiredLocked() {
	now := r.now()
	for tid, entry := range r.borrowed {
		if !now.Before(entry.expiresAt) {
			delete(r.borrowed, tid)
			r.free = append(r.free, tid)
		}
	}
}

// reclaimOldestHalfLocked forcibly reclaims the oldest-expiring half of the
// still-borrowed transactions when the pool is fully saturated even after a
// GC pass, so a burst of outstanding queries can't wedge the node entirely.
func (r *Registry) reclaimOldestHalfLocked() {
	if len(r.borrowed) == 0 {
		return
	}
	type kv struct {
		tid     string
		expires time.Time
	}
	entries := make([]kv, 0, len(r.borrowed))
	for tid, entry := range r.borrowed {
		entries = append(entries, kv{tid, entry.expiresAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].expires.Before(entries[j].expires) })

	n := len(entries) / 2
	if n == 0 {
		n = 1
	}
	for _, e := range entries[:n] {
		delete(r.borrowed, e.tid)
		r.free = append(r.free, e.tid)
	}
}

// Get returns the context attached to tid iff it is borrowed and unexpired.
func (r *Registry) Get(tid string) (Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(tid)
}

func (r *Registry) getLocked(tid string) (Context, bool) {
	entry, ok := r.borrowed[tid]
	if !ok || !r.now().Before(entry.expiresAt) {
		return Context{}, false
	}
	return entry.ctx, true
}

// IsValid reports whether tid is currently borrowed and unexpired.
func (r *Registry) IsValid(tid string) bool {
	_, ok := r.Get(tid)
	return ok
}

// Finish returns tid to the free pool and hands back its context. It is a
// no-op (returning false) if tid isn't borrowed; an expired-but-present tid
// is still reclaimable this way.
func (r *Registry) Finish(tid string) (Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.borrowed[tid]
	if !ok {
		return Context{}, false
	}
	delete(r.borrowed, tid)
	r.free = append(r.free, tid)
	return entry.ctx, true
}

// BorrowedCount returns the number of transaction ids currently in flight.
func (r *Registry) BorrowedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.borrowed)
}
