package krpc

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// A tid should, at any instant, sit in exactly one of the free pool or the
// borrowed map, never both and never neither.
func TestRegistryFreeBorrowedDisjoint(t *testing.T) {
	base := time.Unix(0, 0)
	r := newRegistryWithClock(fixedClock(base))

	seen := make(map[string]bool)
	for _, tid := range r.free {
		if seen[tid] {
			t.Fatalf("tid %q appears twice in the free pool", tid)
		}
		seen[tid] = true
	}
	if len(seen) != r.total {
		t.Fatalf("expected %d distinct free tids, got %d", r.total, len(seen))
	}

	tid, err := r.Create(Context{QueryType: Ping})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, f := range r.free {
		if f == tid {
			t.Fatalf("tid %q present in free pool while borrowed", tid)
		}
	}
	if _, ok := r.borrowed[tid]; !ok {
		t.Fatalf("tid %q missing from borrowed map", tid)
	}

	ctx, ok := r.Finish(tid)
	if !ok || ctx.QueryType != Ping {
		t.Fatalf("Finish: got (%+v, %v)", ctx, ok)
	}
	if _, ok := r.borrowed[tid]; ok {
		t.Fatalf("tid %q still borrowed after Finish", tid)
	}
	found := false
	for _, f := range r.free {
		if f == tid {
			found = true
		}
	}
	if !found {
		t.Fatalf("tid %q not returned to free pool after Finish", tid)
	}
}

func TestRegistryCreateGetFinishLifecycle(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	r := newRegistryWithClock(func() time.Time { return clock })

	ctx := Context{QueryType: FindNode, TargetAddr: "10.0.0.1", TargetPort: 6881}
	tid, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !r.IsValid(tid) {
		t.Fatal("expected freshly created tid to be valid")
	}
	got, ok := r.Get(tid)
	if !ok || got != ctx {
		t.Fatalf("Get: got (%+v, %v), want (%+v, true)", got, ok, ctx)
	}

	if _, ok := r.Finish(tid); !ok {
		t.Fatal("expected Finish to succeed for a borrowed tid")
	}
	if r.IsValid(tid) {
		t.Fatal("expected tid to be invalid after Finish")
	}
	if _, ok := r.Finish(tid); ok {
		t.Fatal("expected a second Finish of the same tid to be a no-op")
	}
}

// A borrowed tid past its TTL is no longer valid, even though it still
// occupies the borrowed map until the next GC pass.
func TestRegistryExpiredTIDIsInvalid(t *testing.T) {
	base := time.Unix(2000, 0)
	clock := base
	r := newRegistryWithClock(func() time.Time { return clock })

	tid, err := r.Create(Context{QueryType: Ping})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock = base.Add(TransactionTTL + time.Second)
	if r.IsValid(tid) {
		t.Fatal("expected tid to be expired")
	}
	if _, ok := r.Get(tid); ok {
		t.Fatal("expected Get to reject an expired tid")
	}
}

// Issuing total+1 back-to-back requests within the expiry window should
// still succeed: the registry forcibly reclaims the oldest-expiring half
// once the free pool and a GC pass are both unable to produce a slot.
func TestRegistrySaturationForciblyReclaims(t *testing.T) {
	base := time.Unix(3000, 0)
	clock := base
	r := newRegistryWithClock(func() time.Time { return clock })

	tids := make([]string, 0, r.total)
	for i := 0; i < r.total; i++ {
		clock = base.Add(time.Duration(i) * time.Millisecond)
		tid, err := r.Create(Context{QueryType: Ping, TargetPort: uint16(i)})
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		tids = append(tids, tid)
	}
	if r.BorrowedCount() != r.total {
		t.Fatalf("expected pool fully borrowed, got %d/%d", r.BorrowedCount(), r.total)
	}

	clock = base.Add(time.Duration(r.total) * time.Millisecond)
	extra, err := r.Create(Context{QueryType: Ping, TargetPort: 9999})
	if err != nil {
		t.Fatalf("expected the (total+1)th request to succeed via forced reclaim, got error: %v", err)
	}

	reclaimed := 0
	for _, tid := range tids {
		if !r.IsValid(tid) {
			reclaimed++
		}
	}
	if reclaimed == 0 {
		t.Fatal("expected at least one prior tid to have been forcibly reclaimed")
	}
	if !r.IsValid(extra) {
		t.Fatal("expected the newly created tid to be valid")
	}

	// the forced reclaim must have picked the oldest-expiring half: tids[0]
	// (created first, so it expires first) must be among the reclaimed.
	if r.IsValid(tids[0]) {
		t.Fatal("expected the earliest-created tid to have been reclaimed first")
	}

	// a response arriving late for a reclaimed tid must not be honored: the
	// registry no longer has a matching context for it.
	if _, ok := r.Get(tids[0]); ok {
		t.Fatal("expected a reclaimed tid to no longer resolve to its original context")
	}
}

func TestRegistryUnknownTIDIsInvalid(t *testing.T) {
	r := NewRegistry()
	if r.IsValid("!!") {
		t.Fatal("expected a tid outside the alphabet to be invalid")
	}
	if _, ok := r.Get("!!"); ok {
		t.Fatal("expected Get on an unknown tid to fail")
	}
}
