package tenant

import (
	"context"
	"sync"
	"testing"
	"time"
)

// countingStore wraps MemStore and counts Snapshot hits.
type countingStore struct {
	*MemStore
	mu   sync.Mutex
	hits int
}

func (c *countingStore) Snapshot(ctx context.Context, key string) (*Snapshot, error) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return c.MemStore.Snapshot(ctx, key)
}

func (c *countingStore) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func newTestStore() *countingStore {
	ms := NewMemStore()
	ms.AddTenant(&Snapshot{
		ID:           "acme-plumb",
		DisplayName:  "Acme Plumbing",
		DialedNumber: "+61255501234",
		GreetingText: "Acme Plumbing, how can I help?",
	})
	return &countingStore{MemStore: ms}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	r := NewResolver(store)

	first := r.Resolve(context.Background(), "acme-plumb")
	second := r.Resolve(context.Background(), "acme-plumb")

	if first.DisplayName != "Acme Plumbing" {
		t.Fatalf("DisplayName = %q", first.DisplayName)
	}
	if second != first {
		t.Error("second resolve did not return the cached snapshot")
	}
	if store.Hits() != 1 {
		t.Errorf("store hits = %d, want 1", store.Hits())
	}
}

func TestResolveExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewResolver(store, WithTTL(5*time.Minute), WithClock(func() time.Time { return clock() }))

	r.Resolve(context.Background(), "acme-plumb")
	now = now.Add(5*time.Minute + time.Second)
	r.Resolve(context.Background(), "acme-plumb")

	if store.Hits() != 2 {
		t.Errorf("store hits = %d, want 2 after TTL expiry", store.Hits())
	}
}

func TestResolveByDialedNumber(t *testing.T) {
	t.Parallel()

	r := NewResolver(newTestStore())
	snap := r.Resolve(context.Background(), "+61255501234")
	if snap.ID != "acme-plumb" {
		t.Errorf("ID = %q, want acme-plumb", snap.ID)
	}
}

func TestResolveUnknownYieldsGeneric(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	r := NewResolver(store)

	snap := r.Resolve(context.Background(), "nobody")
	if !snap.Generic {
		t.Fatal("unknown tenant snapshot is not generic")
	}
	if snap.GreetingText == "" {
		t.Error("generic snapshot has no greeting")
	}
	if snap.Tools.MaxCallsPerTurn != 2 {
		t.Errorf("generic tool budget = %d, want 2", snap.Tools.MaxCallsPerTurn)
	}

	// Unknowns are not cached, so a later provisioned tenant is found.
	store.AddTenant(&Snapshot{ID: "nobody", DisplayName: "Nobody Inc"})
	snap = r.Resolve(context.Background(), "nobody")
	if snap.Generic {
		t.Error("freshly provisioned tenant still resolves generic")
	}
}

func TestResolveFillsToolPolicyDefaults(t *testing.T) {
	t.Parallel()

	r := NewResolver(newTestStore())
	snap := r.Resolve(context.Background(), "acme-plumb")

	if snap.Tools.MaxCallsPerTurn != 2 {
		t.Errorf("MaxCallsPerTurn = %d, want 2", snap.Tools.MaxCallsPerTurn)
	}
	if snap.Tools.PerCallTimeout != 400*time.Millisecond {
		t.Errorf("PerCallTimeout = %v, want 400ms", snap.Tools.PerCallTimeout)
	}
	if snap.Tools.TurnBudget != time.Second {
		t.Errorf("TurnBudget = %v, want 1s", snap.Tools.TurnBudget)
	}
}

func TestResolveAppliesConfiguredToolDefaults(t *testing.T) {
	t.Parallel()

	r := NewResolver(newTestStore(), WithToolDefaults(ToolPolicy{
		MaxCallsPerTurn: 5,
		PerCallTimeout:  250 * time.Millisecond,
	}))

	// A tenant with no explicit limits inherits the configured defaults;
	// fields the override leaves zero keep the built-ins.
	snap := r.Resolve(context.Background(), "acme-plumb")
	if snap.Tools.MaxCallsPerTurn != 5 {
		t.Errorf("MaxCallsPerTurn = %d, want 5", snap.Tools.MaxCallsPerTurn)
	}
	if snap.Tools.PerCallTimeout != 250*time.Millisecond {
		t.Errorf("PerCallTimeout = %v, want 250ms", snap.Tools.PerCallTimeout)
	}
	if snap.Tools.TurnBudget != time.Second {
		t.Errorf("TurnBudget = %v, want 1s", snap.Tools.TurnBudget)
	}

	// The generic snapshot carries the same defaults.
	generic := r.Resolve(context.Background(), "nobody")
	if !generic.Generic {
		t.Fatal("unknown tenant snapshot is not generic")
	}
	if generic.Tools.MaxCallsPerTurn != 5 {
		t.Errorf("generic MaxCallsPerTurn = %d, want 5", generic.Tools.MaxCallsPerTurn)
	}
	if empty := r.Resolve(context.Background(), ""); empty.Tools.MaxCallsPerTurn != 5 {
		t.Errorf("empty-key MaxCallsPerTurn = %d, want 5", empty.Tools.MaxCallsPerTurn)
	}
}
