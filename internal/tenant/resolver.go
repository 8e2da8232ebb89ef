package tenant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a resolved snapshot stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// defaultToolPolicy applies when a tenant has no explicit limits configured.
var defaultToolPolicy = ToolPolicy{
	MaxCallsPerTurn: 2,
	PerCallTimeout:  400 * time.Millisecond,
	TurnBudget:      time.Second,
}

// Resolver maps a tenant key (custom parameter or dialed number) to a
// configuration snapshot, caching results with a TTL. It never fails: an
// unknown tenant or an unreachable store yields a generic degraded snapshot
// so the call still connects.
type Resolver struct {
	store        Store
	ttl          time.Duration
	now          func() time.Time
	toolDefaults ToolPolicy

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	snap    *Snapshot
	expires time.Time
}

// ResolverOption is a functional option for [NewResolver].
type ResolverOption func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithClock overrides the time source. Tests use it to expire entries without
// sleeping.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithToolDefaults overrides the tool policy applied where a tenant has no
// explicit limits. Zero fields keep the built-in defaults.
func WithToolDefaults(p ToolPolicy) ResolverOption {
	return func(r *Resolver) {
		if p.MaxCallsPerTurn > 0 {
			r.toolDefaults.MaxCallsPerTurn = p.MaxCallsPerTurn
		}
		if p.PerCallTimeout > 0 {
			r.toolDefaults.PerCallTimeout = p.PerCallTimeout
		}
		if p.TurnBudget > 0 {
			r.toolDefaults.TurnBudget = p.TurnBudget
		}
	}
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:        store,
		ttl:          DefaultCacheTTL,
		now:          time.Now,
		toolDefaults: defaultToolPolicy,
		cache:        make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the snapshot for key, from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, key string) *Snapshot {
	if key == "" {
		return r.generic("")
	}

	r.mu.Lock()
	if e, ok := r.cache[key]; ok && r.now().Before(e.expires) {
		r.mu.Unlock()
		return e.snap
	}
	r.mu.Unlock()

	snap, err := r.store.Snapshot(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("tenant lookup failed, serving generic snapshot",
				"tenant", key,
				"error", err)
		}
		// Not cached so a freshly provisioned tenant is picked up on the
		// next call.
		return r.generic(key)
	}

	if snap.Tools.MaxCallsPerTurn == 0 {
		snap.Tools.MaxCallsPerTurn = r.toolDefaults.MaxCallsPerTurn
	}
	if snap.Tools.PerCallTimeout == 0 {
		snap.Tools.PerCallTimeout = r.toolDefaults.PerCallTimeout
	}
	if snap.Tools.TurnBudget == 0 {
		snap.Tools.TurnBudget = r.toolDefaults.TurnBudget
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{snap: snap, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return snap
}

// generic serves the degraded snapshot carrying the resolver's tool defaults.
func (r *Resolver) generic(key string) *Snapshot {
	snap := GenericSnapshot(key)
	snap.Tools = r.toolDefaults
	return snap
}

// Invalidate drops a cached snapshot so the next resolve hits the store.
func (r *Resolver) Invalidate(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// GenericSnapshot builds the degraded snapshot served for unknown tenants.
// The greeting is neutral, there are no tenant collections, and tools that
// need tenant data answer NotFound.
func GenericSnapshot(key string) *Snapshot {
	return &Snapshot{
		ID:           key,
		DisplayName:  "our office",
		Language:     "en",
		Tone:         "friendly",
		GreetingText: "Thank you for calling. How can I help you today?",
		Voice: VoiceConfig{
			Provider:   "deepgram",
			Voice:      "asteria",
			SampleRate: 8000,
			Encoding:   "mulaw",
		},
		Tools:   defaultToolPolicy,
		Generic: true,
	}
}
