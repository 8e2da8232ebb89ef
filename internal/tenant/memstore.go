package tenant

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used in tests and single-node development.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	services  map[string][]Service
	hours     map[string][]DayHours
	policies  map[string][]Policy
	faqs      map[string][]FAQ
	bookings  map[string][]Booking
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		snapshots: make(map[string]*Snapshot),
		services:  make(map[string][]Service),
		hours:     make(map[string][]DayHours),
		policies:  make(map[string][]Policy),
		faqs:      make(map[string][]FAQ),
		bookings:  make(map[string][]Booking),
	}
}

// AddTenant registers a tenant snapshot, keyed by its ID and, when set, its
// dialed number.
func (m *MemStore) AddTenant(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ID] = snap
	if snap.DialedNumber != "" {
		m.snapshots[snap.DialedNumber] = snap
	}
}

// SetServices replaces a tenant's service list.
func (m *MemStore) SetServices(tenantID string, services []Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[tenantID] = services
}

// SetWorkingHours replaces a tenant's opening hours.
func (m *MemStore) SetWorkingHours(tenantID string, hours []DayHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[tenantID] = hours
}

// SetPolicies replaces a tenant's policies.
func (m *MemStore) SetPolicies(tenantID string, policies []Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[tenantID] = policies
}

// SetFAQs replaces a tenant's FAQs.
func (m *MemStore) SetFAQs(tenantID string, faqs []FAQ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faqs[tenantID] = faqs
}

// AddBooking appends a booking record.
func (m *MemStore) AddBooking(b Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.TenantID] = append(m.bookings[b.TenantID], b)
}

// Snapshot implements [Store].
func (m *MemStore) Snapshot(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

// Services implements [Store].
func (m *MemStore) Services(_ context.Context, tenantID string) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Service(nil), m.services[tenantID]...), nil
}

// WorkingHours implements [Store].
func (m *MemStore) WorkingHours(_ context.Context, tenantID string) ([]DayHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DayHours(nil), m.hours[tenantID]...), nil
}

// Policies implements [Store].
func (m *MemStore) Policies(_ context.Context, tenantID, topic string) ([]Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Policy
	for _, p := range m.policies[tenantID] {
		if topic == "" || p.Topic == topic {
			out = append(out, p)
		}
	}
	return out, nil
}

// FAQs implements [Store].
func (m *MemStore) FAQs(_ context.Context, tenantID, topic string) ([]FAQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FAQ
	for _, f := range m.faqs[tenantID] {
		if topic == "" || f.Topic == topic {
			out = append(out, f)
		}
	}
	return out, nil
}

// LatestBooking implements [Store].
func (m *MemStore) LatestBooking(_ context.Context, tenantID, customerPhone string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []Booking
	for _, b := range m.bookings[tenantID] {
		if b.CustomerPhone == customerPhone {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartsAt.After(matches[j].StartsAt)
	})
	cp := matches[0]
	return &cp, nil
}

// BookingByID implements [Store].
func (m *MemStore) BookingByID(_ context.Context, tenantID, bookingID string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings[tenantID] {
		if b.ID == bookingID {
			cp := b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
