package tenant

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups when the requested record does not
// exist for the given tenant.
var ErrNotFound = errors.New("tenant: not found")

// Store is the read-only tenant data source behind the resolver and the tool
// catalogue. All lookups are tenant-scoped; implementations must never return
// another tenant's data.
type Store interface {
	// Snapshot loads a tenant's configuration by key. Returns ErrNotFound for
	// unknown tenants.
	Snapshot(ctx context.Context, key string) (*Snapshot, error)

	// Services lists a tenant's offered services.
	Services(ctx context.Context, tenantID string) ([]Service, error)

	// WorkingHours lists a tenant's opening hours.
	WorkingHours(ctx context.Context, tenantID string) ([]DayHours, error)

	// Policies lists a tenant's policies, filtered by topic when non-empty.
	Policies(ctx context.Context, tenantID, topic string) ([]Policy, error)

	// FAQs lists a tenant's FAQs, filtered by topic when non-empty.
	FAQs(ctx context.Context, tenantID, topic string) ([]FAQ, error)

	// LatestBooking returns a customer's most recent booking by phone number.
	// Returns ErrNotFound when the customer has none.
	LatestBooking(ctx context.Context, tenantID, customerPhone string) (*Booking, error)

	// BookingByID returns one booking. Returns ErrNotFound when it does not
	// exist for this tenant.
	BookingByID(ctx context.Context, tenantID, bookingID string) (*Booking, error)
}
