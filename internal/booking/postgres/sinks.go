// Package postgres implements the booking side-effect sinks on PostgreSQL via
// pgx. SMS delivery itself belongs to an external sender; SendConfirmation
// only queues the message in an outbox table that sender drains.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// Sinks implements [booking.Sink], [booking.SMSSink], and
// [booking.CallLogSink] on a shared connection pool, typically the one behind
// the tenant store.
type Sinks struct {
	pool *pgxpool.Pool
}

var (
	_ booking.Sink        = (*Sinks)(nil)
	_ booking.SMSSink     = (*Sinks)(nil)
	_ booking.CallLogSink = (*Sinks)(nil)
)

// NewSinks wraps an existing pool. The caller retains ownership of the pool.
func NewSinks(pool *pgxpool.Pool) *Sinks {
	return &Sinks{pool: pool}
}

// CreateBooking implements [booking.Sink].
func (s *Sinks) CreateBooking(ctx context.Context, b tenant.Booking) error {
	const q = `
		INSERT INTO bookings (id, tenant_id, customer_name, customer_phone,
		                      service, starts_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var startsAt any
	if !b.StartsAt.IsZero() {
		startsAt = b.StartsAt
	}
	_, err := s.pool.Exec(ctx, q,
		b.ID, b.TenantID, b.CustomerName, b.CustomerPhone,
		b.Service, startsAt, b.Status, b.Notes)
	if err != nil {
		return fmt.Errorf("booking sink: insert %q: %w", b.ID, err)
	}
	return nil
}

// SendConfirmation implements [booking.SMSSink] by queuing the message for
// the external sender.
func (s *Sinks) SendConfirmation(ctx context.Context, toPhone, body string) error {
	const q = `
		INSERT INTO sms_outbox (to_phone, body, status)
		VALUES ($1, $2, 'queued')`

	if _, err := s.pool.Exec(ctx, q, toPhone, body); err != nil {
		return fmt.Errorf("sms sink: queue to %q: %w", toPhone, err)
	}
	return nil
}

// WriteCallLog implements [booking.CallLogSink].
func (s *Sinks) WriteCallLog(ctx context.Context, log booking.CallLog) error {
	const q = `
		INSERT INTO call_logs (call_sid, stream_sid, tenant_id, caller_phone,
		                       started_at, ended_at, outcome, transcript,
		                       tool_calls, barge_ins, reconnects,
		                       audio_bytes_in, audio_bytes_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, q,
		log.CallSID, log.StreamSID, log.TenantID, log.CallerPhone,
		log.StartedAt, log.EndedAt, log.Outcome, log.Transcript,
		log.ToolCalls, log.BargeIns, log.Reconnects,
		log.AudioBytesIn, log.AudioBytesOut)
	if err != nil {
		return fmt.Errorf("call log sink: insert %q: %w", log.CallSID, err)
	}
	return nil
}
