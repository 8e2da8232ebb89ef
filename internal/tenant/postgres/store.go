// Package postgres implements tenant.Store on PostgreSQL via pgx. The schema
// (tenants, services, working_hours, policies, faqs, bookings) is owned by the
// administration surface; this store only reads it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// Store is a read-only PostgreSQL tenant store. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ tenant.Store = (*Store)(nil)

// NewStore connects a pool to the database at dsn and verifies it with a
// ping.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tenant store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tenant store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant store: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for sinks that share the connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Snapshot implements [tenant.Store]. key matches either the tenant id or the
// dialed number.
func (s *Store) Snapshot(ctx context.Context, key string) (*tenant.Snapshot, error) {
	const q = `
		SELECT id, display_name, industry, language, tone, dialed_number,
		       greeting_text, greeting_audio_url,
		       voice_provider, voice_name, voice_sample_rate, voice_encoding,
		       prompt_vars,
		       max_tool_calls_per_turn, tool_timeout_ms, tool_turn_budget_ms
		FROM tenants
		WHERE id = $1 OR dialed_number = $1`

	var (
		snap          tenant.Snapshot
		promptVars    []byte
		toolTimeoutMS int
		turnBudgetMS  int
	)
	err := s.pool.QueryRow(ctx, q, key).Scan(
		&snap.ID, &snap.DisplayName, &snap.Industry, &snap.Language, &snap.Tone,
		&snap.DialedNumber, &snap.GreetingText, &snap.GreetingAudioURL,
		&snap.Voice.Provider, &snap.Voice.Voice, &snap.Voice.SampleRate,
		&snap.Voice.Encoding, &promptVars,
		&snap.Tools.MaxCallsPerTurn, &toolTimeoutMS, &turnBudgetMS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant store: snapshot %q: %w", key, err)
	}

	if len(promptVars) > 0 {
		if err := json.Unmarshal(promptVars, &snap.PromptVars); err != nil {
			return nil, fmt.Errorf("tenant store: snapshot %q: prompt vars: %w", key, err)
		}
	}
	snap.Tools.PerCallTimeout = time.Duration(toolTimeoutMS) * time.Millisecond
	snap.Tools.TurnBudget = time.Duration(turnBudgetMS) * time.Millisecond
	return &snap, nil
}

// Services implements [tenant.Store].
func (s *Store) Services(ctx context.Context, tenantID string) ([]tenant.Service, error) {
	const q = `
		SELECT name, description, price, duration_min
		FROM services
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant store: services: %w", err)
	}
	defer rows.Close()

	var out []tenant.Service
	for rows.Next() {
		var sv tenant.Service
		if err := rows.Scan(&sv.Name, &sv.Description, &sv.Price, &sv.DurationMin); err != nil {
			return nil, fmt.Errorf("tenant store: services: scan: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// WorkingHours implements [tenant.Store].
func (s *Store) WorkingHours(ctx context.Context, tenantID string) ([]tenant.DayHours, error) {
	const q = `
		SELECT day, open_time, close_time, closed
		FROM working_hours
		WHERE tenant_id = $1
		ORDER BY day_order`

	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant store: working hours: %w", err)
	}
	defer rows.Close()

	var out []tenant.DayHours
	for rows.Next() {
		var dh tenant.DayHours
		if err := rows.Scan(&dh.Day, &dh.Open, &dh.Close, &dh.Closed); err != nil {
			return nil, fmt.Errorf("tenant store: working hours: scan: %w", err)
		}
		out = append(out, dh)
	}
	return out, rows.Err()
}

// Policies implements [tenant.Store].
func (s *Store) Policies(ctx context.Context, tenantID, topic string) ([]tenant.Policy, error) {
	const q = `
		SELECT topic, title, body
		FROM policies
		WHERE tenant_id = $1 AND ($2 = '' OR topic = $2)
		ORDER BY topic, title`

	rows, err := s.pool.Query(ctx, q, tenantID, topic)
	if err != nil {
		return nil, fmt.Errorf("tenant store: policies: %w", err)
	}
	defer rows.Close()

	var out []tenant.Policy
	for rows.Next() {
		var p tenant.Policy
		if err := rows.Scan(&p.Topic, &p.Title, &p.Body); err != nil {
			return nil, fmt.Errorf("tenant store: policies: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FAQs implements [tenant.Store].
func (s *Store) FAQs(ctx context.Context, tenantID, topic string) ([]tenant.FAQ, error) {
	const q = `
		SELECT topic, question, answer
		FROM faqs
		WHERE tenant_id = $1 AND ($2 = '' OR topic = $2)
		ORDER BY topic, question`

	rows, err := s.pool.Query(ctx, q, tenantID, topic)
	if err != nil {
		return nil, fmt.Errorf("tenant store: faqs: %w", err)
	}
	defer rows.Close()

	var out []tenant.FAQ
	for rows.Next() {
		var f tenant.FAQ
		if err := rows.Scan(&f.Topic, &f.Question, &f.Answer); err != nil {
			return nil, fmt.Errorf("tenant store: faqs: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestBooking implements [tenant.Store].
func (s *Store) LatestBooking(ctx context.Context, tenantID, customerPhone string) (*tenant.Booking, error) {
	const q = `
		SELECT id, tenant_id, customer_name, customer_phone, service, starts_at, status, notes
		FROM bookings
		WHERE tenant_id = $1 AND customer_phone = $2
		ORDER BY starts_at DESC
		LIMIT 1`

	return s.scanBooking(s.pool.QueryRow(ctx, q, tenantID, customerPhone))
}

// BookingByID implements [tenant.Store].
func (s *Store) BookingByID(ctx context.Context, tenantID, bookingID string) (*tenant.Booking, error) {
	const q = `
		SELECT id, tenant_id, customer_name, customer_phone, service, starts_at, status, notes
		FROM bookings
		WHERE tenant_id = $1 AND id = $2`

	return s.scanBooking(s.pool.QueryRow(ctx, q, tenantID, bookingID))
}

func (s *Store) scanBooking(row pgx.Row) (*tenant.Booking, error) {
	var b tenant.Booking
	err := row.Scan(&b.ID, &b.TenantID, &b.CustomerName, &b.CustomerPhone,
		&b.Service, &b.StartsAt, &b.Status, &b.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant store: booking: %w", err)
	}
	return &b, nil
}
