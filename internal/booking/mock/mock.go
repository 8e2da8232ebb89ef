// Package mock provides in-memory booking sinks that record every invocation
// for assertions.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// SMS is one recorded confirmation message.
type SMS struct {
	To   string
	Body string
}

// Sinks records booking, SMS, and call-log invocations. Safe for concurrent
// use. The zero value is ready.
type Sinks struct {
	// Err, when set, is returned from every sink method.
	Err error

	mu       sync.Mutex
	bookings []tenant.Booking
	sms      []SMS
	logs     []booking.CallLog
}

var (
	_ booking.Sink        = (*Sinks)(nil)
	_ booking.SMSSink     = (*Sinks)(nil)
	_ booking.CallLogSink = (*Sinks)(nil)
)

// CreateBooking implements [booking.Sink].
func (s *Sinks) CreateBooking(_ context.Context, b tenant.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.bookings = append(s.bookings, b)
	return nil
}

// SendConfirmation implements [booking.SMSSink].
func (s *Sinks) SendConfirmation(_ context.Context, toPhone, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sms = append(s.sms, SMS{To: toPhone, Body: body})
	return nil
}

// WriteCallLog implements [booking.CallLogSink].
func (s *Sinks) WriteCallLog(_ context.Context, log booking.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.logs = append(s.logs, log)
	return nil
}

// Bookings returns a copy of the recorded bookings.
func (s *Sinks) Bookings() []tenant.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenant.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

// Messages returns a copy of the recorded SMS confirmations.
func (s *Sinks) Messages() []SMS {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SMS, len(s.sms))
	copy(out, s.sms)
	return out
}

// CallLogs returns a copy of the recorded call logs.
func (s *Sinks) CallLogs() []booking.CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.CallLog, len(s.logs))
	copy(out, s.logs)
	return out
}
