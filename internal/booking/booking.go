// Package booking is the side-effect collaborator of a call session. The tool
// router stays read-only; when the assistant confirms an appointment in
// conversation, the workflow here writes the booking through an external sink
// and queues a confirmation SMS. Sink failures never fail the call.
package booking

import (
	"context"
	"time"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// Sink persists a new booking record. Implementations are external
// collaborators; the call core never owns the schema.
type Sink interface {
	CreateBooking(ctx context.Context, b tenant.Booking) error
}

// SMSSink queues a confirmation text message to the caller.
type SMSSink interface {
	SendConfirmation(ctx context.Context, toPhone, body string) error
}

// CallLog is the append-only record of one finished call.
type CallLog struct {
	CallSID     string
	StreamSID   string
	TenantID    string
	CallerPhone string

	StartedAt time.Time
	EndedAt   time.Time

	// Outcome is the terminal reason: "farewell", "carrier_closed", "idle",
	// "drained", or "error".
	Outcome string

	// Transcript is the rendered conversation, one line per turn.
	Transcript string

	ToolCalls  int
	BargeIns   int
	Reconnects int

	AudioBytesIn  int64
	AudioBytesOut int64
}

// CallLogSink appends a finished call's record.
type CallLogSink interface {
	WriteCallLog(ctx context.Context, log CallLog) error
}
