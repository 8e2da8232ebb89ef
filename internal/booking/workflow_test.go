package booking_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	bookingmock "github.com/voxdesk-ai/voxdesk/internal/booking/mock"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

func testSnapshot() *tenant.Snapshot {
	return &tenant.Snapshot{ID: "acme-plumb", DisplayName: "Acme Plumbing"}
}

func confirmedHistory() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Content: "123 George St, tomorrow morning"},
		{Role: llm.RoleAssistant, Content: "Booked for tomorrow at 9 AM."},
	}
}

func TestWorkflowFiresOncePerCall(t *testing.T) {
	t.Parallel()

	sinks := &bookingmock.Sinks{}
	w := booking.NewWorkflow(tenant.NewMemStore(), sinks, sinks)
	snap := testSnapshot()

	history := confirmedHistory()
	w.Observe(context.Background(), snap, history, "+61400000001")

	// A later turn repeating the confirmation must not write again.
	history = append(history,
		llm.Message{Role: llm.RoleUser, Content: "Sorry, say that again?"},
		llm.Message{Role: llm.RoleAssistant, Content: "You're booked for tomorrow at 9 AM."},
	)
	w.Observe(context.Background(), snap, history, "+61400000001")

	if got := sinks.Bookings(); len(got) != 1 {
		t.Fatalf("bookings = %d, want 1", len(got))
	}
	if got := sinks.Messages(); len(got) != 1 {
		t.Fatalf("sms = %d, want 1", len(got))
	}
	if !w.Fired() {
		t.Error("Fired() = false after confirmation")
	}
}

func TestWorkflowRecordsBookingFields(t *testing.T) {
	t.Parallel()

	sinks := &bookingmock.Sinks{}
	w := booking.NewWorkflow(tenant.NewMemStore(), sinks, sinks)

	w.Observe(context.Background(), testSnapshot(), confirmedHistory(), "+61400000001")

	got := sinks.Bookings()
	if len(got) != 1 {
		t.Fatalf("bookings = %d, want 1", len(got))
	}
	b := got[0]
	if b.ID == "" {
		t.Error("booking id is empty")
	}
	if b.TenantID != "acme-plumb" || b.CustomerPhone != "+61400000001" {
		t.Errorf("booking = %+v", b)
	}
	if b.Status != "requested" {
		t.Errorf("Status = %q", b.Status)
	}

	msgs := sinks.Messages()
	if msgs[0].To != "+61400000001" {
		t.Errorf("sms to = %q", msgs[0].To)
	}
	if !strings.Contains(msgs[0].Body, "Acme Plumbing") {
		t.Errorf("sms body = %q, missing business name", msgs[0].Body)
	}
}

func TestWorkflowSinkFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	sinks := &bookingmock.Sinks{Err: errors.New("db down")}
	w := booking.NewWorkflow(tenant.NewMemStore(), sinks, sinks)

	// Must not panic or return; the call goes on.
	w.Observe(context.Background(), testSnapshot(), confirmedHistory(), "+61400000001")

	if len(sinks.Bookings()) != 0 {
		t.Error("booking recorded despite sink error")
	}
	if !w.Fired() {
		t.Error("workflow should not retry after a failed attempt")
	}
}

func TestWorkflowNoIntentNoWrites(t *testing.T) {
	t.Parallel()

	sinks := &bookingmock.Sinks{}
	w := booking.NewWorkflow(tenant.NewMemStore(), sinks, sinks)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "What are your hours?"},
		{Role: llm.RoleAssistant, Content: "We're open Monday nine to five."},
	}
	w.Observe(context.Background(), testSnapshot(), history, "+61400000001")

	if len(sinks.Bookings()) != 0 || len(sinks.Messages()) != 0 {
		t.Error("unexpected side effects without a booking intent")
	}
}
