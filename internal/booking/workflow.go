package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// Workflow watches one call's history for a completed booking and fires the
// side-effect sinks at most once per call. Not safe for concurrent use; the
// session calls it from its own goroutine after each sealed assistant turn.
type Workflow struct {
	store    tenant.Store
	bookings Sink
	sms      SMSSink
	metrics  *observe.Metrics
	logger   *slog.Logger

	// services is fetched lazily on the first confirmation candidate.
	services       []string
	servicesLoaded bool

	fired bool
}

// Option is a functional option for [NewWorkflow].
type Option func(*Workflow)

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = l
	}
}

// NewWorkflow creates a per-call Workflow. Either sink may be nil, in which
// case that side effect is skipped.
func NewWorkflow(store tenant.Store, bookings Sink, sms SMSSink, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		bookings: bookings,
		sms:      sms,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w
}

// Fired reports whether the booking sink has already run this call.
func (w *Workflow) Fired() bool { return w.fired }

// Observe inspects the history after a sealed assistant turn and, on the
// first detected booking confirmation, writes the booking and queues the SMS.
// Sink failures are logged and counted, never returned.
func (w *Workflow) Observe(ctx context.Context, snap *tenant.Snapshot, history []llm.Message, callerPhone string) {
	if w.fired {
		return
	}

	intent, ok := DetectIntent(history, w.serviceNames(ctx, snap))
	if !ok {
		return
	}
	w.fired = true

	rec := tenant.Booking{
		ID:            uuid.NewString(),
		TenantID:      snap.ID,
		CustomerPhone: callerPhone,
		Service:       intent.Service,
		Status:        "requested",
		Notes:         intent.Confirmation,
	}

	if w.bookings != nil {
		if err := w.bookings.CreateBooking(ctx, rec); err != nil {
			w.logger.Warn("booking sink failed",
				"tenant", snap.ID,
				"booking_id", rec.ID,
				"error", err)
			w.metrics.RecordSideEffectError(ctx, "booking")
		} else {
			w.logger.Info("booking recorded",
				"tenant", snap.ID,
				"booking_id", rec.ID,
				"service", rec.Service)
		}
	}

	if w.sms != nil && callerPhone != "" {
		body := confirmationSMS(snap, intent)
		if err := w.sms.SendConfirmation(ctx, callerPhone, body); err != nil {
			w.logger.Warn("sms sink failed",
				"tenant", snap.ID,
				"booking_id", rec.ID,
				"error", err)
			w.metrics.RecordSideEffectError(ctx, "sms")
		}
	}
}

func (w *Workflow) serviceNames(ctx context.Context, snap *tenant.Snapshot) []string {
	if w.servicesLoaded {
		return w.services
	}
	w.servicesLoaded = true
	if w.store == nil || snap.Generic {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	svcs, err := w.store.Services(lookupCtx, snap.ID)
	if err != nil {
		w.logger.Debug("service lookup for booking tag failed",
			"tenant", snap.ID, "error", err)
		return nil
	}
	for _, s := range svcs {
		w.services = append(w.services, s.Name)
	}
	return w.services
}

func confirmationSMS(snap *tenant.Snapshot, intent *Intent) string {
	var b strings.Builder
	b.WriteString(snap.DisplayName)
	b.WriteString(": ")
	b.WriteString(intent.Confirmation)
	b.WriteString(" Reply to this number if you need to change anything.")
	return b.String()
}
