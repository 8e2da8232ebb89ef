// Package observe provides the service's observability primitives:
// OpenTelemetry metric instruments for the call pipeline and a Prometheus
// exporter bridge so they are scraped from the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all voxdesk metrics.
const meterName = "github.com/voxdesk-ai/voxdesk"

// Metrics holds the metric instruments for the call pipeline. All fields are
// safe for concurrent use.
type Metrics struct {
	// ─── Latency histograms per pipeline stage ──────────────────────────────

	// FirstTranscript tracks time from call start to the first transcript.
	FirstTranscript metric.Float64Histogram

	// FirstToken tracks time from engine start to the first LLM token.
	FirstToken metric.Float64Histogram

	// FirstAudio tracks time from utterance end to the first TTS audio frame.
	FirstAudio metric.Float64Histogram

	// ToolDuration tracks tool handler latency.
	ToolDuration metric.Float64Histogram

	// CallDuration tracks whole-call wall time.
	CallDuration metric.Float64Histogram

	// ─── Counters ───────────────────────────────────────────────────────────

	// Calls counts call sessions by terminal outcome. Attributes:
	//   attribute.String("tenant", ...), attribute.String("outcome", ...)
	Calls metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BargeIns counts caller interruptions during AI speech.
	BargeIns metric.Int64Counter

	// Reconnects counts provider reconnections. Attribute:
	//   attribute.String("provider", ...)
	Reconnects metric.Int64Counter

	// DroppedAudio counts audio chunks discarded while a provider was down.
	DroppedAudio metric.Int64Counter

	// SideEffectErrors counts failed booking/SMS/call-log sink invocations.
	// Attribute: attribute.String("sink", ...)
	SideEffectErrors metric.Int64Counter

	// ─── Gauges ─────────────────────────────────────────────────────────────

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// ─── Byte counters ──────────────────────────────────────────────────────

	// AudioBytesIn counts mu-law bytes received from the carrier.
	AudioBytesIn metric.Int64Counter

	// AudioBytesOut counts mu-law bytes sent to the carrier.
	AudioBytesOut metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// sub-second voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.8, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histo := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.FirstTranscript, err = histo("voxdesk.call.first_transcript",
		"Time from call start to first transcript."); err != nil {
		return nil, err
	}
	if met.FirstToken, err = histo("voxdesk.call.first_token",
		"Time from engine start to first LLM token."); err != nil {
		return nil, err
	}
	if met.FirstAudio, err = histo("voxdesk.call.first_audio",
		"Time from utterance end to first synthesised audio frame."); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = histo("voxdesk.tool.duration",
		"Tool handler latency."); err != nil {
		return nil, err
	}
	if met.CallDuration, err = histo("voxdesk.call.duration",
		"Whole-call wall time."); err != nil {
		return nil, err
	}

	if met.Calls, err = m.Int64Counter("voxdesk.calls",
		metric.WithDescription("Call sessions by tenant and terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxdesk.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxdesk.barge_ins",
		metric.WithDescription("Caller interruptions during AI speech."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxdesk.provider.reconnects",
		metric.WithDescription("Provider reconnections by provider."),
	); err != nil {
		return nil, err
	}
	if met.DroppedAudio, err = m.Int64Counter("voxdesk.audio.dropped",
		metric.WithDescription("Audio chunks discarded while a provider was down."),
	); err != nil {
		return nil, err
	}
	if met.SideEffectErrors, err = m.Int64Counter("voxdesk.side_effect.errors",
		metric.WithDescription("Failed booking, SMS, or call-log sink invocations."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("voxdesk.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	if met.AudioBytesIn, err = m.Int64Counter("voxdesk.audio.bytes_in",
		metric.WithDescription("Mu-law bytes received from the carrier."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesOut, err = m.Int64Counter("voxdesk.audio.bytes_out",
		metric.WithDescription("Mu-law bytes sent to the carrier."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCall records a finished call with its terminal outcome.
func (m *Metrics) RecordCall(ctx context.Context, tenantID, outcome string) {
	m.Calls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant", tenantID),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordToolCall records one tool invocation and its handler latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, latency time.Duration) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, latency.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordDroppedAudio records one audio chunk discarded while a provider
// connection was down.
func (m *Metrics) RecordDroppedAudio(ctx context.Context, provider string) {
	m.DroppedAudio.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordReconnect records a provider reconnection.
func (m *Metrics) RecordReconnect(ctx context.Context, provider string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSideEffectError records a failed sink invocation.
func (m *Metrics) RecordSideEffectError(ctx context.Context, sink string) {
	m.SideEffectErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sink", sink)),
	)
}
