package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counterTotal sums all data points of a named int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New accepted an empty API key")
	}
	if _, err := New("key", WithMaxRedials(0)); err == nil {
		t.Fatal("New accepted a zero redial budget")
	}
}

func TestSessionGivesUpAfterRedialBudget(t *testing.T) {
	t.Parallel()

	// The server accepts the handshake once and drops the socket right away;
	// after it shuts down every redial attempt fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "restarting")
	}))

	p, err := New("test-key",
		WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithMaxRedials(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess, err := p.StartStream(context.Background(), stt.StreamConfig{
		Encoding:   "mulaw",
		SampleRate: 8000,
	})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	srv.Close()

	sawDisconnect := false
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				if !sawDisconnect {
					t.Fatal("event stream closed without a disconnect event")
				}
				return
			}
			if ev.Kind == stt.EventDisconnected {
				sawDisconnect = true
			}
		case <-deadline:
			t.Fatal("event stream never closed after the redial budget was spent")
		}
	}
}

func TestSendAudioDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	met, reader := newTestMetrics(t)
	s := &session{
		audio:   make(chan []byte, 2),
		done:    make(chan struct{}),
		metrics: met,
	}

	for i := 0; i < 4; i++ {
		if err := s.SendAudio([]byte{byte(i)}); err != nil {
			t.Fatalf("SendAudio(%d): %v", i, err)
		}
	}

	// The two newest chunks survive.
	if got := <-s.audio; got[0] != 2 {
		t.Errorf("first buffered chunk = %d, want 2", got[0])
	}
	if got := <-s.audio; got[0] != 3 {
		t.Errorf("second buffered chunk = %d, want 3", got[0])
	}

	if got := counterTotal(t, reader, "voxdesk.audio.dropped"); got != 2 {
		t.Errorf("dropped audio count = %d, want 2", got)
	}
}

func TestSendAudioAfterClose(t *testing.T) {
	t.Parallel()

	s := &session{
		audio:   make(chan []byte, 2),
		done:    make(chan struct{}),
		metrics: observe.DefaultMetrics(),
	}
	close(s.done)

	if err := s.SendAudio([]byte{0x00}); err != ErrSessionClosed {
		t.Fatalf("SendAudio after close = %v, want ErrSessionClosed", err)
	}
}
