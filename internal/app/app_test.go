package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxdesk-ai/voxdesk/internal/app"
	bookingmock "github.com/voxdesk-ai/voxdesk/internal/booking/mock"
	"github.com/voxdesk-ai/voxdesk/internal/config"
	"github.com/voxdesk-ai/voxdesk/internal/telephony"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	llmmock "github.com/voxdesk-ai/voxdesk/pkg/provider/llm/mock"
	sttmock "github.com/voxdesk-ai/voxdesk/pkg/provider/stt/mock"
	ttsmock "github.com/voxdesk-ai/voxdesk/pkg/provider/tts/mock"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// testServer bundles the HTTP server with its scriptable collaborators.
type testServer struct {
	srv      *httptest.Server
	stt      *sttmock.Session
	provider *llmmock.Provider
	sinks    *bookingmock.Sinks
	server   *app.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := tenant.NewMemStore()
	store.AddTenant(&tenant.Snapshot{
		ID:           "acme-plumb",
		DisplayName:  "Acme Plumbing",
		Language:     "en",
		GreetingText: "Thanks for calling Acme Plumbing!",
		Voice: tenant.VoiceConfig{
			Provider:   "deepgram",
			Voice:      "asteria",
			SampleRate: 8000,
			Encoding:   "mulaw",
		},
	})

	sttSession := sttmock.NewSession()
	provider := &llmmock.Provider{
		Turns: [][]llm.Chunk{{
			{Text: "We're open weekdays nine to five."},
			{FinishReason: "stop"},
		}},
	}
	sinks := &bookingmock.Sinks{}

	cfg := config.Default()
	cfg.Session.DebounceWindow = config.Duration(30 * time.Millisecond)

	server, err := app.New(cfg, store,
		app.Providers{
			STT: &sttmock.Provider{Session: sttSession},
			TTS: &ttsmock.Provider{},
			LLM: provider,
		},
		app.Sinks{Bookings: sinks, SMS: sinks, CallLog: sinks},
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testServer{
		srv:      srv,
		stt:      sttSession,
		provider: provider,
		sinks:    sinks,
		server:   server,
	}
}

// dial opens a carrier-side WebSocket and completes the start handshake.
func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.srv.URL+"/stream/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	send(t, conn, telephony.InboundEvent{Event: telephony.EventConnected})
	send(t, conn, telephony.InboundEvent{
		Event: telephony.EventStart,
		Start: &telephony.StartInfo{
			StreamSID: "MZ1",
			CallSID:   "CA1",
			CustomParameters: map[string]string{
				"tenant": "acme-plumb",
				"caller": "+61400000001",
			},
		},
	})
	return conn
}

func send(t *testing.T, conn *websocket.Conn, ev telephony.InboundEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntilMedia reads outbound frames until an audio frame arrives.
func readUntilMedia(t *testing.T, conn *websocket.Conn) telephony.InboundEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		ev, err := telephony.ParseInbound(data)
		if err != nil {
			t.Fatalf("parse frame: %v", err)
		}
		if ev.Event == telephony.EventMedia {
			return ev
		}
	}
}

func TestStreamCallRoundTrip(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := ts.dial(t)

	// Greeting audio arrives without any caller input.
	ev := readUntilMedia(t, conn)
	if ev.StreamSID != "MZ1" {
		t.Errorf("media streamSid = %q", ev.StreamSID)
	}
	if _, err := ev.AudioPayload(); err != nil {
		t.Errorf("greeting payload: %v", err)
	}

	waitFor(t, "call to register", func() bool {
		return activeCalls(t, ts.srv.URL) == 1
	})

	// One question, one streamed answer.
	ts.stt.EmitFinal("what are your hours")
	ts.stt.EmitUtteranceEnd()
	readUntilMedia(t, conn)
	if got := ts.provider.CallCount(); got != 1 {
		t.Errorf("completion calls = %d, want 1", got)
	}

	// Hang-up drives the log write and frees the registry slot.
	send(t, conn, telephony.InboundEvent{Event: telephony.EventStop})
	waitFor(t, "call log write", func() bool {
		return len(ts.sinks.CallLogs()) == 1
	})
	log := ts.sinks.CallLogs()[0]
	if log.CallSID != "CA1" || log.TenantID != "acme-plumb" || log.Outcome != "carrier_closed" {
		t.Errorf("call log = %+v", log)
	}
	if log.CallerPhone != "+61400000001" {
		t.Errorf("caller phone = %q", log.CallerPhone)
	}
	waitFor(t, "registry to empty", func() bool {
		return activeCalls(t, ts.srv.URL) == 0
	})
}

func TestStreamUnknownTenantStillAnswers(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.srv.URL+"/stream/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	send(t, conn, telephony.InboundEvent{
		Event: telephony.EventStart,
		Start: &telephony.StartInfo{
			StreamSID: "MZ2",
			CallSID:   "CA2",
			CustomParameters: map[string]string{
				"tenant": "ghost-biz",
			},
		},
	})

	// The generic greeting still plays.
	readUntilMedia(t, conn)
	send(t, conn, telephony.InboundEvent{Event: telephony.EventStop})
	waitFor(t, "call log write", func() bool {
		return len(ts.sinks.CallLogs()) == 1
	})
	if got := ts.sinks.CallLogs()[0].TenantID; got != "ghost-biz" {
		t.Errorf("log tenant = %q", got)
	}
}

func TestStreamRejectsNonStartPreamble(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.srv.URL+"/stream/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	send(t, conn, telephony.InboundEvent{Event: telephony.EventStop})

	// The server drops the socket without starting a call.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("server kept the socket open after a protocol violation")
	}
	if got := activeCalls(t, ts.srv.URL); got != 0 {
		t.Errorf("active calls = %d, want 0", got)
	}
}

func TestDrainEndsLiveCalls(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := ts.dial(t)
	readUntilMedia(t, conn)
	waitFor(t, "call to register", func() bool {
		return ts.server.Registry().Active() == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ts.server.Registry().Drain(ctx)

	waitFor(t, "call log write", func() bool {
		return len(ts.sinks.CallLogs()) == 1
	})
	if got := ts.sinks.CallLogs()[0].Outcome; got != "drained" {
		t.Errorf("outcome = %q, want drained", got)
	}
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	if got := activeCalls(t, ts.srv.URL); got != 0 {
		t.Errorf("active calls = %d, want 0", got)
	}

	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func activeCalls(t *testing.T, base string) int {
	t.Helper()
	resp, err := http.Get(base + "/stream/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var status struct {
		ActiveCalls int `json:"active_calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status.ActiveCalls
}
