package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	"github.com/voxdesk-ai/voxdesk/internal/call"
	"github.com/voxdesk-ai/voxdesk/internal/telephony"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

// handshakeTimeout bounds the wait for the carrier's start event after the
// socket is accepted.
const handshakeTimeout = 10 * time.Second

// handleStream owns one call from socket accept to hang-up. It returns only
// when the session ends, so the request context stays alive for the call's
// duration.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("carrier socket accept failed", "error", err)
		return
	}
	carrier := telephony.NewStream(conn)

	ctx := r.Context()
	info, err := awaitStart(ctx, carrier)
	if err != nil {
		s.logger.Warn("carrier handshake failed", "error", err)
		carrier.Close()
		return
	}
	carrier.SetStreamSID(info.StreamSID)

	snap := s.resolver.Resolve(ctx, tenantKey(r, info))
	logger := s.logger.With("call", info.CallSID, "tenant", snap.ID)

	sttHandle, err := s.providers.STT.StartStream(ctx, stt.StreamConfig{
		Encoding:       "mulaw",
		SampleRate:     8000,
		Channels:       1,
		Language:       snap.Language,
		EndpointingMS:  s.cfg.STT.EndpointingMS,
		UtteranceEndMS: s.cfg.STT.UtteranceEndMS,
	})
	if err != nil {
		logger.Error("recognition leg failed to open", "error", err)
		carrier.Close()
		return
	}

	ttsHandle, err := s.providers.TTS.StartStream(ctx, tts.StreamConfig{
		Voice:      snap.Voice.Voice,
		Encoding:   snap.Voice.Encoding,
		SampleRate: snap.Voice.SampleRate,
	})
	if err != nil {
		logger.Error("synthesis leg failed to open", "error", err)
		sttHandle.Close()
		carrier.Close()
		return
	}

	var workflow *booking.Workflow
	if s.sinks.Bookings != nil {
		workflow = booking.NewWorkflow(s.store, s.sinks.Bookings, s.sinks.SMS,
			booking.WithMetrics(s.metrics),
			booking.WithLogger(logger))
	}

	sess, err := call.NewSession(call.Params{
		CallSID:     info.CallSID,
		StreamSID:   info.StreamSID,
		CallerPhone: callerPhone(info),
		Snapshot:    snap,
		Carrier:     carrier,
		STT:         sttHandle,
		TTS:         ttsHandle,
		Runner:      s.engine,
		Workflow:    workflow,
		CallLog:     s.sinks.CallLog,
		Metrics:     s.metrics,
		Logger:      logger,
		Config: call.Config{
			DebounceWindow:  s.cfg.Session.DebounceWindow.Std(),
			IdleGuard:       s.cfg.Session.IdleGuard.Std(),
			EndFlushTimeout: s.cfg.Session.EndFlushTimeout.Std(),
		},
	})
	if err != nil {
		logger.Error("session setup failed", "error", err)
		ttsHandle.Close()
		sttHandle.Close()
		carrier.Close()
		return
	}

	if err := s.registry.Register(sess); err != nil {
		logger.Warn("call rejected", "error", err)
		ttsHandle.Close()
		sttHandle.Close()
		carrier.Close()
		return
	}
	defer s.registry.Unregister(info.CallSID)

	// The session closes all three legs on its way out.
	if err := sess.Run(ctx); err != nil {
		logger.Error("session failed", "error", err)
	}
}

// awaitStart reads carrier frames until the start event arrives. The
// connected preamble is skipped; anything else before start is a protocol
// violation.
func awaitStart(ctx context.Context, carrier telephony.Carrier) (*telephony.StartInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	for {
		ev, err := carrier.ReadEvent(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: await start: %w", err)
		}
		switch ev.Event {
		case telephony.EventConnected:
			continue
		case telephony.EventStart:
			if ev.Start == nil {
				return nil, errors.New("app: start event missing payload")
			}
			return ev.Start, nil
		default:
			return nil, fmt.Errorf("app: unexpected %q event before start", ev.Event)
		}
	}
}

// tenantKey extracts the tenant lookup key: the URL query parameter wins,
// then the start event's custom parameters, then the dialed number. An empty
// key resolves to the generic snapshot.
func tenantKey(r *http.Request, info *telephony.StartInfo) string {
	if key := r.URL.Query().Get("tenant"); key != "" {
		return key
	}
	if key := info.CustomParameters["tenant"]; key != "" {
		return key
	}
	return info.CustomParameters["to"]
}

// callerPhone extracts the caller's number from the start event, when the
// carrier was configured to pass it along.
func callerPhone(info *telephony.StartInfo) string {
	if phone := info.CustomParameters["caller"]; phone != "" {
		return phone
	}
	return info.CustomParameters["from"]
}
