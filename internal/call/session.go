package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voxdesk-ai/voxdesk/internal/booking"
	"github.com/voxdesk-ai/voxdesk/internal/engine"
	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/internal/telephony"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

// Session timing defaults.
const (
	DefaultDebounceWindow  = 500 * time.Millisecond
	DefaultIdleGuard       = 30 * time.Second
	DefaultEndFlushTimeout = 8 * time.Second

	// defaultBargeInMinChars is the partial-transcript length a caller must
	// exceed to interrupt assistant speech. Short blips ("uh", "mm") stay
	// below it.
	defaultBargeInMinChars = 5
)

// fallbackLine is spoken when the engine fails mid-call.
const fallbackLine = "I'm having trouble on my end. Would you like me to take a message for the team?"

// Config tunes the session timers. Zero values take the defaults above.
type Config struct {
	// DebounceWindow is the grace period after an utterance-end before the
	// engine starts, coalescing rapid duplicate signals.
	DebounceWindow time.Duration

	// IdleGuard ends the call after this long without audio in either
	// direction. Zero or negative disables it.
	IdleGuard time.Duration

	// EndFlushTimeout is the fail-safe bound on waiting for the final
	// synthesis flush before ending a call.
	EndFlushTimeout time.Duration

	// BargeInMinChars is the partial length a caller must exceed to barge in.
	BargeInMinChars int
}

func (c Config) withDefaults() Config {
	if c.DebounceWindow == 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.IdleGuard == 0 {
		c.IdleGuard = DefaultIdleGuard
	}
	if c.EndFlushTimeout == 0 {
		c.EndFlushTimeout = DefaultEndFlushTimeout
	}
	if c.BargeInMinChars == 0 {
		c.BargeInMinChars = defaultBargeInMinChars
	}
	return c
}

// Runner executes one user turn. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, snap *tenant.Snapshot, history []llm.Message, out engine.Output) (*engine.Result, error)
}

// Params wires a Session's collaborators. The caller opens the provider
// streams so the session stays free of provider construction.
type Params struct {
	CallSID     string
	StreamSID   string
	CallerPhone string

	Snapshot *tenant.Snapshot
	Carrier  telephony.Carrier
	STT      stt.SessionHandle
	TTS      tts.StreamHandle
	Runner   Runner

	// Workflow and CallLog are optional side-effect collaborators.
	Workflow *booking.Workflow
	CallLog  booking.CallLogSink

	Metrics *observe.Metrics
	Logger  *slog.Logger
	Config  Config
}

// Stats is a point-in-time snapshot of a session's counters.
type Stats struct {
	ToolCalls     int
	BargeIns      int
	Reconnects    int
	AudioBytesIn  int64
	AudioBytesOut int64
}

// Session orchestrates one call: it pumps carrier audio into recognition,
// debounces utterance ends into engine runs, and forwards synthesis audio
// back to the carrier, enforcing turn-taking, barge-in, and call-end rules.
type Session struct {
	callSID     string
	streamSID   string
	callerPhone string
	snap        *tenant.Snapshot

	carrier  telephony.Carrier
	stt      stt.SessionHandle
	tts      tts.StreamHandle
	runner   Runner
	workflow *booking.Workflow
	callLog  booking.CallLogSink
	metrics  *observe.Metrics
	logger   *slog.Logger
	cfg      Config

	history *History

	// llmMu is the single-flight guard: at most one engine run produces
	// audio at any time. It must not be held while taking mu.
	llmMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	endOnce sync.Once

	mu                  sync.Mutex
	state               TurnState
	pending             strings.Builder
	debounce            *time.Timer
	debounceGen         int
	engineCancel        context.CancelFunc
	endPending          string
	endTimer            *time.Timer
	idleTimer           *time.Timer
	dropAudio           bool
	thinkStart          time.Time
	started             time.Time
	endReason           string
	firstTranscriptSeen bool
	stats               Stats
}

// NewSession validates params and builds a Session ready to Run.
func NewSession(p Params) (*Session, error) {
	switch {
	case p.CallSID == "":
		return nil, errors.New("call: session needs a call sid")
	case p.Snapshot == nil:
		return nil, errors.New("call: session needs a tenant snapshot")
	case p.Carrier == nil || p.STT == nil || p.TTS == nil:
		return nil, errors.New("call: session needs carrier, stt, and tts legs")
	case p.Runner == nil:
		return nil, errors.New("call: session needs an engine runner")
	}

	if p.Metrics == nil {
		p.Metrics = observe.DefaultMetrics()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &Session{
		callSID:     p.CallSID,
		streamSID:   p.StreamSID,
		callerPhone: p.CallerPhone,
		snap:        p.Snapshot,
		carrier:     p.Carrier,
		stt:         p.STT,
		tts:         p.TTS,
		runner:      p.Runner,
		workflow:    p.Workflow,
		callLog:     p.CallLog,
		metrics:     p.Metrics,
		logger:      p.Logger.With("call", p.CallSID, "tenant", p.Snapshot.ID),
		cfg:         p.Config.withDefaults(),
		history:     NewHistory(),
		done:        make(chan struct{}),
		cancel:      func() {},
	}, nil
}

// CallSID returns the carrier-assigned call identifier.
func (s *Session) CallSID() string { return s.callSID }

// State returns the current turn state.
func (s *Session) State() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns the call's conversation record.
func (s *Session) History() *History { return s.history }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Done is closed once Run has returned and cleanup finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Shutdown moves the session to Ending with the given outcome. Safe to call
// from any goroutine; the first caller wins.
func (s *Session) Shutdown(reason string) {
	s.end(reason)
}

// Run drives the call until it ends. It plays the greeting, then pumps the
// three legs concurrently. The returned error reports abnormal leg failures;
// a caller hang-up or farewell returns nil.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = runCtx
	s.cancel = cancel
	s.started = time.Now()
	s.mu.Unlock()
	defer close(s.done)
	defer cancel()

	s.metrics.ActiveCalls.Add(runCtx, 1)
	defer s.metrics.ActiveCalls.Add(context.Background(), -1)

	s.logger.Info("call started", "stream", s.streamSID, "caller", s.callerPhone)

	s.playGreeting()
	s.resetIdleGuard()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.carrierPump(gctx) })
	g.Go(func() error { return s.sttPump(gctx) })
	g.Go(func() error { return s.ttsPump(gctx) })
	err := g.Wait()

	s.finish()
	return err
}

// ─── Greeting ───────────────────────────────────────────────────────────────

func (s *Session) playGreeting() {
	text := s.snap.GreetingText
	if text == "" {
		text = "Thank you for calling. How can I help you today?"
	}
	if s.snap.GreetingAudioURL != "" {
		// Pre-rendered greeting audio is fetched by the admin surface, not
		// the call core; synthesise the text instead.
		s.logger.Debug("greeting audio not locally playable, synthesising text")
	}

	s.history.AppendAssistant(text, false)
	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateAISpeaking
	}
	s.mu.Unlock()

	if err := s.tts.SpeakFragment(text); err != nil {
		s.logger.Warn("greeting synthesis failed", "error", err)
		return
	}
	if err := s.tts.Flush(); err != nil {
		s.logger.Warn("greeting flush failed", "error", err)
	}
}

// ─── Carrier leg ────────────────────────────────────────────────────────────

func (s *Session) carrierPump(ctx context.Context) error {
	for {
		ev, err := s.carrier.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil || s.State() == StateEnding {
				return nil
			}
			s.logger.Info("carrier connection lost", "error", err)
			s.end("carrier_closed")
			return nil
		}

		switch ev.Event {
		case telephony.EventMedia:
			audio, err := ev.AudioPayload()
			if err != nil {
				s.logger.Warn("bad media frame", "error", err)
				continue
			}
			s.onInboundAudio(ctx, audio)

		case telephony.EventMark:
			if ev.Mark != nil {
				s.logger.Debug("playback checkpoint reached", "mark", ev.Mark.Name)
			}

		case telephony.EventDTMF:
			if ev.DTMF != nil {
				s.logger.Debug("dtmf", "digit", ev.DTMF.Digit)
			}

		case telephony.EventStop:
			s.logger.Info("carrier stop received")
			s.end("carrier_closed")
			return nil

		case telephony.EventConnected, telephony.EventStart:
			// Handled during accept, before the session starts.
		}
	}
}

func (s *Session) onInboundAudio(ctx context.Context, audio []byte) {
	s.resetIdleGuard()

	s.mu.Lock()
	s.stats.AudioBytesIn += int64(len(audio))
	s.mu.Unlock()
	s.metrics.AudioBytesIn.Add(ctx, int64(len(audio)))

	if err := s.stt.SendAudio(audio); err != nil {
		s.logger.Warn("forward audio to recognition failed", "error", err)
	}
}

// ─── Recognition leg ────────────────────────────────────────────────────────

func (s *Session) sttPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.stt.Events():
			if !ok {
				if ctx.Err() != nil || s.State() == StateEnding {
					return nil
				}
				return fmt.Errorf("call: recognition stream closed")
			}
			switch ev.Kind {
			case stt.EventPartial:
				s.onPartial(ctx, ev.Transcript.Text)
			case stt.EventFinal:
				s.onFinal(ev.Transcript.Text)
			case stt.EventUtteranceEnd:
				s.onUtteranceEnd()
			case stt.EventSpeechStarted:
				s.resetIdleGuard()
			case stt.EventDisconnected:
				s.logger.Warn("recognition disconnected", "error", ev.Err)
			case stt.EventReconnected:
				s.mu.Lock()
				s.stats.Reconnects++
				s.mu.Unlock()
				s.metrics.RecordReconnect(ctx, "stt")
				s.logger.Info("recognition reconnected")
			}
		}
	}
}

// onPartial updates the turn state on interim transcripts and triggers
// barge-in when the caller talks over the assistant.
func (s *Session) onPartial(ctx context.Context, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	s.markFirstTranscript()

	s.mu.Lock()
	s.cancelEndLocked()
	var bargeIn bool
	var engineCancel context.CancelFunc
	switch s.state {
	case StateIdle:
		s.state = StateUserSpeaking
	case StateAISpeaking, StateThinking:
		if len([]rune(trimmed)) > s.cfg.BargeInMinChars {
			bargeIn = true
			s.state = StateUserSpeaking
			s.dropAudio = true
			s.stats.BargeIns++
			engineCancel = s.engineCancel
		}
	}
	s.mu.Unlock()

	if !bargeIn {
		return
	}
	s.logger.Info("barge-in", "partial", trimmed)
	s.metrics.BargeIns.Add(ctx, 1)
	if err := s.carrier.SendClear(ctx); err != nil {
		s.logger.Warn("clear failed", "error", err)
	}
	if err := s.tts.Clear(); err != nil {
		s.logger.Warn("synthesis clear failed", "error", err)
	}
	if engineCancel != nil {
		engineCancel()
	}
}

// onFinal appends a final transcript to the open utterance.
func (s *Session) onFinal(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	s.markFirstTranscript()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelEndLocked()
	if s.pending.Len() > 0 {
		s.pending.WriteByte(' ')
	}
	s.pending.WriteString(trimmed)
	if s.state == StateIdle {
		s.state = StateUserSpeaking
	}
	// A continuation landing inside the grace window restarts it.
	if s.debounce != nil {
		s.armDebounceLocked()
	}
}

// onUtteranceEnd schedules (or reschedules) the debounced engine start.
func (s *Session) onUtteranceEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnding {
		return
	}
	s.armDebounceLocked()
}

// armDebounceLocked cancels any pending debounce timer and starts a fresh
// grace window. Callers hold mu.
func (s *Session) armDebounceLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceGen++
	gen := s.debounceGen
	s.debounce = time.AfterFunc(s.cfg.DebounceWindow, func() {
		s.startRun(gen)
	})
}

func (s *Session) markFirstTranscript() {
	s.mu.Lock()
	if s.firstTranscriptSeen {
		s.mu.Unlock()
		return
	}
	s.firstTranscriptSeen = true
	started := s.started
	s.mu.Unlock()
	s.metrics.FirstTranscript.Record(context.Background(), time.Since(started).Seconds())
}

// ─── Engine runs ────────────────────────────────────────────────────────────

// startRun fires when a debounce window expires. A stale generation means a
// newer utterance-end superseded this one.
func (s *Session) startRun(gen int) {
	s.mu.Lock()
	if gen != s.debounceGen || s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	// The window is consumed. A later final must wait for a fresh
	// utterance-end rather than restart a spent timer.
	s.debounce = nil
	runCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Unlock()
	go s.runEngine(runCtx, cancel, gen)
}

// runEngine seals the pending utterance and executes one engine run under the
// single-flight lock. If a newer utterance superseded this one while waiting
// for the lock, it backs off and lets the newer debounce fire instead.
func (s *Session) runEngine(runCtx context.Context, cancel context.CancelFunc, gen int) {
	defer cancel()
	s.llmMu.Lock()
	defer s.llmMu.Unlock()

	s.mu.Lock()
	if runCtx.Err() != nil || gen != s.debounceGen || s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	text := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if text == "" {
		if s.state == StateUserSpeaking {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return
	}
	s.history.AppendUser(text)

	if IsFarewell(text) {
		if s.state == StateAISpeaking || s.state == StateThinking {
			// Let the current flush finish, then hang up.
			s.armEndLocked("farewell")
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.logger.Info("farewell detected", "utterance", text)
		s.end("farewell")
		return
	}

	s.state = StateThinking
	s.dropAudio = false
	s.thinkStart = time.Now()
	s.engineCancel = cancel
	msgs := s.history.Messages()
	s.mu.Unlock()

	out := &runOutput{s: s, started: time.Now()}
	res, err := s.runner.Run(runCtx, s.snap, msgs, out)

	s.mu.Lock()
	s.engineCancel = nil
	s.mu.Unlock()

	switch {
	case err == nil:
		s.history.AppendMessages(res.Messages)
		s.mu.Lock()
		s.stats.ToolCalls += len(res.ToolCalls)
		s.mu.Unlock()
		if s.workflow != nil {
			s.workflow.Observe(runCtx, s.snap, s.history.Messages(), s.callerPhone)
		}

	case errors.Is(err, engine.ErrInterrupted):
		// Barge-in or call end. Commit the partial with the interrupted flag
		// so alternation stays intact.
		if res != nil && res.Text != "" {
			s.history.AppendAssistant(res.Text, true)
		}

	default:
		s.mu.Lock()
		ending := s.state == StateEnding
		s.mu.Unlock()
		if ending {
			return
		}
		s.logger.Error("engine run failed", "error", err)
		s.speakFallback()
	}
}

// speakFallback plays the canned degraded line and schedules a graceful end.
func (s *Session) speakFallback() {
	s.history.AppendAssistant(fallbackLine, false)

	s.mu.Lock()
	if s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	s.state = StateAISpeaking
	s.dropAudio = false
	s.armEndLocked("error")
	s.mu.Unlock()

	if err := s.tts.SpeakFragment(fallbackLine); err != nil {
		s.logger.Warn("fallback synthesis failed", "error", err)
		s.end("error")
		return
	}
	if err := s.tts.Flush(); err != nil {
		s.logger.Warn("fallback flush failed", "error", err)
		s.end("error")
	}
}

// runOutput forwards engine fragments to synthesis, timestamping the first
// one for the latency histogram.
type runOutput struct {
	s       *Session
	started time.Time
	first   sync.Once
}

var _ engine.Output = (*runOutput)(nil)

func (o *runOutput) SpeakFragment(text string) error {
	o.first.Do(func() {
		o.s.metrics.FirstToken.Record(context.Background(), time.Since(o.started).Seconds())
	})
	return o.s.tts.SpeakFragment(text)
}

func (o *runOutput) Flush() error { return o.s.tts.Flush() }

// ─── Synthesis leg ──────────────────────────────────────────────────────────

func (s *Session) ttsPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.tts.Events():
			if !ok {
				if ctx.Err() != nil || s.State() == StateEnding {
					return nil
				}
				return fmt.Errorf("call: synthesis stream closed")
			}
			switch ev.Kind {
			case tts.EventAudio:
				s.onSynthAudio(ctx, ev.Audio)
			case tts.EventFlushed:
				s.onFlushed(ctx)
			case tts.EventDisconnected:
				s.logger.Warn("synthesis disconnected", "error", ev.Err)
			}
		}
	}
}

func (s *Session) onSynthAudio(ctx context.Context, audio []byte) {
	s.mu.Lock()
	if s.dropAudio || s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	if s.state == StateThinking {
		s.state = StateAISpeaking
		if !s.thinkStart.IsZero() {
			s.metrics.FirstAudio.Record(context.Background(), time.Since(s.thinkStart).Seconds())
			s.thinkStart = time.Time{}
		}
	}
	s.stats.AudioBytesOut += int64(len(audio))
	s.mu.Unlock()

	s.metrics.AudioBytesOut.Add(ctx, int64(len(audio)))
	if err := s.carrier.SendAudio(ctx, audio); err != nil {
		if s.State() != StateEnding {
			s.logger.Warn("forward audio to carrier failed", "error", err)
		}
		return
	}
	s.resetIdleGuard()
}

func (s *Session) onFlushed(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateAISpeaking {
		s.state = StateIdle
	}
	reason := s.endPending
	s.mu.Unlock()

	if reason != "" {
		s.end(reason)
		return
	}

	// Playback checkpoint; the carrier echoes it once the audio has drained.
	name := "turn-" + uuid.NewString()
	if err := s.carrier.SendMark(ctx, name); err != nil {
		s.logger.Debug("mark failed", "error", err)
	}
}

// ─── Call end ───────────────────────────────────────────────────────────────

// armEndLocked schedules an end after the next synthesis flush, with an
// absolute fail-safe timeout. Callers hold mu.
func (s *Session) armEndLocked(reason string) {
	s.endPending = reason
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
	s.endTimer = time.AfterFunc(s.cfg.EndFlushTimeout, func() {
		s.end(reason)
	})
}

// cancelEndLocked aborts a scheduled end because the caller spoke again.
// Callers hold mu.
func (s *Session) cancelEndLocked() {
	if s.endPending == "" {
		return
	}
	s.endPending = ""
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

// end moves the session to Ending exactly once and cancels all child work.
func (s *Session) end(reason string) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.state = StateEnding
		s.endReason = reason
		if s.debounce != nil {
			s.debounce.Stop()
		}
		if s.endTimer != nil {
			s.endTimer.Stop()
		}
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		engineCancel := s.engineCancel
		s.mu.Unlock()

		if engineCancel != nil {
			engineCancel()
		}
		s.cancel()
	})
}

// finish runs after the pumps stop: close the legs, flush metrics, and write
// the call log.
func (s *Session) finish() {
	s.end("error") // no-op when a reason was already recorded

	// Taking the single-flight lock waits for an in-flight engine run to
	// notice its cancellation and seal history.
	s.llmMu.Lock()
	transcript := s.history.Transcript()
	s.llmMu.Unlock()

	_ = s.tts.Close()
	_ = s.stt.Close()
	_ = s.carrier.Close()

	s.mu.Lock()
	outcome := s.endReason
	duration := time.Since(s.started)
	stats := s.stats
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s.metrics.CallDuration.Record(ctx, duration.Seconds())
	s.metrics.RecordCall(ctx, s.snap.ID, outcome)

	if s.callLog != nil {
		rec := booking.CallLog{
			CallSID:       s.callSID,
			StreamSID:     s.streamSID,
			TenantID:      s.snap.ID,
			CallerPhone:   s.callerPhone,
			StartedAt:     time.Now().Add(-duration),
			EndedAt:       time.Now(),
			Outcome:       outcome,
			Transcript:    transcript,
			ToolCalls:     stats.ToolCalls,
			BargeIns:      stats.BargeIns,
			Reconnects:    stats.Reconnects,
			AudioBytesIn:  stats.AudioBytesIn,
			AudioBytesOut: stats.AudioBytesOut,
		}
		if err := s.callLog.WriteCallLog(ctx, rec); err != nil {
			s.logger.Warn("call log write failed", "error", err)
			s.metrics.RecordSideEffectError(ctx, "call_log")
		}
	}

	s.logger.Info("call ended",
		"outcome", outcome,
		"duration", duration.Round(time.Millisecond),
		"turns_user", s.history.UserTurns(),
		"turns_assistant", s.history.AssistantTurns(),
		"tool_calls", stats.ToolCalls,
		"barge_ins", stats.BargeIns)
}

// ─── Idle guard ─────────────────────────────────────────────────────────────

// resetIdleGuard restarts the silence watchdog on audio in either direction.
func (s *Session) resetIdleGuard() {
	if s.cfg.IdleGuard <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnding {
		return
	}
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(s.cfg.IdleGuard, func() {
			s.logger.Info("idle guard tripped")
			s.end("idle")
		})
		return
	}
	s.idleTimer.Reset(s.cfg.IdleGuard)
}
