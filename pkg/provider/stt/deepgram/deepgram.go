// Package deepgram implements stt.Provider on the Deepgram Listen streaming
// WebSocket API.
//
// Each session runs a small supervisor: a write loop feeding buffered audio to
// the socket, a read loop dispatching Results, UtteranceEnd, and SpeechStarted
// messages, and a redial loop that re-establishes the connection with
// exponential backoff when it drops, giving up after a bounded number of
// attempts. Audio pushed while the connection is down is buffered up to the
// channel capacity; beyond that the oldest chunks are dropped so a long outage
// cannot grow memory without bound.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "en"
	defaultSampleRate = 8000

	// Reconnect backoff bounds.
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 10 * time.Second

	// defaultMaxRedials bounds reconnection attempts per outage before the
	// session gives up and closes its event stream.
	defaultMaxRedials = 10

	keepAliveInterval = 5 * time.Second
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("deepgram: session is closed")

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithEndpoint overrides the Listen endpoint URL. Used to point at a test
// server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithModel sets the Deepgram model (e.g. "nova-2", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithMaxRedials sets how many reconnection attempts a session makes per
// outage before giving up. n must be at least 1.
func WithMaxRedials(n int) Option {
	return func(p *Provider) {
		p.maxRedials = n
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	maxRedials int
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		maxRedials: defaultMaxRedials,
	}
	for _, o := range opts {
		o(p)
	}
	if p.maxRedials < 1 {
		return nil, errors.New("deepgram: maxRedials must be at least 1")
	}
	return p, nil
}

// StartStream opens a streaming transcription session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	sess := &session{
		url:        wsURL,
		apiKey:     p.apiKey,
		maxRedials: p.maxRedials,
		events:     make(chan stt.Event, 64),
		audio:      make(chan []byte, 256),
		done:       make(chan struct{}),
		metrics:    observe.DefaultMetrics(),
	}

	conn, err := sess.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess.wg.Add(1)
	go sess.run(ctx, conn)

	return sess, nil
}

// buildURL constructs the Listen endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.EndpointingMS > 0 {
		q.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	if cfg.UtteranceEndMS > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMS))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ─── session ────────────────────────────────────────────────────────────────

// listenMessage is the subset of the Deepgram Listen wire format we consume.
type listenMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session with automatic reconnect.
type session struct {
	url        string
	apiKey     string
	maxRedials int

	events chan stt.Event
	audio  chan []byte

	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	metrics *observe.Metrics
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues an audio chunk. When the buffer is full (connection down
// for a long stretch) the oldest chunk is discarded to make room.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	for {
		select {
		case s.audio <- chunk:
			return nil
		case <-s.done:
			return ErrSessionClosed
		default:
		}
		select {
		case <-s.audio:
			s.metrics.RecordDroppedAudio(context.Background(), "deepgram")
		default:
		}
	}
}

// Events returns the session's ordered event stream.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close flushes pending audio and terminates the session.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	return conn, err
}

// run owns the connection lifecycle: serve until the socket fails, then
// redial with exponential backoff until it comes back, the attempt budget is
// spent, or the session ends.
func (s *session) run(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		err := s.serve(ctx, conn)
		if err == nil {
			// Clean shutdown via Close or ctx.
			return
		}

		s.emit(ctx, stt.Event{Kind: stt.EventDisconnected, Err: err})

		conn = s.redial(ctx)
		if conn == nil {
			return
		}
		s.emit(ctx, stt.Event{Kind: stt.EventReconnected})
	}
}

// redial attempts to re-establish the connection, doubling the wait between
// attempts up to maxBackoff. Returns nil when the attempt budget is spent or
// the session ended first; run then closes the event stream so the caller
// knows recognition is gone for good.
func (s *session) redial(ctx context.Context) *websocket.Conn {
	backoff := initialBackoff
	for attempt := 0; attempt < s.maxRedials; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-s.done:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		}

		conn, err := s.dial(ctx)
		if err == nil {
			return conn
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

// serve runs one connection to completion. A nil return means the session is
// shutting down; a non-nil return means the socket failed and run should
// redial.
func (s *session) serve(ctx context.Context, conn *websocket.Conn) error {
	connDone := make(chan struct{})
	var writeWG sync.WaitGroup
	writeWG.Add(1)
	go func() {
		defer writeWG.Done()
		s.writeLoop(ctx, conn, connDone)
	}()

	readErr := s.readLoop(ctx, conn)

	close(connDone)
	writeWG.Wait()

	select {
	case <-s.done:
		// Flush: ask Deepgram to finalize whatever audio it holds.
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		conn.Close(websocket.StatusNormalClosure, "session closed")
		return nil
	case <-ctx.Done():
		conn.Close(websocket.StatusNormalClosure, "context cancelled")
		return nil
	default:
	}

	conn.Close(websocket.StatusAbnormalClosure, "read failed")
	if readErr == nil {
		readErr = errors.New("deepgram: connection closed")
	}
	return readErr
}

// writeLoop feeds buffered audio to the socket and sends periodic KeepAlive
// messages so Deepgram does not drop an idle connection.
func (s *session) writeLoop(ctx context.Context, conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-s.audio:
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return
			}
		case <-connDone:
			return
		case <-s.done:
			// Drain whatever is already buffered before the flush in serve.
			for {
				select {
				case chunk := <-s.audio:
					if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop dispatches incoming messages until the socket fails or the session
// ends.
func (s *session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ev, ok := parseListenMessage(msg)
		if !ok {
			continue
		}
		if !s.emit(ctx, ev) {
			return nil
		}
	}
}

// emit sends an event unless the session is shutting down. Returns false when
// the session ended before the event could be delivered.
func (s *session) emit(ctx context.Context, ev stt.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// parseListenMessage converts a raw Listen message into an event. Returns
// false for message types we do not consume (Metadata, empty results).
func parseListenMessage(data []byte) (stt.Event, bool) {
	var msg listenMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return stt.Event{}, false
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return stt.Event{}, false
		}
		alt := msg.Channel.Alternatives[0]
		t := stt.Transcript{
			Text:        alt.Transcript,
			Confidence:  alt.Confidence,
			SpeechFinal: msg.SpeechFinal,
		}
		kind := stt.EventPartial
		if msg.IsFinal {
			kind = stt.EventFinal
		}
		return stt.Event{Kind: kind, Transcript: t}, true

	case "UtteranceEnd":
		return stt.Event{Kind: stt.EventUtteranceEnd}, true

	case "SpeechStarted":
		return stt.Event{Kind: stt.EventSpeechStarted}, true

	default:
		return stt.Event{}, false
	}
}
