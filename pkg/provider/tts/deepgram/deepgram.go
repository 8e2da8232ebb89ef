// Package deepgram implements tts.Provider on the Deepgram Speak streaming
// WebSocket API.
//
// The Speak protocol is half duplex per message: control frames (Speak, Flush,
// Clear, Close) go out as JSON text messages, synthesised audio comes back as
// binary frames, and segment boundaries come back as {"type":"Flushed"} text
// messages. Audio for a telephony deployment is requested as containerless
// mu-law at 8 kHz so chunks can be forwarded to the carrier without
// transcoding.
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

	"github.com/coder/websocket"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/speak"
	defaultVoice      = "aura-asteria-en"
	defaultEncoding   = "mulaw"
	defaultSampleRate = 8000
)

// ErrStreamClosed is returned by control methods after Close.
var ErrStreamClosed = errors.New("deepgram: stream is closed")

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithEndpoint overrides the Speak endpoint URL. Used to point at a test
// server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithVoice sets the default voice model used when StreamConfig.Voice is
// empty.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// Provider implements tts.Provider backed by the Deepgram Speak API.
type Provider struct {
	apiKey   string
	endpoint string
	voice    string
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		voice:    defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming synthesis session.
func (p *Provider) StartStream(ctx context.Context, cfg tts.StreamConfig) (tts.StreamHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	st := &stream{
		conn:   conn,
		events: make(chan tts.Event, 256),
		done:   make(chan struct{}),
	}

	st.wg.Add(1)
	go st.readLoop(ctx)

	return st, nil
}

// buildURL constructs the Speak endpoint URL for the given config.
func (p *Provider) buildURL(cfg tts.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	voice := ResolveVoice(cfg.Voice)
	if cfg.Voice == "" {
		voice = p.voice
	}
	enc := cfg.Encoding
	if enc == "" {
		enc = defaultEncoding
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", voice)
	q.Set("encoding", enc)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("container", "none")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ─── stream ─────────────────────────────────────────────────────────────────

// speakMessage is the outbound Speak control frame.
type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverMessage is the subset of inbound text frames we consume.
type serverMessage struct {
	Type string `json:"type"`
}

// stream is a live Speak session. It implements tts.StreamHandle.
type stream struct {
	conn   *websocket.Conn
	events chan tts.Event

	writeMu sync.Mutex

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ tts.StreamHandle = (*stream)(nil)

// SpeakFragment queues a text fragment for synthesis.
func (s *stream) SpeakFragment(text string) error {
	return s.send(speakMessage{Type: "Speak", Text: text})
}

// Flush marks the end of the current segment.
func (s *stream) Flush() error {
	return s.send(speakMessage{Type: "Flush"})
}

// Clear discards all queued text and pending audio upstream.
func (s *stream) Clear() error {
	return s.send(speakMessage{Type: "Clear"})
}

// Events returns the stream's ordered event channel.
func (s *stream) Events() <-chan tts.Event { return s.events }

// Close terminates the stream.
func (s *stream) Close() error {
	s.once.Do(func() {
		_ = s.send(speakMessage{Type: "Close"})
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// send marshals and writes one control frame. Writes are serialised because
// control frames can originate from both the speaking goroutine and barge-in.
func (s *stream) send(msg speakMessage) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("deepgram: marshal %s: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		return fmt.Errorf("deepgram: write %s: %w", msg.Type, err)
	}
	return nil
}

// readLoop dispatches inbound frames until the socket closes.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			case <-ctx.Done():
			default:
				s.emit(ctx, tts.Event{Kind: tts.EventDisconnected, Err: err})
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if !s.emit(ctx, tts.Event{Kind: tts.EventAudio, Audio: msg}) {
				return
			}

		case websocket.MessageText:
			var sm serverMessage
			if err := json.Unmarshal(msg, &sm); err != nil {
				continue
			}
			if sm.Type == "Flushed" {
				if !s.emit(ctx, tts.Event{Kind: tts.EventFlushed}) {
					return
				}
			}
			// Metadata, Cleared, and Warning frames are ignored.
		}
	}
}

func (s *stream) emit(ctx context.Context, ev tts.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}
