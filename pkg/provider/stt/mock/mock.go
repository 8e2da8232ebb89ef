// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
//
// Tests drive a call by pushing events into Session.Emit and inspecting the
// audio recorded by SendAudio.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/stt"
)

// Session is a scriptable stt.SessionHandle.
type Session struct {
	mu     sync.Mutex
	audio  [][]byte
	events chan stt.Event
	closed bool
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession creates a Session with a buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan stt.Event, 64)}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.audio = append(s.audio, c)
	return nil
}

// Events returns the event stream fed by Emit.
func (s *Session) Events() <-chan stt.Event { return s.events }

// Close closes the event stream. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Emit pushes an event to the session's consumer.
func (s *Session) Emit(ev stt.Event) {
	s.events <- ev
}

// EmitPartial pushes an interim transcript.
func (s *Session) EmitPartial(text string) {
	s.Emit(stt.Event{Kind: stt.EventPartial, Transcript: stt.Transcript{Text: text}})
}

// EmitFinal pushes a final transcript.
func (s *Session) EmitFinal(text string) {
	s.Emit(stt.Event{Kind: stt.EventFinal, Transcript: stt.Transcript{Text: text, SpeechFinal: true}})
}

// EmitUtteranceEnd pushes an utterance-end signal.
func (s *Session) EmitUtteranceEnd() {
	s.Emit(stt.Event{Kind: stt.EventUtteranceEnd})
}

// Audio returns a copy of all chunks recorded so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// StartCall records a single invocation of StartStream.
type StartCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock stt.Provider returning a fixed Session.
type Provider struct {
	mu sync.Mutex

	// Session is returned from StartStream. If nil, a fresh one is created
	// per call and recorded in Sessions.
	Session *Session

	// Err, if non-nil, is returned from StartStream.
	Err error

	// Calls records every invocation in order.
	Calls []StartCall

	// Sessions records sessions created when Session is nil.
	Sessions []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the configured session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Session != nil {
		return p.Session, nil
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}
