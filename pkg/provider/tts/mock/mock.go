// Package mock provides test doubles for the tts.Provider and
// tts.StreamHandle interfaces.
//
// By default the stream answers every Flush with a synthetic audio chunk
// followed by a flushed event, so session tests get a realistic
// speak-then-confirm sequence without a live synthesiser. Set Manual to drive
// events by hand instead.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

// Op records one control operation on a Stream in order.
type Op struct {
	// Kind is "speak", "flush", "clear", or "close".
	Kind string
	// Text is set for "speak".
	Text string
}

// Stream is a scriptable tts.StreamHandle.
type Stream struct {
	// Manual disables automatic audio/flushed replies to Flush.
	Manual bool

	mu     sync.Mutex
	ops    []Op
	events chan tts.Event
	closed bool
}

var _ tts.StreamHandle = (*Stream)(nil)

// NewStream creates a Stream with a buffered event channel.
func NewStream() *Stream {
	return &Stream{events: make(chan tts.Event, 64)}
}

// SpeakFragment records the fragment.
func (s *Stream) SpeakFragment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "speak", Text: text})
	return nil
}

// Flush records the flush and, unless Manual is set, replies with one audio
// chunk and a flushed event. The sends happen under the mutex so a concurrent
// Close cannot close the channel out from under them.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "flush"})
	if !s.Manual && !s.closed {
		s.events <- tts.Event{Kind: tts.EventAudio, Audio: []byte{0xff}}
		s.events <- tts.Event{Kind: tts.EventFlushed}
	}
	return nil
}

// Clear records the clear.
func (s *Stream) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "clear"})
	return nil
}

// Events returns the event channel fed by Emit and automatic Flush replies.
func (s *Stream) Events() <-chan tts.Event { return s.events }

// Close records the close and closes the event channel. Safe to call twice.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.ops = append(s.ops, Op{Kind: "close"})
		close(s.events)
	}
	return nil
}

// Emit pushes an event to the stream's consumer.
func (s *Stream) Emit(ev tts.Event) {
	s.events <- ev
}

// Ops returns a copy of all recorded operations.
func (s *Stream) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// Spoken returns the concatenated text of all speak operations.
func (s *Stream) Spoken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, op := range s.ops {
		if op.Kind == "speak" {
			out += op.Text
		}
	}
	return out
}

// ClearCount returns how many clears were recorded.
func (s *Stream) ClearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Kind == "clear" {
			n++
		}
	}
	return n
}

// StartCall records a single invocation of StartStream.
type StartCall struct {
	Ctx context.Context
	Cfg tts.StreamConfig
}

// Provider is a mock tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is returned from StartStream. If nil, a fresh one is created per
	// call and recorded in Streams.
	Stream *Stream

	// Err, if non-nil, is returned from StartStream.
	Err error

	// Calls records every invocation in order.
	Calls []StartCall

	// Streams records streams created when Stream is nil.
	Streams []*Stream
}

var _ tts.Provider = (*Provider)(nil)

// StartStream records the call and returns the configured stream.
func (p *Provider) StartStream(ctx context.Context, cfg tts.StreamConfig) (tts.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	s := NewStream()
	p.Streams = append(p.Streams, s)
	return s, nil
}
