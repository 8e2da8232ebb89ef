// Package mock provides a scriptable telephony.Carrier for session tests.
// Tests push inbound events and inspect the recorded outbound frames.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk-ai/voxdesk/internal/telephony"
)

// Out records one outbound operation in order.
type Out struct {
	// Kind is "audio", "mark", or "clear".
	Kind string
	// Audio is set for "audio".
	Audio []byte
	// Name is set for "mark".
	Name string
}

// Carrier is a fake telephony.Carrier backed by channels.
type Carrier struct {
	mu     sync.Mutex
	out    []Out
	events chan telephony.InboundEvent
	closed chan struct{}
	once   sync.Once
}

var _ telephony.Carrier = (*Carrier)(nil)

// NewCarrier creates a Carrier with a buffered inbound queue.
func NewCarrier() *Carrier {
	return &Carrier{
		events: make(chan telephony.InboundEvent, 64),
		closed: make(chan struct{}),
	}
}

// Push queues an inbound event for ReadEvent.
func (c *Carrier) Push(ev telephony.InboundEvent) {
	c.events <- ev
}

// PushMedia queues a media event carrying raw audio. The payload goes through
// the same base64 framing a live carrier would use.
func (c *Carrier) PushMedia(audio []byte) {
	data, err := telephony.EncodeMedia("", audio)
	if err != nil {
		panic(err)
	}
	ev, err := telephony.ParseInbound(data)
	if err != nil {
		panic(err)
	}
	c.events <- ev
}

// PushStop queues the carrier's stop event.
func (c *Carrier) PushStop() {
	c.events <- telephony.InboundEvent{Event: telephony.EventStop}
}

// ReadEvent implements [telephony.Carrier].
func (c *Carrier) ReadEvent(ctx context.Context) (telephony.InboundEvent, error) {
	select {
	case <-ctx.Done():
		return telephony.InboundEvent{}, ctx.Err()
	case <-c.closed:
		return telephony.InboundEvent{}, telephony.ErrConnectionLost
	case ev := <-c.events:
		return ev, nil
	}
}

// SendAudio implements [telephony.Carrier].
func (c *Carrier) SendAudio(_ context.Context, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := make([]byte, len(audio))
	copy(a, audio)
	c.out = append(c.out, Out{Kind: "audio", Audio: a})
	return nil
}

// SendMark implements [telephony.Carrier].
func (c *Carrier) SendMark(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, Out{Kind: "mark", Name: name})
	return nil
}

// SendClear implements [telephony.Carrier].
func (c *Carrier) SendClear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, Out{Kind: "clear"})
	return nil
}

// Close implements [telephony.Carrier]. Safe to call twice.
func (c *Carrier) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Sent returns a copy of all outbound operations.
func (c *Carrier) Sent() []Out {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Out, len(c.out))
	copy(out, c.out)
	return out
}

// ClearCount returns how many clear frames were sent.
func (c *Carrier) ClearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.out {
		if o.Kind == "clear" {
			n++
		}
	}
	return n
}

// AudioBytes returns the total outbound audio byte count.
func (c *Carrier) AudioBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.out {
		n += len(o.Audio)
	}
	return n
}
