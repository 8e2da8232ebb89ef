package telephony

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// ErrConnectionLost wraps any read or write failure on the carrier socket.
// The caller treats it as the caller hanging up.
var ErrConnectionLost = errors.New("telephony: connection lost")

// Carrier is the call session's view of the carrier leg. *Stream implements
// it over a live WebSocket; tests substitute a fake.
type Carrier interface {
	// ReadEvent blocks for the next inbound frame. Returns an error wrapping
	// [ErrConnectionLost] when the socket drops.
	ReadEvent(ctx context.Context) (InboundEvent, error)

	// SendAudio forwards one mu-law chunk to the caller.
	SendAudio(ctx context.Context, audio []byte) error

	// SendMark queues a playback checkpoint. The carrier echoes it as a mark
	// event once all audio sent before it has been played out.
	SendMark(ctx context.Context, name string) error

	// SendClear drops the carrier's buffered playback immediately.
	SendClear(ctx context.Context) error

	// Close tears down the socket.
	Close() error
}

// Stream is a live Media Streams connection.
//
// The stream SID is unknown until the carrier's start event arrives; the
// handler that accepts the socket calls [Stream.SetStreamSID] before any
// outbound frame is sent. Writes are serialised because audio forwarding and
// barge-in clears race.
type Stream struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.RWMutex
	streamSID string
}

var _ Carrier = (*Stream)(nil)

// NewStream wraps an accepted carrier WebSocket.
func NewStream(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// SetStreamSID records the stream identifier from the start event.
func (s *Stream) SetStreamSID(sid string) {
	s.mu.Lock()
	s.streamSID = sid
	s.mu.Unlock()
}

// StreamSID returns the recorded stream identifier.
func (s *Stream) StreamSID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSID
}

// ReadEvent implements [Carrier].
func (s *Stream) ReadEvent(ctx context.Context) (InboundEvent, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return InboundEvent{}, fmt.Errorf("%w: read: %v", ErrConnectionLost, err)
	}
	return ParseInbound(data)
}

// SendAudio implements [Carrier].
func (s *Stream) SendAudio(ctx context.Context, audio []byte) error {
	data, err := EncodeMedia(s.StreamSID(), audio)
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

// SendMark implements [Carrier].
func (s *Stream) SendMark(ctx context.Context, name string) error {
	data, err := EncodeMark(s.StreamSID(), name)
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

// SendClear implements [Carrier].
func (s *Stream) SendClear(ctx context.Context) error {
	data, err := EncodeClear(s.StreamSID())
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

// Close implements [Carrier].
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "call ended")
}

func (s *Stream) write(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
	}
	return nil
}
