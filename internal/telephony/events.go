// Package telephony implements the carrier side of a call: the Twilio Media
// Streams WebSocket protocol.
//
// Every frame on the socket is a JSON text message with an "event"
// discriminator. Inbound we consume connected, start, media, mark, dtmf, and
// stop; outbound we produce media (base64 mu-law payload), mark (playback
// checkpoint), and clear (drop the carrier's playback buffer). [Stream] wraps
// a live socket; the parse and encode functions are exported separately so
// they can be exercised against recorded frames.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound event discriminators.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventStop      = "stop"
)

// StartInfo carries the call identifiers from the start event.
type StartInfo struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaInfo carries one inbound audio frame.
type MediaInfo struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// MarkInfo echoes a previously sent playback mark.
type MarkInfo struct {
	Name string `json:"name"`
}

// DTMFInfo carries a keypad press.
type DTMFInfo struct {
	Digit string `json:"digit"`
}

// InboundEvent is one parsed frame from the carrier.
type InboundEvent struct {
	Event     string     `json:"event"`
	StreamSID string     `json:"streamSid,omitempty"`
	Start     *StartInfo `json:"start,omitempty"`
	Media     *MediaInfo `json:"media,omitempty"`
	Mark      *MarkInfo  `json:"mark,omitempty"`
	DTMF      *DTMFInfo  `json:"dtmf,omitempty"`
}

// ParseInbound decodes one carrier frame.
func ParseInbound(data []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return InboundEvent{}, fmt.Errorf("telephony: parse frame: %w", err)
	}
	if ev.Event == "" {
		return InboundEvent{}, fmt.Errorf("telephony: frame missing event field")
	}
	return ev, nil
}

// AudioPayload decodes the base64 mu-law payload of a media event.
func (e InboundEvent) AudioPayload() ([]byte, error) {
	if e.Media == nil {
		return nil, fmt.Errorf("telephony: %s event has no media payload", e.Event)
	}
	audio, err := base64.StdEncoding.DecodeString(e.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("telephony: decode media payload: %w", err)
	}
	return audio, nil
}

// outboundMedia is the outbound media frame.
type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// outboundMark is the outbound mark frame.
type outboundMark struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// outboundClear is the outbound clear frame.
type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// EncodeMedia builds a media frame carrying base64-encoded audio.
func EncodeMedia(streamSID string, audio []byte) ([]byte, error) {
	msg := outboundMedia{Event: EventMedia, StreamSID: streamSID}
	msg.Media.Payload = base64.StdEncoding.EncodeToString(audio)
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media: %w", err)
	}
	return data, nil
}

// EncodeMark builds a mark frame. The carrier echoes it back once all audio
// queued before it has been played.
func EncodeMark(streamSID, name string) ([]byte, error) {
	msg := outboundMark{Event: EventMark, StreamSID: streamSID}
	msg.Mark.Name = name
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode mark: %w", err)
	}
	return data, nil
}

// EncodeClear builds a clear frame, which drops the carrier's buffered
// playback immediately.
func EncodeClear(streamSID string) ([]byte, error) {
	msg := outboundClear{Event: "clear", StreamSID: streamSID}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode clear: %w", err)
	}
	return data, nil
}
