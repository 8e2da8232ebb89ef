// Package stt defines the streaming speech-to-text provider interface.
//
// A provider opens long-lived transcription sessions over telephony audio.
// Sessions surface everything the call loop needs as a single ordered channel
// of [Event] values: interim and final transcripts, utterance boundaries,
// speech-start signals, and connection-health transitions. Implementations own
// their reconnect policy; callers only observe [EventDisconnected] and
// [EventReconnected] pairs.
package stt

import "context"

// StreamConfig carries the audio and recognition parameters for one session.
type StreamConfig struct {
	// Encoding is the wire codec of the audio pushed via SendAudio,
	// e.g. "mulaw" for telephony.
	Encoding string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the channel count. Zero means provider default.
	Channels int

	// Language is the BCP-47 recognition language, e.g. "en".
	Language string

	// EndpointingMS is the provider's silence threshold in milliseconds for
	// marking a transcript speech-final. Zero means provider default.
	EndpointingMS int

	// UtteranceEndMS is the trailing-silence window in milliseconds after
	// which the provider emits an utterance-end event. Zero means provider
	// default.
	UtteranceEndMS int
}

// SessionHandle is a live transcription session.
//
// SendAudio never blocks on the network: audio is buffered internally and the
// oldest chunks are dropped if the connection stays down long enough to fill
// the buffer. The Events channel is closed only by Close or when the session
// is irrecoverably lost.
type SessionHandle interface {
	// SendAudio queues one audio chunk for transcription.
	SendAudio(chunk []byte) error

	// Events returns the ordered event stream for this session.
	Events() <-chan Event

	// Close flushes pending audio and terminates the session.
	Close() error
}

// Provider opens streaming transcription sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
