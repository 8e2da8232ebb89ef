// Package tts defines the streaming text-to-speech provider interface.
//
// A provider opens long-lived synthesis streams that accept text fragments as
// the language model produces them and emit encoded audio as soon as it is
// synthesised. Flush marks the end of a logical reply segment; the provider
// answers with a flushed event once all audio for the segment has been
// emitted, letting the caller track playback completion per segment. Clear
// discards everything queued but not yet emitted, which is how barge-in cuts
// the assistant off mid-sentence.
package tts

import "context"

// StreamConfig carries the voice and audio parameters for one stream.
type StreamConfig struct {
	// Voice is the provider voice name or a registered alias.
	Voice string

	// Encoding is the output codec, e.g. "mulaw" for telephony.
	Encoding string

	// SampleRate is the output sample rate in Hz.
	SampleRate int
}

// StreamHandle is a live synthesis stream.
type StreamHandle interface {
	// SpeakFragment queues a text fragment for synthesis.
	SpeakFragment(text string) error

	// Flush marks the end of the current segment. A [EventFlushed] arrives on
	// Events after the segment's last audio chunk.
	Flush() error

	// Clear discards all queued text and pending audio.
	Clear() error

	// Events returns the ordered stream of audio chunks and flush
	// confirmations. Closed by Close or when the stream is lost.
	Events() <-chan Event

	// Close terminates the stream.
	Close() error
}

// Provider opens streaming synthesis sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}
