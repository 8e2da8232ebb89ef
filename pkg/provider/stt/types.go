package stt

// EventKind discriminates the values carried on a session's event stream.
type EventKind int

const (
	// EventPartial is an interim transcript. Text may still change.
	EventPartial EventKind = iota

	// EventFinal is a final transcript for a segment of speech.
	EventFinal

	// EventUtteranceEnd signals the provider considers the current utterance
	// complete (trailing silence elapsed). Carries no transcript.
	EventUtteranceEnd

	// EventSpeechStarted signals voice activity after silence. Carries no
	// transcript.
	EventSpeechStarted

	// EventDisconnected signals the upstream connection dropped. The session
	// keeps buffering audio and reconnects on its own.
	EventDisconnected

	// EventReconnected signals the upstream connection was re-established.
	EventReconnected
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventSpeechStarted:
		return "speech_started"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Transcript is a recognition result, interim or final.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// Confidence is the overall confidence score (0.0 to 1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// SpeechFinal is set on final transcripts when the provider's endpointing
	// also considers the utterance finished.
	SpeechFinal bool
}

// Event is one entry on a session's ordered event stream.
type Event struct {
	Kind EventKind

	// Transcript is populated for EventPartial and EventFinal.
	Transcript Transcript

	// Err carries detail on EventDisconnected.
	Err error
}
