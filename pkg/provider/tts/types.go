package tts

// EventKind discriminates the values carried on a stream's event channel.
type EventKind int

const (
	// EventAudio carries one encoded audio chunk.
	EventAudio EventKind = iota

	// EventFlushed confirms all audio for a flushed segment has been emitted.
	EventFlushed

	// EventDisconnected signals the upstream connection was lost. The stream
	// is unusable afterwards.
	EventDisconnected
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventFlushed:
		return "flushed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one entry on a stream's ordered event channel.
type Event struct {
	Kind EventKind

	// Audio is populated for EventAudio.
	Audio []byte

	// Err carries detail on EventDisconnected.
	Err error
}
