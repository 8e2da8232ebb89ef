// Package call owns the per-call orchestration: the turn-state machine that
// wires the carrier leg to speech recognition, the conversation engine, and
// synthesis, plus the process-wide registry of live sessions.
package call

// TurnState is the session's position in the turn-taking cycle.
type TurnState int

const (
	// StateIdle means nobody is speaking and no engine work is pending.
	StateIdle TurnState = iota

	// StateUserSpeaking means transcripts are arriving for an open user turn.
	StateUserSpeaking

	// StateThinking means an engine run is generating but no audio has been
	// synthesised yet.
	StateThinking

	// StateAISpeaking means assistant audio is being played to the caller.
	StateAISpeaking

	// StateEnding is absorbing: no new work starts, cleanup is under way.
	StateEnding
)

// String implements fmt.Stringer.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSpeaking:
		return "user_speaking"
	case StateThinking:
		return "thinking"
	case StateAISpeaking:
		return "ai_speaking"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}
