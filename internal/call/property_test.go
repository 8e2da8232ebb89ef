package call_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/voxdesk-ai/voxdesk/internal/call"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// Recognition event codes for generated sequences.
const (
	evPartial = iota // short interim, below the barge-in threshold
	evFinal
	evUtteranceEnd
)

// quiesce waits until no engine run is pending or in flight.
func quiesce(f *fixture) {
	last := -1
	stableSince := time.Now()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		count := f.provider.CallCount()
		state := f.sess.State()
		busy := state == call.StateThinking || state == call.StateAISpeaking
		if count != last || busy {
			last = count
			stableSince = time.Now()
		} else if time.Since(stableSince) > 150*time.Millisecond {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestSessionEventSequenceProperties checks the turn-taking invariants over
// random recognition event sequences: engine runs and assistant turns are
// bounded by utterance ends, and user turns never run back to back.
func TestSessionEventSequenceProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 15
	properties := gopter.NewProperties(params)

	properties.Property("turn-taking invariants hold", prop.ForAll(
		func(events []int) bool {
			f := newFixture(t)
			f.provider.Turns = [][]llm.Chunk{answer("Monday nine to five.")}
			f.run()
			f.waitIdle()

			utteranceEnds := 0
			for _, ev := range events {
				switch ev {
				case evPartial:
					f.stt.EmitPartial("mm")
				case evFinal:
					f.stt.EmitFinal("what are your hours")
				case evUtteranceEnd:
					f.stt.EmitUtteranceEnd()
					utteranceEnds++
				}
			}
			quiesce(f)

			// Greeting aside, every assistant turn needs an utterance end.
			assistants := f.sess.History().AssistantTurns() - 1
			if assistants > utteranceEnds {
				t.Logf("assistants=%d utteranceEnds=%d", assistants, utteranceEnds)
				return false
			}
			if f.provider.CallCount() > utteranceEnds {
				t.Logf("runs=%d utteranceEnds=%d", f.provider.CallCount(), utteranceEnds)
				return false
			}

			prevUser := false
			for _, turn := range f.sess.History().Turns() {
				if turn.Msg.Role == llm.RoleTool || turn.Msg.Content == "" {
					continue
				}
				isUser := turn.Msg.Role == llm.RoleUser
				if isUser && prevUser {
					t.Log("two consecutive user turns")
					return false
				}
				prevUser = isUser
			}

			f.carrier.PushStop()
			select {
			case <-f.sess.Done():
			case <-time.After(2 * time.Second):
				t.Log("session did not end")
				return false
			}
			return true
		},
		gen.SliceOf(gen.IntRange(evPartial, evUtteranceEnd)),
	))

	properties.TestingRun(t)
}
