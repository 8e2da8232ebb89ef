package call

import (
	"strings"
	"sync"
	"time"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// Turn is one sealed history entry. Turns are immutable once appended.
type Turn struct {
	// Seq increases monotonically within a call.
	Seq int

	// Msg is the underlying conversation message, including tool calls and
	// tool results.
	Msg llm.Message

	// Interrupted marks an assistant turn cut short by barge-in.
	Interrupted bool

	At time.Time
}

// History is a call's append-only conversation record. The session is the
// single writer; readers get copies. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []Turn
	seq   int
	now   func() time.Time
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{now: time.Now}
}

func (h *History) append(msg llm.Message, interrupted bool) {
	h.seq++
	h.turns = append(h.turns, Turn{
		Seq:         h.seq,
		Msg:         msg,
		Interrupted: interrupted,
		At:          h.now(),
	})
}

// AppendUser seals one user utterance.
func (h *History) AppendUser(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(llm.Message{Role: llm.RoleUser, Content: text}, false)
}

// AppendAssistant seals one assistant utterance. interrupted marks a turn cut
// short by barge-in; its text is the portion generated before the cut.
func (h *History) AppendAssistant(text string, interrupted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(llm.Message{Role: llm.RoleAssistant, Content: text}, interrupted)
}

// AppendMessages seals an engine run's output in order: tool-requesting
// assistant messages, tool results, and the final assistant message.
func (h *History) AppendMessages(msgs []llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		h.append(m, false)
	}
}

// Messages returns the conversation as provider messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.turns))
	for i, t := range h.turns {
		out[i] = t.Msg
	}
	return out
}

// Turns returns a copy of all sealed turns.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// LastUserText returns the newest user utterance, or "".
func (h *History) LastUserText() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Msg.Role == llm.RoleUser {
			return h.turns[i].Msg.Content
		}
	}
	return ""
}

// UserTurns counts sealed user utterances.
func (h *History) UserTurns() int {
	return h.countSpoken(llm.RoleUser)
}

// AssistantTurns counts assistant turns that carried spoken text.
func (h *History) AssistantTurns() int {
	return h.countSpoken(llm.RoleAssistant)
}

func (h *History) countSpoken(role string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, t := range h.turns {
		if t.Msg.Role == role && t.Msg.Content != "" {
			n++
		}
	}
	return n
}

// Transcript renders the spoken conversation one line per turn, for the call
// log.
func (h *History) Transcript() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	for _, t := range h.turns {
		if t.Msg.Role == llm.RoleTool || t.Msg.Content == "" {
			continue
		}
		b.WriteString(t.Msg.Role)
		b.WriteString(": ")
		b.WriteString(t.Msg.Content)
		if t.Interrupted {
			b.WriteString(" [interrupted]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
