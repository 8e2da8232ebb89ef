package booking

import (
	"strings"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// Intent is a completed booking commitment detected in conversation.
type Intent struct {
	// Service is the matched service name, empty when none was recognised.
	Service string

	// Confirmation is the assistant sentence that sealed the booking.
	Confirmation string

	// RequestText is the user utterance the confirmation answered.
	RequestText string
}

// confirmPhrases mark an assistant turn as a booking commitment. Matching is
// substring-based on the lowercased text, so "Booked for tomorrow at 9 AM."
// matches "booked".
var confirmPhrases = []string{
	"booked",
	"i've scheduled",
	"i have scheduled",
	"your appointment is confirmed",
	"appointment is set",
	"you're all set for",
	"we'll see you",
}

// declinePhrases veto a match: the assistant is talking about booking without
// committing one.
var declinePhrases = []string{
	"fully booked",
	"can't book",
	"cannot book",
	"unable to book",
	"not able to book",
	"would you like me to book",
	"shall i book",
}

// DetectIntent examines the conversation history for a booking sealed by the
// most recent assistant turn. services are the tenant's known service names,
// used to tag the booking; an empty slice is fine.
//
// Detection is deliberately conservative: only an explicit commitment phrase
// in the latest assistant turn counts, so one conversation yields at most one
// intent per confirmation.
func DetectIntent(history []llm.Message, services []string) (*Intent, bool) {
	last := lastContentMessage(history)
	if last == nil || last.Role != llm.RoleAssistant {
		return nil, false
	}

	text := strings.ToLower(last.Content)
	for _, p := range declinePhrases {
		if strings.Contains(text, p) {
			return nil, false
		}
	}

	var confirmed bool
	for _, p := range confirmPhrases {
		if strings.Contains(text, p) {
			confirmed = true
			break
		}
	}
	if !confirmed {
		return nil, false
	}

	intent := &Intent{
		Confirmation: last.Content,
		RequestText:  lastUserUtterance(history),
		Service:      matchService(history, services),
	}
	return intent, true
}

// lastContentMessage returns the newest message that carries spoken text,
// skipping tool-result entries.
func lastContentMessage(history []llm.Message) *llm.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == llm.RoleTool {
			continue
		}
		if m.Content == "" {
			continue
		}
		return &history[i]
	}
	return nil
}

func lastUserUtterance(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// matchService scans the whole conversation for the first tenant service name
// mentioned by either party.
func matchService(history []llm.Message, services []string) string {
	if len(services) == 0 {
		return ""
	}
	for _, m := range history {
		if m.Role == llm.RoleTool || m.Content == "" {
			continue
		}
		text := strings.ToLower(m.Content)
		for _, s := range services {
			if s != "" && strings.Contains(text, strings.ToLower(s)) {
				return s
			}
		}
	}
	return ""
}
