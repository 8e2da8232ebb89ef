package call

import "strings"

// farewellPhrases end the call when they appear in a sealed user utterance.
// Matching is on word boundaries after normalisation, so "maybe" does not
// match "bye".
var farewellPhrases = []string{
	"bye",
	"goodbye",
	"bye bye",
	"that's all",
	"that is all",
	"that'll be all",
	"that will be all",
	"nothing else",
	"no that's it",
	"i'm all set",
}

// IsFarewell reports whether text is an explicit goodbye. Politeness tokens
// alone ("thanks", "thank you") do not count; "thanks, bye" does.
func IsFarewell(text string) bool {
	norm := " " + normalizeFarewell(text) + " "
	for _, p := range farewellPhrases {
		if strings.Contains(norm, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalizeFarewell lowercases and strips punctuation except apostrophes,
// collapsing runs of whitespace.
func normalizeFarewell(text string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
			lastSpace = false
		case r == '’': // curly apostrophe from some STT models
			b.WriteByte('\'')
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
