package engine

import "strings"

const (
	// commaFlushMin is the minimum buffered length before a comma counts as
	// a flush boundary. Shorter comma clauses sound choppy when synthesised
	// in isolation.
	commaFlushMin = 10

	// forceFlushLen is the buffer length beyond which the whole buffer is
	// emitted even without punctuation, keeping first-audio latency bounded
	// on long unpunctuated stretches.
	forceFlushLen = 50
)

// Fragmenter splits streamed token text into speakable fragments. A fragment
// ends at a sentence boundary ('.', '!', '?'), at a comma once at least
// commaFlushMin characters are buffered, or when the buffer grows past
// forceFlushLen.
//
// Not safe for concurrent use; each engine run owns one.
type Fragmenter struct {
	buf strings.Builder
}

// Push appends streamed text and returns any fragments that became complete.
func (f *Fragmenter) Push(text string) []string {
	f.buf.WriteString(text)

	var out []string
	for {
		s := f.buf.String()
		idx := boundaryIndex(s)
		if idx < 0 {
			if len(s) > forceFlushLen {
				f.buf.Reset()
				out = append(out, s)
			}
			break
		}
		f.buf.Reset()
		f.buf.WriteString(strings.TrimLeft(s[idx+1:], " \t\n\r"))
		out = append(out, s[:idx+1])
	}
	return out
}

// Flush returns the residual buffer, if any, and resets the fragmenter.
func (f *Fragmenter) Flush() (string, bool) {
	s := f.buf.String()
	f.buf.Reset()
	return s, s != ""
}

// Pending reports whether unemitted text is buffered.
func (f *Fragmenter) Pending() bool { return f.buf.Len() > 0 }

// boundaryIndex returns the index of the first flush boundary in s, or -1.
func boundaryIndex(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			return i
		case ',':
			if i+1 >= commaFlushMin {
				return i
			}
		}
	}
	return -1
}
