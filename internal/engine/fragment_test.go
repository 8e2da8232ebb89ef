package engine

import (
	"reflect"
	"strings"
	"testing"
)

func TestFragmenterSentenceBoundary(t *testing.T) {
	t.Parallel()

	var f Fragmenter
	got := f.Push("Hello there. How can I help?")
	want := []string{"Hello there.", "How can I help?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Push = %q, want %q", got, want)
	}
	if f.Pending() {
		t.Error("unexpected residual text")
	}
}

func TestFragmenterShortCommaDoesNotFlush(t *testing.T) {
	t.Parallel()

	var f Fragmenter
	if got := f.Push("Hi, there"); got != nil {
		t.Errorf("Push = %q, want none", got)
	}
	rest, ok := f.Flush()
	if !ok || rest != "Hi, there" {
		t.Errorf("Flush = %q, %v", rest, ok)
	}
}

func TestFragmenterCommaFlushesAtTenChars(t *testing.T) {
	t.Parallel()

	var f Fragmenter
	got := f.Push("No worries mate, I can help")
	want := []string{"No worries mate,"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Push = %q, want %q", got, want)
	}
	rest, _ := f.Flush()
	if rest != "I can help" {
		t.Errorf("residual = %q", rest)
	}
}

func TestFragmenterForceFlushOnLongBuffer(t *testing.T) {
	t.Parallel()

	var f Fragmenter
	long := strings.Repeat("ab ", 20) // 60 chars, no boundary
	got := f.Push(long)
	if len(got) != 1 || got[0] != long {
		t.Errorf("Push = %q, want one forced fragment", got)
	}
}

func TestFragmenterAccumulatesAcrossPushes(t *testing.T) {
	t.Parallel()

	var f Fragmenter
	if got := f.Push("Is it completely blocked"); got != nil {
		t.Fatalf("early flush: %q", got)
	}
	got := f.Push(" or draining slowly?")
	want := []string{"Is it completely blocked or draining slowly?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Push = %q, want %q", got, want)
	}
}
