package mock

import (
	"sync"
	"testing"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/tts"
)

func TestFlushAutoReply(t *testing.T) {
	t.Parallel()

	s := NewStream()
	if err := s.SpeakFragment("hello"); err != nil {
		t.Fatalf("SpeakFragment: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if ev := <-s.Events(); ev.Kind != tts.EventAudio {
		t.Errorf("first event = %v, want audio", ev.Kind)
	}
	if ev := <-s.Events(); ev.Kind != tts.EventFlushed {
		t.Errorf("second event = %v, want flushed", ev.Kind)
	}
}

func TestFlushManualStaysQuiet(t *testing.T) {
	t.Parallel()

	s := NewStream()
	s.Manual = true
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %v in manual mode", ev.Kind)
	default:
	}
}

func TestFlushRacingClose(t *testing.T) {
	t.Parallel()

	// A Flush landing while the stream is being torn down must either
	// deliver its reply or see the closed flag; it must never send on the
	// closed channel.
	for i := 0; i < 200; i++ {
		s := NewStream()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Flush()
		}()
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
		wg.Wait()
	}
}
