package call_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxdesk-ai/voxdesk/internal/call"
)

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	reg := call.NewRegistry(nil)
	f := newFixture(t)
	f.run()

	if err := reg.Register(f.sess); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(f.sess); err == nil {
		t.Error("duplicate Register succeeded")
	}
	if got := reg.Active(); got != 1 {
		t.Errorf("Active = %d, want 1", got)
	}
	if got := reg.Get("CA100"); got != f.sess {
		t.Errorf("Get = %v", got)
	}
	if got := reg.Get("CA999"); got != nil {
		t.Errorf("Get unknown = %v, want nil", got)
	}

	reg.Unregister("CA100")
	if got := reg.Active(); got != 0 {
		t.Errorf("Active after Unregister = %d, want 0", got)
	}
}

func TestRegistryDrain(t *testing.T) {
	t.Parallel()

	reg := call.NewRegistry(nil)
	f := newFixture(t)
	f.run()
	f.waitIdle()
	if err := reg.Register(f.sess); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reg.Drain(ctx)

	select {
	case <-f.sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session still running after drain")
	}
	logs := f.sinks.CallLogs()
	if len(logs) != 1 || logs[0].Outcome != "drained" {
		t.Fatalf("call logs = %+v", logs)
	}

	g := newFixture(t)
	g.run()
	if err := reg.Register(g.sess); !errors.Is(err, call.ErrDraining) {
		t.Errorf("Register while draining = %v, want ErrDraining", err)
	}
}
