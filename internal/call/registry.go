package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDraining is returned from Register once shutdown has begun.
var ErrDraining = fmt.Errorf("call: registry is draining")

// Registry is the process-wide map of live sessions, keyed by carrier call
// sid. Safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	draining bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Register adds a session. It fails when the registry is draining or the call
// sid is already present.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return ErrDraining
	}
	if _, ok := r.sessions[s.CallSID()]; ok {
		return fmt.Errorf("call: session %q already registered", s.CallSID())
	}
	r.sessions[s.CallSID()] = s
	return nil
}

// Unregister removes a session by call sid. Unknown sids are ignored.
func (r *Registry) Unregister(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callSID)
}

// Get returns the session for callSID, or nil.
func (r *Registry) Get(callSID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[callSID]
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Drain stops accepting new sessions, asks every live session to end, and
// waits for them until ctx expires. Sessions still alive afterwards are
// abandoned; their sockets close when the process exits.
func (r *Registry) Drain(ctx context.Context) {
	r.mu.Lock()
	r.draining = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	if len(live) == 0 {
		return
	}
	r.logger.Info("draining sessions", "count", len(live))

	for _, s := range live {
		s.Shutdown("drained")
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			r.logger.Warn("drain window expired", "remaining", r.Active())
			return
		}
	}
	r.logger.Info("drain complete")
}
