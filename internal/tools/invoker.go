package tools

import (
	"context"
	"time"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// TurnInvoker scopes tool execution to one assistant turn: it counts calls
// against the tenant's budget, enforces the turn-wide hard cap as a shared
// deadline, and caches results so a repeated call with identical arguments
// returns the identical payload without re-running the handler.
//
// A TurnInvoker is used by a single engine run and is not safe for concurrent
// use.
type TurnInvoker struct {
	router *Router
	snap   *tenant.Snapshot

	deadline time.Time
	calls    int
	cache    map[string]Result
}

// NewTurnInvoker starts a turn against the given tenant. The turn-wide hard
// cap starts counting immediately.
func (r *Router) NewTurnInvoker(snap *tenant.Snapshot) *TurnInvoker {
	budget := snap.Tools.TurnBudget
	if budget <= 0 {
		budget = time.Second
	}
	return &TurnInvoker{
		router:   r,
		snap:     snap,
		deadline: time.Now().Add(budget),
		cache:    make(map[string]Result),
	}
}

// Remaining reports how many tool calls the turn budget still allows.
func (t *TurnInvoker) Remaining() int {
	max := t.snap.Tools.MaxCallsPerTurn
	if max <= 0 {
		max = 2
	}
	return max - t.calls
}

// Calls reports how many non-cached invocations ran this turn.
func (t *TurnInvoker) Calls() int { return t.calls }

// Invoke runs one tool call within the turn. Cache hits do not count against
// the budget. Once the turn's hard cap has passed, every further call is a
// Timeout without reaching the handler.
func (t *TurnInvoker) Invoke(ctx context.Context, name, argsJSON string) Result {
	key := name + "\x00" + argsJSON
	if res, ok := t.cache[key]; ok {
		return res
	}

	if !time.Now().Before(t.deadline) {
		t.router.metrics.RecordToolCall(ctx, name, string(TagTimeout), 0)
		return Result{Error: TagTimeout, Detail: "turn tool budget exhausted"}
	}

	turnCtx, cancel := context.WithDeadline(ctx, t.deadline)
	defer cancel()

	t.calls++
	res := t.router.Invoke(turnCtx, t.snap, name, argsJSON)
	t.cache[key] = res
	return res
}
