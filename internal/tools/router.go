package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// ErrorTag classifies a failed tool invocation.
type ErrorTag string

const (
	// TagSchemaError marks arguments rejected by the tool's schema or an
	// unknown tool name.
	TagSchemaError ErrorTag = "schema_error"

	// TagNotFound marks a lookup that matched no record.
	TagNotFound ErrorTag = "not_found"

	// TagTimeout marks a handler cut off by the per-call or per-turn limit.
	TagTimeout ErrorTag = "timeout"

	// TagEmpty marks a successful lookup with nothing to return, usually a
	// missing topic. The engine asks a clarifying question.
	TagEmpty ErrorTag = "empty"

	// TagUpstream marks a store or handler failure.
	TagUpstream ErrorTag = "upstream"
)

// Result is the outcome of one tool invocation.
type Result struct {
	// OK is true when Payload holds a structured result.
	OK bool

	// Payload is the handler's structured result when OK.
	Payload any

	// Error classifies the failure when not OK.
	Error ErrorTag

	// Detail is a short human-readable failure description.
	Detail string

	// Latency is the handler wall time.
	Latency time.Duration
}

// JSON renders the result as the tool message content for the model.
func (r Result) JSON() string {
	var doc any
	if r.OK {
		doc = map[string]any{"ok": true, "result": r.Payload}
	} else {
		doc = map[string]any{"ok": false, "error": string(r.Error), "detail": r.Detail}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return `{"ok":false,"error":"upstream","detail":"result not serializable"}`
	}
	return string(data)
}

// compiledTool pairs a catalogue entry with its compiled schema.
type compiledTool struct {
	Tool
	schema *jsonschema.Schema
}

// Router validates, dispatches, and time-boxes tool invocations against the
// tenant store. It holds no per-call state; the per-turn budget and cache
// live in [TurnInvoker].
type Router struct {
	store   tenant.Store
	tools   map[string]compiledTool
	timeout time.Duration
	metrics *observe.Metrics
}

// RouterOption is a functional option for [NewRouter].
type RouterOption func(*Router)

// WithDefaultTimeout overrides the per-call timeout used when the tenant
// policy does not set one.
func WithDefaultTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

// WithMetrics sets the metrics recorder. Defaults to the global provider.
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter compiles the catalogue's schemas and returns a ready router.
func NewRouter(store tenant.Store, opts ...RouterOption) (*Router, error) {
	r := &Router{
		store:   store,
		tools:   make(map[string]compiledTool),
		timeout: 400 * time.Millisecond,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}

	for _, t := range Catalogue() {
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", t.Name)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(t.Name+".json", t.Schema); err != nil {
			return nil, fmt.Errorf("tools: add schema for %s: %w", t.Name, err)
		}
		schema, err := compiler.Compile(t.Name + ".json")
		if err != nil {
			return nil, fmt.Errorf("tools: compile schema for %s: %w", t.Name, err)
		}
		r.tools[t.Name] = compiledTool{Tool: t, schema: schema}
	}
	return r, nil
}

// Definitions returns the catalogue as LLM tool definitions.
func (r *Router) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range Catalogue() {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return defs
}

// Invoke validates argsJSON against the tool's schema, injects the tenant id,
// and runs the handler under the per-call timeout. It never returns an
// error; failures are classified in the Result.
func (r *Router) Invoke(ctx context.Context, snap *tenant.Snapshot, name, argsJSON string) Result {
	start := time.Now()
	done := func(res Result) Result {
		res.Latency = time.Since(start)
		status := "ok"
		if !res.OK {
			status = string(res.Error)
			slog.Debug("tool invocation failed",
				"tool", name,
				"tenant", snap.ID,
				"error", string(res.Error),
				"detail", res.Detail)
		}
		r.metrics.RecordToolCall(ctx, name, status, res.Latency)
		return res
	}

	t, ok := r.tools[name]
	if !ok {
		return done(Result{Error: TagSchemaError, Detail: fmt.Sprintf("unknown tool %q", name)})
	}

	var args map[string]any
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return done(Result{Error: TagSchemaError, Detail: "arguments are not a JSON object"})
	}
	if args == nil {
		args = map[string]any{}
	}

	// The model never chooses the tenant.
	args["tenant_id"] = snap.ID

	if err := t.schema.Validate(any(args)); err != nil {
		return done(Result{Error: TagSchemaError, Detail: err.Error()})
	}

	// A generic snapshot has no tenant collections to read.
	if snap.Generic {
		return done(Result{Error: TagNotFound, Detail: "no records for this caller"})
	}

	timeout := snap.Tools.PerCallTimeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := t.Handler(callCtx, r.store, snap, args)
	switch {
	case err == nil:
		return done(Result{OK: true, Payload: payload})
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return done(Result{Error: TagTimeout, Detail: fmt.Sprintf("tool exceeded %v", timeout)})
	case errors.Is(err, tenant.ErrNotFound):
		return done(Result{Error: TagNotFound, Detail: "no matching record"})
	case errors.Is(err, ErrEmpty):
		return done(Result{Error: TagEmpty, Detail: "no matching records; a topic may be required"})
	default:
		return done(Result{Error: TagUpstream, Detail: err.Error()})
	}
}
