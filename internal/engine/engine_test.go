package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/internal/tools"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	llmmock "github.com/voxdesk-ai/voxdesk/pkg/provider/llm/mock"
	ttsmock "github.com/voxdesk-ai/voxdesk/pkg/provider/tts/mock"
)

func testSnapshot() *tenant.Snapshot {
	return &tenant.Snapshot{
		ID:          "acme-plumb",
		DisplayName: "Acme Plumbing",
		Industry:    "plumbing",
		Tools: tenant.ToolPolicy{
			MaxCallsPerTurn: 2,
			PerCallTimeout:  200 * time.Millisecond,
			TurnBudget:      time.Second,
		},
	}
}

func testRouter(t *testing.T) *tools.Router {
	t.Helper()
	store := tenant.NewMemStore()
	store.SetWorkingHours("acme-plumb", []tenant.DayHours{
		{Day: "monday", Open: "09:00", Close: "17:00"},
	})
	r, err := tools.NewRouter(store)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func userTurn(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: text}}
}

func TestRunStreamsAndSeals(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Turns: [][]llm.Chunk{{
		{Text: "We're open "},
		{Text: "Monday nine to five."},
		{FinishReason: "stop"},
	}}}
	out := ttsmock.NewStream()
	e := New(provider, testRouter(t))

	res, err := e.Run(context.Background(), testSnapshot(), userTurn("What are your hours?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "We're open Monday nine to five." {
		t.Errorf("Text = %q", res.Text)
	}
	if out.Spoken() != res.Text {
		t.Errorf("Spoken = %q, want %q", out.Spoken(), res.Text)
	}
	if len(res.Messages) != 1 || res.Messages[0].Role != llm.RoleAssistant {
		t.Fatalf("Messages = %+v", res.Messages)
	}

	ops := out.Ops()
	last := ops[len(ops)-1]
	if last.Kind != "flush" {
		t.Errorf("last op = %+v, want flush", last)
	}
}

func TestRunExecutesToolAndResumes(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Turns: [][]llm.Chunk{
		{
			{Text: "Let me check. "},
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_working_hours", Arguments: `{}`}}, FinishReason: "tool_calls"},
		},
		{
			{Text: "We're open Monday nine to five."},
			{FinishReason: "stop"},
		},
	}}
	out := ttsmock.NewStream()
	e := New(provider, testRouter(t))

	res, err := e.Run(context.Background(), testSnapshot(), userTurn("What are your hours?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(res.ToolCalls))
	}
	if !res.ToolCalls[0].Result.OK {
		t.Errorf("tool result = %+v", res.ToolCalls[0].Result)
	}

	// History shape: assistant(tool request), tool result, final assistant.
	roles := make([]string, len(res.Messages))
	for i, m := range res.Messages {
		roles[i] = m.Role
	}
	want := []string{llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles, want)
	}

	// The resumed generation saw the tool result.
	second := provider.Calls[1].Req
	var sawTool bool
	for _, m := range second.Messages {
		if m.Role == llm.RoleTool && strings.Contains(m.Content, `"ok":true`) {
			sawTool = true
		}
	}
	if !sawTool {
		t.Error("resumed request is missing the tool result message")
	}
}

func TestRunBudgetExhaustionFeedsSyntheticResult(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.Tools.MaxCallsPerTurn = 1

	provider := &llmmock.Provider{Turns: [][]llm.Chunk{
		{{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_working_hours", Arguments: `{}`}}, FinishReason: "tool_calls"}},
		{{ToolCalls: []llm.ToolCall{{ID: "c2", Name: "get_policies", Arguments: `{"topic":"cancellation"}`}}, FinishReason: "tool_calls"}},
		{{Text: "We're open Monday nine to five."}, {FinishReason: "stop"}},
	}}
	out := ttsmock.NewStream()
	e := New(provider, testRouter(t))

	res, err := e.Run(context.Background(), snap, userTurn("Hours and cancellation policy?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Errorf("executed tool calls = %d, want 1 (budget)", len(res.ToolCalls))
	}

	// The second tool round got the synthetic result, not a real lookup.
	third := provider.Calls[2].Req
	var sawSynthetic bool
	for _, m := range third.Messages {
		if m.Role == llm.RoleTool && strings.Contains(m.Content, "budget_exhausted") {
			sawSynthetic = true
		}
	}
	if !sawSynthetic {
		t.Error("model never saw the budget-exhausted result")
	}
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	provider := &llmmock.Provider{
		Turns: [][]llm.Chunk{{
			{Text: "This answer takes a while"},
			{FinishReason: "stop"},
		}},
		Delay: func(int) { <-release },
	}
	out := ttsmock.NewStream()
	e := New(provider, testRouter(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx, testSnapshot(), userTurn("Tell me everything"), out)
		errCh <- err
	}()

	cancel()
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("err = %v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunProviderErrorChunk(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Turns: [][]llm.Chunk{{
		{Text: "rate limited", FinishReason: "error"},
	}}}
	out := ttsmock.NewStream()
	e := New(provider, testRouter(t))

	_, err := e.Run(context.Background(), testSnapshot(), userTurn("Hello?"), out)
	if err == nil || errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want completion failure", err)
	}
}

func TestBuildSystemPromptUsesSnapshot(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.Tone = "calm"
	snap.PromptVars = map[string]string{
		"services_summary": "Blocked drains, hot water systems",
		"parking":          "Street parking out front",
	}

	prompt := BuildSystemPrompt(snap)
	for _, want := range []string{
		"Acme Plumbing", "plumbing", "calm",
		"Blocked drains, hot water systems",
		"parking: Street parking out front",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
}
