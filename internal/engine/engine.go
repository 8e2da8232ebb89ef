// Package engine executes one conversational turn: it streams a completion
// from the language model, forwards speakable fragments to the synthesiser as
// they form, pauses generation to run requested tool calls through the
// per-turn invoker, and resumes with the tool results until the model
// finishes.
//
// The engine is stateless across turns. The session owns history and passes
// it in; the engine returns the messages to append so the session remains the
// single history writer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	"github.com/voxdesk-ai/voxdesk/internal/tools"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// ErrInterrupted is returned when the run's context is cancelled mid-stream,
// typically by barge-in. The partial text produced so far is available on the
// result.
var ErrInterrupted = errors.New("engine: run interrupted")

// budgetExhaustedResult is fed to the model as a synthetic tool result when
// it requests a call past the turn budget.
const budgetExhaustedResult = `{"ok":false,"error":"budget_exhausted","detail":"No more lookups are available this turn. Answer with what you already know or offer to take a message."}`

// Output receives speakable text. tts.StreamHandle satisfies it.
type Output interface {
	SpeakFragment(text string) error
	Flush() error
}

// ToolCallRecord is the audit record of one tool call within a turn.
type ToolCallRecord struct {
	Name   string
	Args   string
	Result tools.Result
}

// Result is the outcome of one engine run.
type Result struct {
	// Text is the assistant's full spoken text, partial when Interrupted.
	Text string

	// Messages are the history entries this turn produced, in order:
	// tool-requesting assistant messages, tool results, and the final
	// assistant message. Not populated when Interrupted.
	Messages []llm.Message

	// ToolCalls are the audit records of executed tool calls.
	ToolCalls []ToolCallRecord

	// Interrupted is set when the run was cancelled mid-stream.
	Interrupted bool
}

// Engine composes the LLM provider and the tool router.
type Engine struct {
	provider    llm.Provider
	router      *tools.Router
	maxTokens   int
	temperature float64
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithMaxTokens caps completion length per generation.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// New creates an Engine.
func New(provider llm.Provider, router *tools.Router, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		router:      router,
		maxTokens:   256,
		temperature: 0.7,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes one user turn. history must already contain the latest user
// utterance. Fragments are spoken through out as they form; Flush is called
// once after the final fragment.
//
// Cancellation aborts the stream and discards the pending buffer; the caller
// receives ErrInterrupted and decides how to record the partial turn.
func (e *Engine) Run(ctx context.Context, snap *tenant.Snapshot, history []llm.Message, out Output) (*Result, error) {
	messages := make([]llm.Message, len(history))
	copy(messages, history)

	inv := e.router.NewTurnInvoker(snap)
	res := &Result{}
	var frag Fragmenter
	var turnMessages []llm.Message

	// Each tool round is one generation; the final round produces no tool
	// calls. The bound only guards against a model that never finishes.
	maxRounds := snap.Tools.MaxCallsPerTurn + 2
	if maxRounds < 3 {
		maxRounds = 3
	}

	for round := 0; round < maxRounds; round++ {
		req := llm.CompletionRequest{
			SystemPrompt: BuildSystemPrompt(snap),
			Messages:     messages,
			Tools:        e.router.Definitions(),
			MaxTokens:    e.maxTokens,
			Temperature:  e.temperature,
		}

		ch, err := e.provider.StreamCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("engine: start completion: %w", err)
		}

		roundText, toolCalls, err := e.consume(ctx, ch, &frag, res, out)
		if err != nil {
			return res, err
		}

		if len(toolCalls) == 0 {
			// Model finished speaking. Flush the residual and seal the turn.
			if rest, ok := frag.Flush(); ok {
				if err := out.SpeakFragment(rest); err != nil {
					return res, fmt.Errorf("engine: speak: %w", err)
				}
			}
			if err := out.Flush(); err != nil {
				return res, fmt.Errorf("engine: flush: %w", err)
			}
			turnMessages = append(turnMessages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: roundText,
			})
			res.Messages = turnMessages
			return res, nil
		}

		// The model paused for tools. Record its request, execute each call
		// (or synthesise a budget-exhausted result), and resume.
		turnMessages = append(turnMessages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   roundText,
			ToolCalls: toolCalls,
		})
		messages = append(messages, turnMessages[len(turnMessages)-1])

		for _, tc := range toolCalls {
			content := budgetExhaustedResult
			if inv.Remaining() > 0 {
				toolRes := inv.Invoke(ctx, tc.Name, tc.Arguments)
				content = toolRes.JSON()
				res.ToolCalls = append(res.ToolCalls, ToolCallRecord{
					Name:   tc.Name,
					Args:   tc.Arguments,
					Result: toolRes,
				})
			} else {
				slog.Debug("tool budget exhausted, feeding synthetic result",
					"tool", tc.Name,
					"tenant", snap.ID)
			}
			toolMsg := llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: tc.ID,
			}
			turnMessages = append(turnMessages, toolMsg)
			messages = append(messages, toolMsg)
		}
	}

	return res, fmt.Errorf("engine: model did not finish after %d tool rounds", maxRounds)
}

// consume reads one generation's chunks, speaking fragments as they form.
// It returns the round's text and any tool calls requested at its end.
func (e *Engine) consume(ctx context.Context, ch <-chan llm.Chunk, frag *Fragmenter, res *Result, out Output) (string, []llm.ToolCall, error) {
	var roundText string
	for {
		select {
		case <-ctx.Done():
			go drainChunks(ch)
			res.Interrupted = true
			return roundText, nil, ErrInterrupted

		case chunk, ok := <-ch:
			if !ok {
				return roundText, nil, nil
			}
			if chunk.FinishReason == "error" {
				go drainChunks(ch)
				return roundText, nil, fmt.Errorf("engine: completion failed: %s", chunk.Text)
			}

			if chunk.Text != "" {
				roundText += chunk.Text
				res.Text += chunk.Text
				for _, f := range frag.Push(chunk.Text) {
					if err := out.SpeakFragment(f); err != nil {
						go drainChunks(ch)
						return roundText, nil, fmt.Errorf("engine: speak: %w", err)
					}
				}
			}

			if len(chunk.ToolCalls) > 0 {
				go drainChunks(ch)
				return roundText, chunk.ToolCalls, nil
			}
			if chunk.FinishReason != "" {
				go drainChunks(ch)
				return roundText, nil, nil
			}
		}
	}
}

// drainChunks discards remaining chunks so the provider goroutine can exit.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
