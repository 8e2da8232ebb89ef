package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	llmmock "github.com/voxdesk-ai/voxdesk/pkg/provider/llm/mock"
	ttsmock "github.com/voxdesk-ai/voxdesk/pkg/provider/tts/mock"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestFragmenterProperties(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	tokenGen := gen.OneGenOf(
		gen.AlphaString(),
		gen.OneConstOf(". ", ", ", "! ", "? ", " "),
	)

	properties.Property("no text is lost across fragments and residual", prop.ForAll(
		func(tokens []string) bool {
			var f Fragmenter
			var got strings.Builder
			for _, tok := range tokens {
				for _, frag := range f.Push(tok) {
					got.WriteString(frag)
				}
			}
			if rest, ok := f.Flush(); ok {
				got.WriteString(rest)
			}
			return stripSpace(got.String()) == stripSpace(strings.Join(tokens, ""))
		},
		gen.SliceOf(tokenGen),
	))

	properties.Property("emitted fragments are never empty", prop.ForAll(
		func(tokens []string) bool {
			var f Fragmenter
			for _, tok := range tokens {
				for _, frag := range f.Push(tok) {
					if frag == "" {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(tokenGen),
	))

	properties.TestingRun(t)
}

func TestToolBudgetProperty(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("executed tool calls never exceed the per-turn cap", prop.ForAll(
		func(budget, requested int) bool {
			turns := make([][]llm.Chunk, 0, requested+1)
			for i := 0; i < requested; i++ {
				turns = append(turns, []llm.Chunk{{
					ToolCalls: []llm.ToolCall{{
						ID:        fmt.Sprintf("c%d", i),
						Name:      "get_working_hours",
						Arguments: `{}`,
					}},
					FinishReason: "tool_calls",
				}})
			}
			turns = append(turns, []llm.Chunk{{Text: "Done."}, {FinishReason: "stop"}})

			provider := &llmmock.Provider{Turns: turns}
			snap := testSnapshot()
			snap.Tools.MaxCallsPerTurn = budget
			e := New(provider, testRouter(t))

			// A model that keeps requesting past the budget makes the run
			// fail after the round cap; the bound must hold regardless.
			res, _ := e.Run(context.Background(), snap, userTurn("hours?"), ttsmock.NewStream())
			return res == nil || len(res.ToolCalls) <= budget
		},
		gen.IntRange(1, 3),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}
