// Package mock provides a test double for the llm.Provider interface.
//
// Turns holds one scripted chunk sequence per StreamCompletion invocation, so
// tests can drive multi-step tool-call conversations: the first call plays
// Turns[0], the second Turns[1], and so on. When the script runs out the
// provider replays the last turn.
package mock

import (
	"context"
	"sync"

	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the request passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Configure Turns (or Err) before use; read Calls after the test.
type Provider struct {
	mu sync.Mutex

	// Turns is the scripted chunk sequence per invocation.
	Turns [][]llm.Chunk

	// Err, if non-nil, is returned from StreamCompletion instead of opening a
	// channel.
	Err error

	// Delay, if set, is invoked with the invocation index before any chunk is
	// emitted. Tests use it to block a stream until told to proceed.
	Delay func(call int)

	// Calls records every invocation in order.
	Calls []StreamCall
}

var _ llm.Provider = (*Provider)(nil)

// StreamCompletion records the call and plays back the scripted turn.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, StreamCall{Ctx: ctx, Req: req})
	n := len(p.Calls) - 1
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return nil, err
	}
	var chunks []llm.Chunk
	if len(p.Turns) > 0 {
		turn := p.Turns[min(n, len(p.Turns)-1)]
		chunks = make([]llm.Chunk, len(turn))
		copy(chunks, turn)
	}
	delay := p.Delay
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		if delay != nil {
			delay(n)
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// CallCount returns how many times StreamCompletion was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
