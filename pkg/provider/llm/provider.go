// Package llm defines the streaming LLM provider interface used by the
// conversation engine, together with its request, message, and tool types.
//
// Providers stream assistant output as a channel of [Chunk] values. A chunk
// may carry text, one or more completed tool-call requests, or a finish
// reason. Tool-call fragments are accumulated inside the provider so callers
// only ever see fully assembled [ToolCall] values.
package llm

import "context"

// CompletionRequest bundles everything a provider needs for one generation.
type CompletionRequest struct {
	// SystemPrompt is sent as the first (system) message of the conversation.
	SystemPrompt string

	// Messages is the conversation history, oldest first.
	Messages []Message

	// Tools lists the tool definitions offered to the model. Nil or empty
	// disables tool calling for this request.
	Tools []ToolDefinition

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float64
}

// Chunk is a single streamed increment of a completion.
type Chunk struct {
	// Text is the token text of this chunk. May be empty on tool-call or
	// finish chunks.
	Text string

	// ToolCalls carries fully accumulated tool-call requests. Providers emit
	// these only on the chunk that also carries the finish reason.
	ToolCalls []ToolCall

	// FinishReason is non-empty on the final chunk of a stream, e.g. "stop",
	// "tool_calls", or "error".
	FinishReason string
}

// Provider is a streaming chat-completion backend with tool calling.
//
// Implementations must be safe for concurrent use; each StreamCompletion call
// owns its own stream. Cancelling ctx aborts the stream and closes the
// returned channel.
type Provider interface {
	// StreamCompletion starts a streaming generation and returns a channel of
	// chunks. The channel is closed when the generation finishes, errors, or
	// ctx is cancelled. A mid-stream failure is reported as a final chunk with
	// FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
