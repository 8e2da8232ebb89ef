package llm

// Role values used in [Message].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single entry in the conversation history sent to the model.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message. For "tool" messages this is
	// the JSON-encoded tool result.
	Content string

	// ToolCalls contains the tool invocations an assistant message requested.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which call this
	// message answers.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments string, exactly as produced by
	// the model.
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does. Included in the prompt.
	Description string

	// Parameters is the JSON Schema for the tool's arguments.
	Parameters map[string]any
}
