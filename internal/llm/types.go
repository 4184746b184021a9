package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation sent to the model.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model, already decoded from
// the provider wire format.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition advertises one callable tool. Parameters is a JSON schema
// object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Reply struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Model is a chat completion backend that supports tool calling.
type Model interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error)

func (f ModelFunc) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error) {
	return f(ctx, messages, tools)
}
