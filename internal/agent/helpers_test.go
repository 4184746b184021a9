package agent

import (
	"context"
	"sync"

	"pkai/internal/llm"
)

type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (t funcTool) Name() string               { return t.name }
func (t funcTool) Description() string        { return "test tool " + t.name }
func (t funcTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t funcTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

func staticTool(name, text string) funcTool {
	return funcTool{name: name, fn: func(context.Context, map[string]any) (string, error) { return text, nil }}
}

// scriptedModel replays replies in order and repeats the last one forever.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []*llm.Reply
	calls    int
	received [][]llm.Message
}

func (m *scriptedModel) Complete(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, append([]llm.Message(nil), messages...))
	idx := m.calls
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	m.calls++
	return m.replies[idx], nil
}

func callReply(names ...string) *llm.Reply {
	reply := &llm.Reply{}
	for i, name := range names {
		reply.ToolCalls = append(reply.ToolCalls, llm.ToolCall{
			ID:        "call-" + name + "-" + string(rune('a'+i)),
			Name:      name,
			Arguments: map[string]any{},
		})
	}
	return reply
}

func textReply(s string) *llm.Reply {
	return &llm.Reply{Content: s}
}
