package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pkai/internal/llm"
	"pkai/internal/protocol"
)

func newTestLoop(t *testing.T, model llm.Model, tools ...Tool) *Loop {
	t.Helper()
	reg, err := NewRegistry(tools...)
	require.NoError(t, err)
	return NewLoop(LoopOptions{Model: model, Registry: reg})
}

func TestRun_TerminatesWithinTurnBudget(t *testing.T) {
	for _, historyLen := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("history=%d", historyLen), func(t *testing.T) {
			history := make([]HistoryEntry, 0, historyLen)
			for i := 0; i < historyLen; i++ {
				role := "user"
				if i%2 == 1 {
					role = "assistant"
				}
				history = append(history, HistoryEntry{Role: role, Content: fmt.Sprintf("msg %d", i)})
			}
			model := &scriptedModel{replies: []*llm.Reply{callReply("echo")}}
			loop := newTestLoop(t, model, staticTool("echo", "ok"))

			res, err := loop.Run(context.Background(), "loop forever", history)
			require.NoError(t, err)
			require.Equal(t, DefaultMaxTurns, model.calls)
			require.Equal(t, DefaultMaxTurns, res.Turns)
			require.Equal(t, StopMaxTurns, res.StopReason)
			require.Equal(t, protocol.NoResponse, res.Response)
			require.Len(t, res.ToolsInvoked, DefaultMaxTurns)
		})
	}
}

func TestRun_BudgetExhaustedKeepsLastAssistantText(t *testing.T) {
	reply := callReply("echo")
	reply.Content = "still working on it"
	model := &scriptedModel{replies: []*llm.Reply{reply}}
	loop := NewLoop(LoopOptions{Model: model, Registry: mustRegistry(t, staticTool("echo", "ok")), MaxTurns: 3})

	res, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, 3, model.calls)
	require.Equal(t, "still working on it", res.Response)
	require.Equal(t, StopMaxTurns, res.StopReason)
}

func TestRun_NoToolCallsSingleInvocation(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{textReply("hello there")}}
	loop := newTestLoop(t, model, staticTool(protocol.ToolNameSearchKnowledge, "x"))

	res, err := loop.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, 1, model.calls)
	require.Equal(t, "hello there", res.Response)
	require.Empty(t, res.ToolsInvoked)
	require.NotNil(t, res.ToolsInvoked)
	require.NotNil(t, res.SuggestedActions)
	require.False(t, res.UsedKnowledge)
	require.Equal(t, StopComplete, res.StopReason)
	require.Equal(t, 1, res.Turns)
}

func TestRun_UnknownToolContinues(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{callReply("nope", "echo"), textReply("done")}}
	loop := newTestLoop(t, model, staticTool("echo", "echoed"))

	res, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"nope", "echo"}, res.ToolsInvoked)
	require.Equal(t, "done", res.Response)

	second := model.received[1]
	var toolTexts []string
	for _, m := range second {
		if m.Role == llm.RoleTool {
			toolTexts = append(toolTexts, m.Content)
		}
	}
	require.Equal(t, []string{"Unknown tool: nope", "echoed"}, toolTexts)
}

func TestRun_ToolErrorAndPanicContinue(t *testing.T) {
	failing := funcTool{name: "fail", fn: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("disk on fire")
	}}
	panicky := funcTool{name: "boom", fn: func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}}
	model := &scriptedModel{replies: []*llm.Reply{callReply("fail", "boom"), textReply("sorry")}}
	loop := newTestLoop(t, model, failing, panicky)

	res, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, 2, model.calls)
	require.Equal(t, "sorry", res.Response)

	var toolTexts []string
	for _, m := range model.received[1] {
		if m.Role == llm.RoleTool {
			toolTexts = append(toolTexts, m.Content)
		}
	}
	require.Len(t, toolTexts, 2)
	require.True(t, strings.HasPrefix(toolTexts[0], "Tool error: "))
	require.Contains(t, toolTexts[0], "disk on fire")
	require.True(t, strings.HasPrefix(toolTexts[1], "Tool error: "))
	require.Contains(t, toolTexts[1], "kaboom")
}

func TestRun_ToolsInvokedPreservesOrderAndDuplicates(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{
		callReply("a", "b", "a"),
		callReply("c", "a"),
		textReply("fin"),
	}}
	loop := newTestLoop(t, model, staticTool("a", "1"), staticTool("b", "2"), staticTool("c", "3"))

	res, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "a", "c", "a"}, res.ToolsInvoked)
	require.Equal(t, 3, res.Turns)
}

func TestRun_ToolMessagesCarryCallIDs(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{callReply("a"), textReply("fin")}}
	loop := newTestLoop(t, model, staticTool("a", "1"))

	_, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	last := model.received[1][len(model.received[1])-1]
	require.Equal(t, llm.RoleTool, last.Role)
	require.Equal(t, "call-a-a", last.ToolCallID)
}

func TestRun_EmptyToolNameSkipped(t *testing.T) {
	reply := &llm.Reply{ToolCalls: []llm.ToolCall{{ID: "x", Name: ""}, {ID: "y", Name: "a"}}}
	model := &scriptedModel{replies: []*llm.Reply{reply, textReply("fin")}}
	loop := newTestLoop(t, model, staticTool("a", "1"))

	res, err := loop.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res.ToolsInvoked)

	toolMsgs := 0
	for _, m := range model.received[1] {
		if m.Role == llm.RoleTool {
			toolMsgs++
		}
	}
	require.Equal(t, 1, toolMsgs)
}

func TestRun_UsedKnowledge(t *testing.T) {
	cases := []struct {
		name  string
		calls []string
		want  bool
	}{
		{"none", nil, false},
		{"other tools", []string{protocol.ToolNameFetchExternal, protocol.ToolNameListTaskLists}, false},
		{"search first", []string{protocol.ToolNameSearchKnowledge, protocol.ToolNameFetchExternal}, true},
		{"search last", []string{protocol.ToolNameFetchExternal, protocol.ToolNameSearchKnowledge}, true},
		{"unknown tool", []string{"search_knowledge"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			replies := []*llm.Reply{}
			if len(tc.calls) > 0 {
				replies = append(replies, callReply(tc.calls...))
			}
			replies = append(replies, textReply("answer"))
			model := &scriptedModel{replies: replies}
			loop := newTestLoop(t, model,
				staticTool(protocol.ToolNameSearchKnowledge, "[1] (source: a.txt)\nx"),
				staticTool(protocol.ToolNameFetchExternal, "ext"),
				staticTool(protocol.ToolNameListTaskLists, "1. Inbox (id: L1)"),
			)
			res, err := loop.Run(context.Background(), "q", nil)
			require.NoError(t, err)
			require.Equal(t, tc.want, res.UsedKnowledge)
		})
	}
}

func TestRun_SeedsHistory(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{textReply("ok")}}
	loop := newTestLoop(t, model)

	_, err := loop.Run(context.Background(), "now", []HistoryEntry{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "assistant", Content: []any{map[string]any{"type": "tool_use"}}},
		{Role: "system", Content: "ignored"},
	})
	require.NoError(t, err)

	sent := model.received[0]
	require.Len(t, sent, 4)
	require.Equal(t, llm.RoleSystem, sent[0].Role)
	require.Equal(t, SystemPrompt, sent[0].Content)
	require.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first"}, sent[1])
	require.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "reply"}, sent[2])
	require.Equal(t, llm.Message{Role: llm.RoleUser, Content: "now"}, sent[3])
}

func TestRun_ModelErrorPropagates(t *testing.T) {
	apiErr := &llm.APIError{StatusCode: 429, Body: "quota"}
	model := llm.ModelFunc(func(context.Context, []llm.Message, []llm.ToolDefinition) (*llm.Reply, error) {
		return nil, apiErr
	})
	loop := newTestLoop(t, model)

	_, err := loop.Run(context.Background(), "q", nil)
	require.Error(t, err)
	var got *llm.APIError
	require.True(t, errors.As(err, &got))
	require.Same(t, apiErr, got)
	require.True(t, llm.IsQuotaError(err))
}

func TestRun_CancelledContext(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Reply{textReply("never")}}
	loop := newTestLoop(t, model)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Run(ctx, "q", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, model.calls)
}

func mustRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	reg, err := NewRegistry(tools...)
	require.NoError(t, err)
	return reg
}
