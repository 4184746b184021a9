package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"pkai/internal/agent"
	"pkai/internal/llm"
)

type fakeAsker struct {
	histories [][]agent.HistoryEntry
	fail      map[string]error
}

func (f *fakeAsker) Ask(_ context.Context, query string, history []agent.HistoryEntry) (agent.ChatResult, error) {
	f.histories = append(f.histories, history)
	if err := f.fail[query]; err != nil {
		return agent.ChatResult{}, err
	}
	return agent.ChatResult{
		Response:         "echo: " + query,
		ToolsInvoked:     []string{"search_knowledge_base"},
		UsedKnowledge:    true,
		SuggestedActions: []agent.SuggestedAction{},
		Turns:            2,
		StopReason:       agent.StopComplete,
	}, nil
}

func decodeEvents(t *testing.T, out string) []jsonEvent {
	t.Helper()
	var events []jsonEvent
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		var ev jsonEvent
		require.NoError(t, json.Unmarshal(s.Bytes(), &ev), s.Text())
		require.Equal(t, "v1", ev.Version)
		events = append(events, ev)
	}
	return events
}

func TestSessionAccumulatesHistory(t *testing.T) {
	asker := &fakeAsker{fail: map[string]error{"boom": errors.New("model down")}}
	sess := NewSession(asker)
	ctx := context.Background()

	_, err := sess.Send(ctx, "first")
	require.NoError(t, err)
	_, err = sess.Send(ctx, "boom")
	require.Error(t, err)
	_, err = sess.Send(ctx, "second")
	require.NoError(t, err)

	require.Len(t, asker.histories, 3)
	require.Empty(t, asker.histories[0])
	require.Equal(t, []agent.HistoryEntry{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "echo: first"},
	}, asker.histories[2])
	require.Equal(t, 4, sess.Len())

	sess.Clear()
	require.Equal(t, 0, sess.Len())
}

func TestParseCommand(t *testing.T) {
	cases := map[string]command{
		"hello":        cmdNone,
		"/help":        cmdHelp,
		"/HELP extra":  cmdHelp,
		"/quit":        cmdQuit,
		"/exit":        cmdQuit,
		"/clear":       cmdClear,
		"/frobnicate":  cmdUnknown,
		"what is 1/2?": cmdNone,
	}
	for in, want := range cases {
		if got := parseCommand(in); got != want {
			t.Errorf("parseCommand(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHint(t *testing.T) {
	require.Empty(t, Hint(nil))
	require.Contains(t, Hint(&llm.APIError{StatusCode: 429, Body: "slow down"}), "quota")
	require.Contains(t, Hint(fmt.Errorf("openai: %w", llm.ErrMissingAPIKey)), "set-secret")
	require.Contains(t, Hint(errors.New("Error: UNAUTHENTICATED request")), "pkai auth workspace")
	require.Empty(t, Hint(errors.New("something odd")))
}

func TestRunJSONLoop(t *testing.T) {
	asker := &fakeAsker{fail: map[string]error{"bad": &llm.APIError{StatusCode: 429, Body: "quota exceeded"}}}
	in := strings.NewReader("hello\n\n/help\nbad\n/nope\n/clear\nagain\n/quit\nnever sent\n")
	var out bytes.Buffer

	err := RunJSONLoop(context.Background(), asker, Options{Provider: "openai", Model: "gpt-4o-mini", Tools: []string{"a", "b"}}, in, &out)
	require.NoError(t, err)

	events := decodeEvents(t, out.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	require.Equal(t, []string{"session", "result", "help", "error", "error", "cleared", "result", "exit"}, kinds)

	require.Equal(t, "gpt-4o-mini", events[0].Data["model"])
	require.Equal(t, "echo: hello", events[1].Data["response"])
	require.Equal(t, []any{"search_knowledge_base"}, events[1].Data["tools_invoked"])
	require.Equal(t, true, events[1].Data["used_knowledge"])
	require.Equal(t, "complete", events[1].Data["stop_reason"])
	require.Contains(t, events[3].Data["hint"], "quota")
	require.Contains(t, events[4].Data["message"], "unknown command")

	// /clear dropped the first exchange before "again" was asked.
	require.Len(t, asker.histories, 3)
	require.Len(t, asker.histories[1], 2)
	require.Empty(t, asker.histories[2])
}

func TestRunJSONLoopEndsAtEOF(t *testing.T) {
	var out bytes.Buffer
	err := RunJSONLoop(context.Background(), &fakeAsker{}, Options{}, strings.NewReader("q"), &out)
	require.NoError(t, err)
	events := decodeEvents(t, out.String())
	require.Len(t, events, 2)
	require.Equal(t, "result", events[1].Type)
}

func TestModelRoundTrip(t *testing.T) {
	asker := &fakeAsker{}
	m := initialModel(context.Background(), asker, Options{Provider: "openai", Model: "m"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(chatModel)
	require.True(t, m.ready)

	m.textInput.SetValue("what is due?")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)
	require.True(t, m.isLoading)
	require.NotNil(t, cmd)

	next, _ = m.Update(answerMsg{result: agent.ChatResult{Response: "Nothing.", ToolsInvoked: []string{"list_google_task_lists"}}})
	m = next.(chatModel)
	require.False(t, m.isLoading)
	last := m.messages[len(m.messages)-1]
	require.Contains(t, last, "Nothing.")
	require.Contains(t, last, "list_google_task_lists")

	m.textInput.SetValue("/clear")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(chatModel)
	require.Equal(t, m.banner, m.messages)
}

func TestRenderAnswerError(t *testing.T) {
	out := renderAnswer(agent.ChatResult{}, &llm.APIError{StatusCode: 429})
	require.Contains(t, out, "Hint:")
}
