package assistant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pkai/internal/config"
	"pkai/internal/ingest"
	"pkai/internal/llm"
	"pkai/internal/mcp/mcptest"
	"pkai/internal/protocol"
	"pkai/internal/retrieval"
)

type staticSearcher struct {
	snippets []retrieval.Snippet
}

func (s staticSearcher) Search(context.Context, string, int) ([]retrieval.Snippet, error) {
	return s.snippets, nil
}

// toolThenAnswer requests one tool call, then answers using the last tool
// result it was given.
type toolThenAnswer struct {
	mu     sync.Mutex
	call   llm.ToolCall
	answer func(toolText string) string
	turns  int
}

func (m *toolThenAnswer) Complete(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
	last := messages[len(messages)-1]
	if last.Role != llm.RoleTool {
		return &llm.Reply{ToolCalls: []llm.ToolCall{m.call}}, nil
	}
	return &llm.Reply{Content: m.answer(last.Content)}, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Knowledge.DBPath = filepath.Join(t.TempDir(), "knowledge.sqlite")
	return cfg
}

func TestAsk_KnowledgeQuestionUsesRetrievedSnippet(t *testing.T) {
	snippet := retrieval.Snippet{Source: "resume.txt", Content: "5 years..."}
	model := &toolThenAnswer{
		call: llm.ToolCall{ID: "c1", Name: protocol.ToolNameSearchKnowledge, Arguments: map[string]any{"query": "experience"}},
		answer: func(toolText string) string {
			return "According to your retrieved knowledge (" + strings.SplitN(toolText, "\n", 2)[0] + "): 5 years of experience."
		},
	}
	srv := mcptest.NewServer()
	a, err := New(Options{
		Config:   testConfig(t),
		Model:    model,
		Searcher: staticSearcher{snippets: []retrieval.Snippet{snippet}},
		Dial:     srv.Dialer(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Ask(context.Background(), "What does my resume say about experience?", nil)
	require.NoError(t, err)
	require.True(t, res.UsedKnowledge)
	require.Equal(t, []string{protocol.ToolNameSearchKnowledge}, res.ToolsInvoked)
	require.Contains(t, res.Response, "retrieved knowledge")
	require.Contains(t, res.Response, "[1] (source: resume.txt)")
	require.Equal(t, 2, res.Turns)
	require.Zero(t, srv.Sessions(), "knowledge search must not touch the workspace server")
}

func TestAsk_CreateTaskResolvesDefaultList(t *testing.T) {
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, mcptest.Text(`[{"id":"L1","title":"My Tasks"}]`))
	srv.Handle(protocol.ServerToolCreateTask, mcptest.Text("Task created: Buy milk"))
	srv.Handle(protocol.ServerToolCreateDriveFile, mcptest.Text("unused"))

	model := &toolThenAnswer{
		call:   llm.ToolCall{ID: "c1", Name: protocol.ToolNameCreateGoogleTask, Arguments: map[string]any{"title": "Buy milk"}},
		answer: func(toolText string) string { return "Done: " + toolText },
	}
	cfg := testConfig(t)
	cfg.Workspace.UserEmail = "me@example.com"
	a, err := New(Options{Config: cfg, Model: model, Searcher: staticSearcher{}, Dial: srv.Dialer()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Ask(context.Background(), "Create a task called 'Buy milk'", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.ToolsInvoked)
	require.Equal(t, protocol.ToolNameCreateGoogleTask, res.ToolsInvoked[len(res.ToolsInvoked)-1])
	require.False(t, res.UsedKnowledge)
	require.Equal(t, "Done: Task created: Buy milk", res.Response)

	creates := srv.CallsTo(protocol.ServerToolCreateTask)
	require.Len(t, creates, 1)
	require.Equal(t, "L1", creates[0].Args["task_list_id"])
	require.Equal(t, "Buy milk", creates[0].Args["title"])
	require.Equal(t, "me@example.com", creates[0].Args["user_google_email"])

	// Listing and creation share one session, which is torn down afterwards.
	require.Equal(t, 1, srv.Sessions())
	require.Equal(t, 1, srv.Released())
}

func TestAsk_IngestedKnowledgeIsSearchable(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "resume.txt"), []byte("Experience: 5 years building Go services."), 0o644))

	model := &toolThenAnswer{
		call:   llm.ToolCall{ID: "c1", Name: protocol.ToolNameSearchKnowledge, Arguments: map[string]any{"query": "resume experience"}},
		answer: func(toolText string) string { return toolText },
	}
	a, err := New(Options{Config: testConfig(t), Model: model, Dial: mcptest.NewServer().Dialer()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	report, err := a.Ingest(context.Background(), docs, ingest.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Indexed)

	res, err := a.Ask(context.Background(), "What does my resume say about experience?", nil)
	require.NoError(t, err)
	require.True(t, res.UsedKnowledge)
	require.Equal(t, "[1] (source: resume.txt)\nExperience: 5 years building Go services.", res.Response)
}

func TestNew_RequiresProviderKeyWithoutModelOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	_, err := New(Options{Config: cfg})
	require.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestRegistryListsModelTools(t *testing.T) {
	a, err := New(Options{Config: testConfig(t), Model: llm.ModelFunc(nil), Searcher: staticSearcher{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.Equal(t, []string{
		protocol.ToolNameSearchKnowledge,
		protocol.ToolNameFetchExternal,
		protocol.ToolNameCreateDriveFile,
		protocol.ToolNameListTaskLists,
		protocol.ToolNameCreateGoogleTask,
	}, a.Registry().Names())
}
