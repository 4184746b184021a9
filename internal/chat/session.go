package chat

import (
	"context"
	"errors"
	"strings"

	"pkai/internal/agent"
	"pkai/internal/llm"
	"pkai/internal/mcp"
)

// Asker runs one conversation turn.
type Asker interface {
	Ask(ctx context.Context, query string, history []agent.HistoryEntry) (agent.ChatResult, error)
}

// Session keeps history in memory for the life of the process.
type Session struct {
	asker   Asker
	history []agent.HistoryEntry
}

func NewSession(asker Asker) *Session {
	return &Session{asker: asker}
}

// Send asks query with the accumulated history. Successful turns are
// appended to the history; failed turns leave it unchanged.
func (s *Session) Send(ctx context.Context, query string) (agent.ChatResult, error) {
	history := append([]agent.HistoryEntry(nil), s.history...)
	res, err := s.asker.Ask(ctx, query, history)
	if err != nil {
		return agent.ChatResult{}, err
	}
	s.history = append(s.history,
		agent.HistoryEntry{Role: "user", Content: query},
		agent.HistoryEntry{Role: "assistant", Content: res.Response},
	)
	return res, nil
}

func (s *Session) Clear() { s.history = nil }

// Len is the number of history entries kept.
func (s *Session) Len() int { return len(s.history) }

type command int

const (
	cmdNone command = iota
	cmdHelp
	cmdQuit
	cmdClear
	cmdUnknown
)

func parseCommand(input string) command {
	if !strings.HasPrefix(input, "/") {
		return cmdNone
	}
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help", "/?":
		return cmdHelp
	case "/quit", "/exit":
		return cmdQuit
	case "/clear":
		return cmdClear
	default:
		return cmdUnknown
	}
}

// Hint maps a turn failure to operator guidance, or "" when none applies.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case llm.IsQuotaError(err):
		return "The model provider reports an exhausted quota or rate limit. Wait, or switch LLM_PROVIDER."
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "Set the provider API key, e.g. pkai config set-secret OPENAI_API_KEY"
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Raise llm.timeout_seconds in pkai.toml."
	}
	return mcp.ActionableMessageForCode(mcp.CodeFromText(err.Error()))
}
