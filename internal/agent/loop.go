package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkai/internal/llm"
	"pkai/internal/protocol"
)

const (
	DefaultMaxTurns = 10

	StopComplete = "complete"
	StopMaxTurns = "max_turns"

	warnTruncate = 500
)

// SystemPrompt steers the model toward the registered tools.
const SystemPrompt = `You are the Personal Knowledge AI Assistant (PKAI). You help the user reason over their personal knowledge.

- Use the search_knowledge_base tool when the user's question is about their own documents, notes, or stored information.
- Use fetch_external_updates only when the user explicitly asks for external or recent information.
- To save a note or document for the user, use create_file_in_drive (creates a file in their Google Drive).
- To list the user's task lists, use list_google_task_lists.
- To create a task for the user, use create_google_task (creates a task in their Google Tasks). These execute immediately; report what was done.

Be concise and grounded. When you use retrieved knowledge, say so briefly. If a tool returns an error (e.g. starts with 'Error:' or 'Tool error:'), always quote that exact error message in your reply so the user knows what went wrong.`

// HistoryEntry is a prior turn supplied by the caller. Assistant entries
// whose Content is not a string are dropped.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// SuggestedAction is reserved for follow-up actions proposed to the user.
type SuggestedAction struct {
	ToolName    string         `json:"tool_name"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
}

type ChatResult struct {
	Response         string            `json:"response"`
	UsedKnowledge    bool              `json:"used_knowledge"`
	ToolsInvoked     []string          `json:"tools_invoked"`
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
	Turns            int               `json:"turns"`
	StopReason       string            `json:"stop_reason"`
}

type LoopOptions struct {
	Model    llm.Model
	Registry *Registry
	// MaxTurns bounds model invocations per run. Zero selects DefaultMaxTurns.
	MaxTurns     int
	SystemPrompt string
	Logger       *slog.Logger
}

// Loop alternates model turns and tool dispatch until the model answers
// without requesting tools or the turn budget runs out.
type Loop struct {
	model        llm.Model
	registry     *Registry
	maxTurns     int
	systemPrompt string
	logger       *slog.Logger
}

func NewLoop(opts LoopOptions) *Loop {
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt
	}
	registry := opts.Registry
	if registry == nil {
		registry, _ = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		model:        opts.Model,
		registry:     registry,
		maxTurns:     maxTurns,
		systemPrompt: prompt,
		logger:       logger.With("component", "agent"),
	}
}

// Run answers query. Only model failures are returned as errors; tool
// failures are fed back to the model as text.
func (l *Loop) Run(ctx context.Context, query string, history []HistoryEntry) (ChatResult, error) {
	logger := l.logger.With("run_id", uuid.NewString())
	start := time.Now()

	messages := l.seed(query, history)
	defs := l.registry.Definitions()
	result := ChatResult{
		ToolsInvoked:     []string{},
		SuggestedActions: []SuggestedAction{},
	}
	lastText := ""

	for turn := 1; turn <= l.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return ChatResult{}, err
		}
		result.Turns = turn

		reply, err := l.model.Complete(ctx, messages, defs)
		if err != nil {
			logger.Error("model call failed", "turn", turn, "error", err)
			return ChatResult{}, fmt.Errorf("model turn %d: %w", turn, err)
		}
		if reply == nil {
			reply = &llm.Reply{}
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		if strings.TrimSpace(reply.Content) != "" {
			lastText = reply.Content
		}

		if len(reply.ToolCalls) == 0 {
			result.Response = reply.Content
			result.StopReason = StopComplete
			l.finish(logger, &result, start)
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			if call.Name == "" {
				continue
			}
			result.ToolsInvoked = append(result.ToolsInvoked, call.Name)
			outcome := l.registry.Dispatch(ctx, call.Name, call.Arguments)
			if looksLikeError(outcome.Text) {
				logger.Warn("tool returned error", "tool", call.Name, "kind", outcome.Kind.String(), "result", truncate(outcome.Text, warnTruncate))
			} else {
				logger.Debug("tool done", "tool", call.Name, "chars", len(outcome.Text))
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    outcome.Text,
				ToolCallID: call.ID,
			})
		}
	}

	result.Response = lastText
	if result.Response == "" {
		result.Response = protocol.NoResponse
	}
	result.StopReason = StopMaxTurns
	l.finish(logger, &result, start)
	return result, nil
}

func (l *Loop) seed(query string, history []HistoryEntry) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: l.systemPrompt})
	for _, entry := range history {
		switch entry.Role {
		case string(llm.RoleUser):
			content, _ := entry.Content.(string)
			if content == "" && entry.Content != nil {
				content = fmt.Sprint(entry.Content)
			}
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: content})
		case string(llm.RoleAssistant):
			if content, ok := entry.Content.(string); ok {
				messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: content})
			}
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: query})
}

func (l *Loop) finish(logger *slog.Logger, result *ChatResult, start time.Time) {
	for _, name := range result.ToolsInvoked {
		if name == protocol.ToolNameSearchKnowledge {
			result.UsedKnowledge = true
			break
		}
	}
	logger.Info("chat run done",
		"turns", result.Turns,
		"stop_reason", result.StopReason,
		"tools", len(result.ToolsInvoked),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func looksLikeError(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(lower, "error") || strings.Contains(lower, "tool error")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
