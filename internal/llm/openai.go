package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 120 * time.Second
	maxReplyBytes  = 8 << 20
)

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	provider   string
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOptions struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Timeout applies when HTTPClient is nil. Zero selects the default;
	// negative disables it.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewOpenAIClient(opts ClientOptions) *OpenAIClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		if timeout < 0 {
			timeout = 0
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIClient{
		provider:   opts.Provider,
		model:      strings.TrimSpace(opts.Model),
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "llm", "provider", opts.Provider),
	}
}

func (c *OpenAIClient) ModelName() string { return c.model }

// wire types

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Tools       []wireDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type wireDefinition struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request with temperature 0.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", c.provider, ErrMissingAPIKey)
	}
	temperature := 0.0
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    toWireMessages(messages),
		Tools:       toWireDefinitions(tools),
		Temperature: &temperature,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("sending chat completion",
		"model", c.model,
		"messages", len(messages),
		"tools", len(tools),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("API error",
			"model", c.model,
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 500),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody), Provider: c.provider, Model: c.model}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	choice := parsed.Choices[0]
	c.logger.Info("chat completion done",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", parsed.Usage.PromptTokens,
		"completion_tokens", parsed.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
	)

	return &Reply{
		Content:      strings.TrimSpace(choice.Message.Content),
		ToolCalls:    normalizeToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
	}, nil
}

// normalizeToolCalls is the only place provider tool calls are decoded. A
// missing id becomes "unknown" and unparsable arguments become an empty map.
func normalizeToolCalls(calls []wireToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = "unknown"
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(raw), &decoded); err == nil && decoded != nil {
				args = decoded
			}
		}
		out = append(out, ToolCall{
			ID:        id,
			Name:      strings.TrimSpace(call.Function.Name),
			Arguments: args,
		})
	}
	return out
}

func toWireMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			if m.Content == "" {
				wm.Content = nil
			}
			wm.ToolCalls = make([]wireToolCall, 0, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				encoded, err := json.Marshal(args)
				if err != nil {
					encoded = []byte("{}")
				}
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: functionCall{Name: call.Name, Arguments: string(encoded)},
				})
			}
		}
		out = append(out, wm)
	}
	return out
}

func toWireDefinitions(tools []ToolDefinition) []wireDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireDefinition, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, wireDefinition{
			Type:     "function",
			Function: functionDef{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}
	return out
}
