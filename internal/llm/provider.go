package llm

import (
	"fmt"
	"log/slog"
	"time"

	"pkai/internal/config"
)

var defaultBaseURLs = map[string]string{
	config.ProviderOpenAI:  "https://api.openai.com/v1",
	config.ProviderGemini:  "https://generativelanguage.googleapis.com/v1beta/openai",
	config.ProviderMistral: "https://api.mistral.ai/v1",
}

// DefaultBaseURL returns the OpenAI-compatible endpoint of a provider.
func DefaultBaseURL(provider string) string {
	return defaultBaseURLs[provider]
}

// NewFromConfig builds the chat client for the configured provider.
func NewFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*OpenAIClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL(cfg.Provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w (set %s)", cfg.Provider, ErrMissingAPIKey, config.APIKeyEnvVar(cfg.Provider))
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds == 0 {
		timeout = -1
	}
	return NewOpenAIClient(ClientOptions{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  baseURL,
		Timeout:  timeout,
		Logger:   logger,
	}), nil
}
