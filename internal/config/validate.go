package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate checks required fields and enum constraints. Errors carry the
// CONFIG_INVALID prefix and an actionable hint so the CLI can exit 2.
func Validate(cfg Config) error {
	if err := validateEnums(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		env := APIKeyEnvVar(cfg.LLM.Provider)
		return fmt.Errorf("CONFIG_INVALID: Missing %s (required when LLM_PROVIDER=%s)\nSet env: %s=...\nOr store it: pkai config set-secret %s", env, cfg.LLM.Provider, env, env)
	}
	if cfg.Workspace.Transport == TransportStreamableHTTP && cfg.Workspace.HTTPURL != "" {
		u, err := url.Parse(cfg.Workspace.HTTPURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("CONFIG_INVALID: WORKSPACE_MCP_HTTP_URL=%q must be an http(s) URL", cfg.Workspace.HTTPURL)
		}
	}
	if cfg.Agent.MaxTurns <= 0 {
		return fmt.Errorf("CONFIG_INVALID: agent.max_turns=%d; must be positive", cfg.Agent.MaxTurns)
	}
	if cfg.Knowledge.TopK <= 0 {
		return fmt.Errorf("CONFIG_INVALID: knowledge.top_k=%d; must be positive", cfg.Knowledge.TopK)
	}
	if cfg.LLM.TimeoutSeconds < 0 || cfg.Workspace.ToolTimeoutSeconds < 0 {
		return fmt.Errorf("CONFIG_INVALID: timeouts must not be negative (0 disables)")
	}
	return nil
}

func validateEnums(cfg Config) error {
	if !slices.Contains(Providers, cfg.LLM.Provider) {
		return fmt.Errorf("CONFIG_INVALID: llm.provider=%q; allowed: %s", cfg.LLM.Provider, strings.Join(Providers, ", "))
	}
	if !slices.Contains(Transports, cfg.Workspace.Transport) {
		return fmt.Errorf("CONFIG_INVALID: workspace.transport=%q; allowed: %s", cfg.Workspace.Transport, strings.Join(Transports, ", "))
	}
	if !slices.Contains(LogLevels, cfg.Log.Level) {
		return fmt.Errorf("CONFIG_INVALID: log.level=%q; allowed: %s", cfg.Log.Level, strings.Join(LogLevels, ", "))
	}
	return nil
}
