package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigFile   = "pkai.toml"
	DefaultProvider     = ProviderOpenAI
	DefaultTransport    = TransportStdio
	DefaultMaxTurns     = 10
	DefaultTopK         = 4
	DefaultToolTimeout  = 60
	DefaultModelTimeout = 120
	DefaultWorkspaceCmd = "workspace-mcp"
)

const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderMistral = "mistral"

	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

var (
	Providers  = []string{ProviderOpenAI, ProviderGemini, ProviderMistral}
	Transports = []string{TransportStdio, TransportStreamableHTTP}
	LogLevels  = []string{"debug", "info", "warn", "error"}
)

// DefaultWorkspaceArgs selects the Drive and Tasks tool groups of workspace-mcp.
var DefaultWorkspaceArgs = []string{"--tools", "drive", "tasks"}

var defaultModels = map[string]string{
	ProviderOpenAI:  "gpt-4o-mini",
	ProviderGemini:  "gemini-2.0-flash",
	ProviderMistral: "mistral-small-latest",
}

// FieldSource indicates where a config value originates.
type FieldSource string

const (
	SourceDefault     FieldSource = "default"
	SourceConfigFile  FieldSource = "pkai.toml"
	SourceDotEnv      FieldSource = ".env"
	SourceDotEnvLocal FieldSource = ".env.local"
	SourceEnv         FieldSource = "env"
	SourceKeyring     FieldSource = "keyring"
	SourceFlag        FieldSource = "flag"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Agent     AgentConfig     `toml:"agent"`
	Log       LogConfig       `toml:"log"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// APIKey is never read from or written to pkai.toml.
	APIKey string `toml:"-"`
}

type WorkspaceConfig struct {
	Transport          string   `toml:"transport"`
	Command            string   `toml:"command"`
	Args               []string `toml:"args"`
	HTTPURL            string   `toml:"http_url"`
	UserEmail          string   `toml:"user_email"`
	OAuthClientID      string   `toml:"oauth_client_id"`
	OAuthRedirectURI   string   `toml:"oauth_redirect_uri"`
	ToolTimeoutSeconds int      `toml:"tool_timeout_seconds"`
	OAuthClientSecret  string   `toml:"-"`
}

type KnowledgeConfig struct {
	StateDir string `toml:"state_dir"`
	DBPath   string `toml:"db_path"`
	TopK     int    `toml:"top_k"`
}

type AgentConfig struct {
	MaxTurns int `toml:"max_turns"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
	JSON  bool   `toml:"json"`
}

func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:       DefaultProvider,
			TimeoutSeconds: DefaultModelTimeout,
		},
		Workspace: WorkspaceConfig{
			Transport:          DefaultTransport,
			ToolTimeoutSeconds: DefaultToolTimeout,
		},
		Knowledge: KnowledgeConfig{
			TopK: DefaultTopK,
		},
		Agent: AgentConfig{
			MaxTurns: DefaultMaxTurns,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Options for loading config. ConfigPath is used as-is when absolute, otherwise
// relative to the working directory.
type Options struct {
	ConfigPath   string
	SkipValidate bool
	// Overrides apply last (flags > env > dotenv > file > defaults).
	Overrides *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	Provider *string
	Model    *string
	LogLevel *string
	LogFile  *string
	StateDir *string
}

// Load builds config with precedence: defaults → pkai.toml → .env.local/.env →
// env vars → Overrides. Secrets still unset afterwards are looked up in the OS keyring.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if err := loadDotEnvPrecedence(); err != nil {
		return Config{}, fmt.Errorf("CONFIG_INVALID: failed loading dotenv files: %w", err)
	}

	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigFile
	}
	if err := mergeFile(&cfg, path); err != nil {
		return Config{}, err
	}
	mergeEnv(&cfg)
	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}
	mergeKeyring(&cfg)
	finalize(&cfg)

	if !opts.SkipValidate {
		if err := Validate(cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("CONFIG_INVALID: malformed TOML in %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	if v := envValue("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := envValue("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v, ok := envInt("LLM_TIMEOUT_SECONDS"); ok {
		cfg.LLM.TimeoutSeconds = v
	}
	if v := envValue(ModelEnvVar(cfg.LLM.Provider)); v != "" {
		cfg.LLM.Model = v
	}
	if v := envValue("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := envValue(APIKeyEnvVar(cfg.LLM.Provider)); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := envValue("WORKSPACE_MCP_TRANSPORT"); v != "" {
		cfg.Workspace.Transport = strings.ToLower(v)
	}
	if v := envValue("WORKSPACE_MCP_HTTP_URL"); v != "" {
		cfg.Workspace.HTTPURL = v
	}
	if v := envValue("WORKSPACE_MCP_COMMAND"); v != "" {
		cfg.Workspace.Command = v
		// Args only make sense together with a command; keep the default tool set otherwise.
		cfg.Workspace.Args = strings.Fields(envOr("WORKSPACE_MCP_ARGS", strings.Join(DefaultWorkspaceArgs, " ")))
	} else if v := envValue("WORKSPACE_MCP_ARGS"); v != "" {
		cfg.Workspace.Args = strings.Fields(v)
	}
	if v := firstEnv("USER_GOOGLE_EMAIL", "GOOGLE_EMAIL"); v != "" {
		cfg.Workspace.UserEmail = v
	}
	if v := envValue("GOOGLE_OAUTH_CLIENT_ID"); v != "" {
		cfg.Workspace.OAuthClientID = v
	}
	if v := envValue("GOOGLE_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.Workspace.OAuthClientSecret = v
	}
	if v := envValue("WORKSPACE_MCP_OAUTH_REDIRECT_URI"); v != "" {
		cfg.Workspace.OAuthRedirectURI = v
	}
	if v, ok := envInt("WORKSPACE_TOOL_TIMEOUT_SECONDS"); ok {
		cfg.Workspace.ToolTimeoutSeconds = v
	}

	if v := envValue("PKAI_STATE_DIR"); v != "" {
		cfg.Knowledge.StateDir = v
	}
	if v := envValue("PKAI_DB_PATH"); v != "" {
		cfg.Knowledge.DBPath = v
	}
	if v, ok := envInt("PKAI_TOP_K"); ok {
		cfg.Knowledge.TopK = v
	}
	if v, ok := envInt("PKAI_MAX_TURNS"); ok {
		cfg.Agent.MaxTurns = v
	}
	if v := envValue("PKAI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := envValue("PKAI_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := envValue("PKAI_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "1" || strings.EqualFold(v, "true")
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Provider != nil && !strings.EqualFold(*o.Provider, cfg.LLM.Provider) {
		cfg.LLM.Provider = strings.ToLower(*o.Provider)
		cfg.LLM.Model = envValue(ModelEnvVar(cfg.LLM.Provider))
		cfg.LLM.APIKey = envValue(APIKeyEnvVar(cfg.LLM.Provider))
	}
	if o.Model != nil {
		cfg.LLM.Model = *o.Model
	}
	if o.LogLevel != nil {
		cfg.Log.Level = strings.ToLower(*o.LogLevel)
	}
	if o.LogFile != nil {
		cfg.Log.File = *o.LogFile
	}
	if o.StateDir != nil {
		cfg.Knowledge.StateDir = *o.StateDir
	}
}

// finalize fills values that depend on other fields.
func finalize(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if cfg.Workspace.Command == "" {
		cfg.Workspace.Command = DefaultWorkspaceCmd
	}
	if len(cfg.Workspace.Args) == 0 {
		cfg.Workspace.Args = append([]string(nil), DefaultWorkspaceArgs...)
	}
	if cfg.Knowledge.StateDir == "" {
		if dir, err := StateDir(); err == nil {
			cfg.Knowledge.StateDir = dir
		} else {
			cfg.Knowledge.StateDir = ".pkai"
		}
	}
	if cfg.Knowledge.DBPath == "" {
		cfg.Knowledge.DBPath = filepath.Join(cfg.Knowledge.StateDir, "knowledge.sqlite")
	}
}

// StateDir returns the per-user state directory (without creating it).
func StateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "pkai"), nil
}

// ModelEnvVar returns the provider-specific model variable.
func ModelEnvVar(provider string) string {
	switch provider {
	case ProviderGemini:
		return "GEMINI_MODEL"
	case ProviderMistral:
		return "MISTRAL_MODEL"
	default:
		return "OPENAI_MODEL"
	}
}

// APIKeyEnvVar returns the provider-specific API key variable.
func APIKeyEnvVar(provider string) string {
	switch provider {
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// RedirectEndpoint splits the workspace OAuth redirect URI into its base URI
// (scheme://host[:port]) and port. The port defaults to 443 for https and 80
// otherwise. Empty or unparsable URIs yield ("", 0).
func (w WorkspaceConfig) RedirectEndpoint() (string, int) {
	raw := strings.TrimSpace(w.OAuthRedirectURI)
	if raw == "" {
		return "", 0
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", 0
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0
		}
		port = n
	}
	return u.Scheme + "://" + u.Host, port
}

// ServerEnv returns the variables injected into a spawned workspace server.
// Keys are only present when the corresponding value is configured.
func (w WorkspaceConfig) ServerEnv() map[string]string {
	env := map[string]string{}
	if base, port := w.RedirectEndpoint(); base != "" {
		env["WORKSPACE_MCP_PORT"] = strconv.Itoa(port)
		env["WORKSPACE_MCP_BASE_URI"] = base
		env["GOOGLE_OAUTH_REDIRECT_URI"] = strings.TrimSpace(w.OAuthRedirectURI)
	}
	if w.OAuthClientID != "" {
		env["GOOGLE_OAUTH_CLIENT_ID"] = w.OAuthClientID
	}
	if w.OAuthClientSecret != "" {
		env["GOOGLE_OAUTH_CLIENT_SECRET"] = w.OAuthClientSecret
	}
	if w.UserEmail != "" {
		env["USER_GOOGLE_EMAIL"] = w.UserEmail
	}
	return env
}

func envValue(key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, fallback string) string {
	if v := envValue(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := envValue(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string) (int, bool) {
	v := envValue(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
