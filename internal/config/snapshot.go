package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// FieldInfo describes a secret and where its current value came from.
type FieldInfo struct {
	Key    string
	Set    bool
	Source FieldSource
}

type snapshot struct {
	Config
	Secrets map[string]string `toml:"secrets"`
}

// Snapshot renders the effective config as TOML. Secret values are replaced
// by their provenance and never printed.
func Snapshot(cfg Config) ([]byte, error) {
	snap := snapshot{Config: cfg, Secrets: map[string]string{}}
	for _, f := range SecretFields(cfg) {
		if !f.Set {
			snap.Secrets[f.Key] = "<unset>"
			continue
		}
		snap.Secrets[f.Key] = "<from " + string(f.Source) + ">"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SecretFields reports, for each secret the active config depends on, whether
// it is set and which source provided it: env → .env.local → .env → keyring.
func SecretFields(cfg Config) []FieldInfo {
	dotEnvLocal := readDotFile(".env.local")
	dotEnv := readDotFile(".env")

	fields := []struct {
		key   string
		value string
	}{
		{APIKeyEnvVar(cfg.LLM.Provider), cfg.LLM.APIKey},
		{"GOOGLE_OAUTH_CLIENT_SECRET", cfg.Workspace.OAuthClientSecret},
	}
	out := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		fi := FieldInfo{Key: f.key, Set: f.value != "", Source: SourceDefault}
		if fi.Set {
			fi.Source = resolveSecretSource(f.key, dotEnvLocal, dotEnv)
		}
		out = append(out, fi)
	}
	return out
}

func resolveSecretSource(envVar string, dotEnvLocal, dotEnv map[string]string) FieldSource {
	if _, ok := dotEnvLocal[envVar]; ok {
		return SourceDotEnvLocal
	}
	if _, ok := dotEnv[envVar]; ok {
		return SourceDotEnv
	}
	if v, ok := os.LookupEnv(envVar); ok && strings.TrimSpace(v) != "" {
		return SourceEnv
	}
	return SourceKeyring
}
