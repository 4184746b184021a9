package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name secrets are stored under.
const KeyringService = "pkai"

// mergeKeyring fills secrets that neither the environment nor dotenv files
// provided. A missing keyring backend is not an error.
func mergeKeyring(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if v, ok := lookupSecret(APIKeyEnvVar(cfg.LLM.Provider)); ok {
			cfg.LLM.APIKey = v
		}
	}
	if cfg.Workspace.OAuthClientSecret == "" {
		if v, ok := lookupSecret("GOOGLE_OAUTH_CLIENT_SECRET"); ok {
			cfg.Workspace.OAuthClientSecret = v
		}
	}
}

func lookupSecret(key string) (string, bool) {
	v, err := keyring.Get(KeyringService, key)
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// SaveSecret stores a secret in the OS keyring under KeyringService.
func SaveSecret(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("secret value must not be empty")
	}
	return keyring.Set(KeyringService, key, value)
}

// DeleteSecret removes a secret from the OS keyring. Deleting an absent
// secret is not an error.
func DeleteSecret(key string) error {
	if err := keyring.Delete(KeyringService, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
