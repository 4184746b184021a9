package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// dotEnvFiles are read in precedence order; a key set by an earlier file (or the
// real environment, when non-empty) is never overwritten by a later one.
var dotEnvFiles = []string{".env.local", ".env"}

func loadDotEnvPrecedence() error {
	for _, name := range dotEnvFiles {
		values, err := godotenv.Read(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		for k, v := range values {
			if existing, exists := os.LookupEnv(k); exists && strings.TrimSpace(existing) != "" {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// readDotFile returns the key-value pairs of a dotenv file, or nil when it
// does not exist or cannot be parsed.
func readDotFile(name string) map[string]string {
	vals, err := godotenv.Read(name)
	if err != nil {
		return nil
	}
	return vals
}
