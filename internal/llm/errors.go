package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrMissingAPIKey = errors.New("missing API key")

// APIError is a non-200 reply from the chat completions endpoint.
type APIError struct {
	StatusCode int
	Body       string
	Provider   string
	Model      string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	prefix := ""
	if e.Provider != "" {
		prefix = e.Provider
		if e.Model != "" {
			prefix += " (" + e.Model + ")"
		}
		prefix += ": "
	}
	return fmt.Sprintf("%sAPI returned %d: %s", prefix, e.StatusCode, truncate(strings.TrimSpace(e.Body), 300))
}

// Retryable reports whether the request may succeed when repeated later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsQuotaError reports whether err means the provider refused the request
// because of rate limits or an exhausted quota.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "quota")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
