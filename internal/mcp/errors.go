package mcp

import (
	"errors"
	"strings"
)

// ErrMissingEndpoint is the one workspace failure surfaced as a Go error
// instead of an "Error: ..." string.
var ErrMissingEndpoint = errors.New("WORKSPACE_MCP_HTTP_URL is required when WORKSPACE_MCP_TRANSPORT=streamable-http. Start the server with e.g. uvx workspace-mcp --transport streamable-http")

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeNotFound     = "NOT_FOUND"
	CodeUnavailable  = "UNAVAILABLE"
)

// CodeFromText classifies a workspace failure message into a coarse code.
func CodeFromText(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case containsAny(upper, "UNAUTHORIZED", "UNAUTHENTICATED", "INVALID_GRANT", "OAUTH", "CREDENTIALS"):
		return CodeUnauthorized
	case containsAny(upper, "RATE LIMIT", "RATE_LIMIT", "QUOTA", "TOO MANY REQUESTS", "429"):
		return CodeRateLimited
	case containsAny(upper, "EXECUTABLE FILE NOT FOUND", "NO SUCH FILE", "CONNECTION REFUSED", "EOF"):
		return CodeUnavailable
	case containsAny(upper, "NOT FOUND", "404"):
		return CodeNotFound
	default:
		return ""
	}
}

// ActionableMessageForCode maps a code to operator guidance.
func ActionableMessageForCode(code string) string {
	switch code {
	case CodeUnauthorized:
		return "workspace-mcp is not authorized. Run: pkai auth workspace"
	case CodeRateLimited:
		return "Google API rate limit reached. Wait briefly and retry."
	case CodeUnavailable:
		return "Could not start or reach workspace-mcp. Check WORKSPACE_MCP_COMMAND or WORKSPACE_MCP_HTTP_URL."
	case CodeNotFound:
		return "The requested workspace item was not found."
	default:
		return ""
	}
}

func containsAny(value string, patterns ...string) bool {
	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}
