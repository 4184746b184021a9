package workspace

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNotStructured means the reply is prose rather than a JSON document.
	ErrNotStructured = errors.New("workspace reply is not structured")
	// ErrMalformedListing means the reply looked like JSON but did not decode.
	ErrMalformedListing = errors.New("workspace reply is malformed JSON")
)

// listingKeys are the object fields a listing may be wrapped in, in priority order.
var listingKeys = []string{"items", "task_lists", "taskLists"}

// missingAccountSignals mark a reply complaining about the account identifier.
var missingAccountSignals = []string{"user_google_email", "missing"}

var listIDPattern = regexp.MustCompile(`(?i)\(ID:\s*([^)]+)\)|ID:\s*([^\s]+)`)

// ParseListing decodes a workspace listing reply into items. Prose, malformed
// JSON and unrecognised shapes all yield an empty slice.
func ParseListing(raw string) []map[string]any {
	items, _ := DecodeListing(raw)
	return items
}

// DecodeListing is ParseListing with the reason for an empty result. A bare
// list is used as-is; an object contributes its first present listing field,
// or is itself the single item when it has none.
func DecodeListing(raw string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotStructured
	}
	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, ErrMalformedListing
	}
	switch v := doc.(type) {
	case []any:
		return objects(v), nil
	case map[string]any:
		for _, key := range listingKeys {
			if inner, ok := v[key]; ok {
				list, _ := inner.([]any)
				return objects(list), nil
			}
		}
		return []map[string]any{v}, nil
	default:
		return nil, nil
	}
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ExtractListID finds a task-list id in prose such as "Work (ID: abc123)" or
// "ID: abc123".
func ExtractListID(raw string) (string, bool) {
	m := listIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	id := m[1]
	if id == "" {
		id = m[2]
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// MentionsMissingAccount reports whether a reply signals a missing account
// identifier.
func MentionsMissingAccount(raw string) bool {
	lower := strings.ToLower(raw)
	for _, s := range missingAccountSignals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// field returns the first non-empty string value among keys.
func field(item map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
