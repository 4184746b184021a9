package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ExtractText returns the text of the first part tagged "text", or "" when
// there is none. Parts may be SDK content values or decoded JSON objects.
func ExtractText(parts []any) string {
	for _, part := range parts {
		switch p := part.(type) {
		case *mcpsdk.TextContent:
			if p != nil {
				return p.Text
			}
		case mcpsdk.TextContent:
			return p.Text
		case map[string]any:
			if t, _ := p["type"].(string); t == "text" {
				text, _ := p["text"].(string)
				return text
			}
		}
	}
	return ""
}

func contentParts(content []mcpsdk.Content) []any {
	parts := make([]any, 0, len(content))
	for _, c := range content {
		parts = append(parts, c)
	}
	return parts
}
