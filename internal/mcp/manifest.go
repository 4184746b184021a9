package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type ToolManifest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	HasSchema   bool   `json:"has_schema"`
}

type EndpointManifest struct {
	Endpoint        string `json:"endpoint"`
	Transport       string `json:"transport"`
	Server          string `json:"server,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

type CapabilityManifest struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Endpoint    EndpointManifest `json:"endpoint"`
	Tools       []ToolManifest   `json:"tools"`
}

// BuildCapabilityManifest lists the workspace server's tools in one session.
func BuildCapabilityManifest(ctx context.Context, client *Client) (CapabilityManifest, error) {
	if client == nil {
		return CapabilityManifest{}, fmt.Errorf("mcp client is nil")
	}
	return WithSession(ctx, client, func(ctx context.Context, s *Session) (CapabilityManifest, error) {
		tools, err := s.ListTools(ctx)
		if err != nil {
			return CapabilityManifest{}, fmt.Errorf("tools/list failed: %w", err)
		}
		manifestTools := make([]ToolManifest, 0, len(tools))
		for _, tool := range tools {
			manifestTools = append(manifestTools, ToolManifest{
				Name:        tool.Name,
				Description: strings.TrimSpace(tool.Description),
				HasSchema:   tool.InputSchema != nil,
			})
		}
		sort.Slice(manifestTools, func(i, j int) bool {
			return manifestTools[i].Name < manifestTools[j].Name
		})

		endpoint := EndpointManifest{
			Endpoint:  client.Endpoint(),
			Transport: client.TransportName(),
		}
		if init := s.cs.InitializeResult(); init != nil {
			endpoint.ProtocolVersion = init.ProtocolVersion
			if init.ServerInfo != nil {
				endpoint.Server = strings.TrimSpace(init.ServerInfo.Name + " " + init.ServerInfo.Version)
			}
		}
		return CapabilityManifest{
			GeneratedAt: time.Now().UTC(),
			Endpoint:    endpoint,
			Tools:       manifestTools,
		}, nil
	})
}

func RenderCapabilityManifestHuman(manifest CapabilityManifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated: %s\n", manifest.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Endpoint: %s\n", orUnknown(manifest.Endpoint.Endpoint))
	fmt.Fprintf(&b, "Transport: %s\n", orUnknown(manifest.Endpoint.Transport))
	fmt.Fprintf(&b, "Server: %s\n", orUnknown(manifest.Endpoint.Server))
	fmt.Fprintf(&b, "Protocol: %s\n", orUnknown(manifest.Endpoint.ProtocolVersion))
	fmt.Fprintf(&b, "Tools (%d):\n", len(manifest.Tools))
	for _, tool := range manifest.Tools {
		desc := strings.TrimSpace(tool.Description)
		if desc == "" {
			desc = "(no description)"
		}
		if i := strings.IndexByte(desc, '\n'); i >= 0 {
			desc = strings.TrimSpace(desc[:i])
		}
		fmt.Fprintf(&b, "- %s\n  description: %s\n", tool.Name, desc)
	}
	return strings.TrimSpace(b.String())
}

func RenderCapabilityManifestJSON(manifest CapabilityManifest) ([]byte, error) {
	return json.MarshalIndent(manifest, "", "  ")
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func sanitizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		parts := strings.Fields(trimmed)
		if len(parts) <= 1 {
			return trimmed
		}
		return parts[0] + " <redacted>"
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
