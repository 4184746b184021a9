package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkai/internal/mcp"
	"pkai/internal/mcp/mcptest"
)

func newTestClient(t *testing.T, srv *mcptest.Server) *mcp.Client {
	t.Helper()
	client := mcp.New(mcp.Options{Dial: srv.Dialer()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func echoServer() *mcptest.Server {
	srv := mcptest.NewServer()
	srv.Handle("echo", func(args map[string]any) string {
		text, _ := args["text"].(string)
		return "echo:" + text
	})
	return srv
}

func TestCallToolReturnsFirstText(t *testing.T) {
	srv := echoServer()
	client := newTestClient(t, srv)

	got, err := mcp.WithSession(context.Background(), client, func(ctx context.Context, s *mcp.Session) (string, error) {
		return s.CallTool(ctx, "echo", map[string]any{"text": "hi"}), nil
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if got != "echo:hi" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestCallToolFailureBecomesErrorString(t *testing.T) {
	client := newTestClient(t, echoServer())

	got, err := mcp.WithSession(context.Background(), client, func(ctx context.Context, s *mcp.Session) (string, error) {
		return s.CallTool(ctx, "does_not_exist", nil), nil
	})
	if err != nil {
		t.Fatalf("CallTool failures must not surface as errors: %v", err)
	}
	if !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("expected Error: prefix, got %q", got)
	}
}

func TestWithSessionTearsDownExactlyOnce(t *testing.T) {
	cases := []struct {
		name    string
		fn      func(context.Context, *mcp.Session) (string, error)
		wantErr string
	}{
		{
			name: "success",
			fn: func(ctx context.Context, s *mcp.Session) (string, error) {
				return s.CallTool(ctx, "echo", map[string]any{"text": "x"}), nil
			},
		},
		{
			name: "error",
			fn: func(context.Context, *mcp.Session) (string, error) {
				return "", errors.New("callback failed")
			},
			wantErr: "callback failed",
		},
		{
			name: "panic",
			fn: func(context.Context, *mcp.Session) (string, error) {
				panic("callback exploded")
			},
			wantErr: "callback exploded",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := echoServer()
			client := newTestClient(t, srv)

			_, err := mcp.WithSession(context.Background(), client, tc.fn)
			if tc.wantErr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
			if srv.Sessions() != 1 || srv.Released() != 1 {
				t.Fatalf("expected one session torn down once, got sessions=%d released=%d", srv.Sessions(), srv.Released())
			}
		})
	}
}

func TestEachOperationOpensItsOwnSession(t *testing.T) {
	srv := echoServer()
	client := newTestClient(t, srv)

	for i := 0; i < 3; i++ {
		if _, err := mcp.WithSession(context.Background(), client, func(ctx context.Context, s *mcp.Session) (string, error) {
			return s.CallTool(ctx, "echo", nil), nil
		}); err != nil {
			t.Fatalf("WithSession #%d: %v", i, err)
		}
	}
	if srv.Sessions() != 3 || srv.Released() != 3 {
		t.Fatalf("expected 3 independent sessions, got sessions=%d released=%d", srv.Sessions(), srv.Released())
	}
}

func TestStreamableHTTPMissingEndpoint(t *testing.T) {
	client := mcp.New(mcp.Options{Transport: mcp.TransportStreamableHTTP})
	defer func() { _ = client.Close() }()

	called := false
	_, err := mcp.WithSession(context.Background(), client, func(context.Context, *mcp.Session) (string, error) {
		called = true
		return "", nil
	})
	if !errors.Is(err, mcp.ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
	if !strings.Contains(err.Error(), "WORKSPACE_MCP_HTTP_URL") {
		t.Fatalf("error should name the missing setting: %v", err)
	}
	if called {
		t.Fatalf("callback must not run without a session")
	}
}

func TestStreamableHTTPCallTool(t *testing.T) {
	srv := echoServer()
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	client := mcp.New(mcp.Options{Transport: mcp.TransportStreamableHTTP, Endpoint: ts.URL})
	defer func() { _ = client.Close() }()

	got, err := mcp.WithSession(context.Background(), client, func(ctx context.Context, s *mcp.Session) (string, error) {
		return s.CallTool(ctx, "echo", map[string]any{"text": "over http"}), nil
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if got != "echo:over http" {
		t.Fatalf("unexpected result: %q", got)
	}
	calls := srv.CallsTo("echo")
	if len(calls) != 1 || calls[0].Args["text"] != "over http" {
		t.Fatalf("unexpected recorded calls: %+v", calls)
	}
}

func TestStdioSubprocessReceivesInjectedEnv(t *testing.T) {
	client := mcp.New(mcp.Options{
		Transport: mcp.TransportStdio,
		Command:   os.Args[0],
		Args:      []string{"-test.run=^TestHelperProcessWorkspaceServer$", "--"},
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"USER_GOOGLE_EMAIL":      "me@example.com",
			"WORKSPACE_MCP_PORT":     "8765",
		},
	})
	defer func() { _ = client.Close() }()

	got, err := mcp.WithSession(context.Background(), client, func(ctx context.Context, s *mcp.Session) ([]string, error) {
		return []string{
			s.CallTool(ctx, "env", map[string]any{"key": "USER_GOOGLE_EMAIL"}),
			s.CallTool(ctx, "env", map[string]any{"key": "WORKSPACE_MCP_PORT"}),
		}, nil
	})
	if err != nil {
		t.Fatalf("stdio session: %v", err)
	}
	if got[0] != "me@example.com" || got[1] != "8765" {
		t.Fatalf("subprocess did not see injected env: %v", got)
	}
}

func TestStdioMissingExecutable(t *testing.T) {
	client := mcp.New(mcp.Options{Transport: mcp.TransportStdio, Command: "/nonexistent/workspace-mcp"})
	defer func() { _ = client.Close() }()

	_, err := mcp.WithSession(context.Background(), client, func(context.Context, *mcp.Session) (string, error) {
		return "", nil
	})
	if err == nil {
		t.Fatalf("expected connect error for missing executable")
	}
}

func TestBuildCapabilityManifest(t *testing.T) {
	srv := echoServer()
	srv.Handle("create_task", mcptest.Text("ok"))
	client := newTestClient(t, srv)

	manifest, err := mcp.BuildCapabilityManifest(context.Background(), client)
	if err != nil {
		t.Fatalf("BuildCapabilityManifest: %v", err)
	}
	if len(manifest.Tools) != 2 || manifest.Tools[0].Name != "create_task" || manifest.Tools[1].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", manifest.Tools)
	}
	if manifest.Endpoint.Server != "workspace-test test" {
		t.Fatalf("unexpected server info: %+v", manifest.Endpoint)
	}
	human := mcp.RenderCapabilityManifestHuman(manifest)
	if !strings.Contains(human, "Tools (2):") || !strings.Contains(human, "- echo") {
		t.Fatalf("unexpected human manifest:\n%s", human)
	}
	raw, err := mcp.RenderCapabilityManifestJSON(manifest)
	if err != nil {
		t.Fatalf("RenderCapabilityManifestJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("manifest JSON invalid: %v", err)
	}
}

func TestHelperProcessWorkspaceServer(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "helper", Version: "test"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "env",
		InputSchema: map[string]any{"type": "object"},
	}, func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]string
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: os.Getenv(args["key"])}},
		}, nil
	})
	_ = server.Run(context.Background(), &mcpsdk.StdioTransport{})
	os.Exit(0)
}
