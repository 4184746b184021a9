// Package mcptest provides an in-process workspace tool server for tests.
package mcptest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkai/internal/mcp"
)

// Handler returns the text content for one tool call.
type Handler func(args map[string]any) string

// Call records one tools/call received by the server.
type Call struct {
	Name string
	Args map[string]any
}

type Server struct {
	srv *mcpsdk.Server

	mu    sync.Mutex
	calls []Call

	sessions atomic.Int32
	released atomic.Int32
}

func NewServer() *Server {
	return &Server{
		srv: mcpsdk.NewServer(&mcpsdk.Implementation{Name: "workspace-test", Version: "test"}, nil),
	}
}

// Handle registers a tool that answers with h's text.
func (s *Server) Handle(name string, h Handler) {
	s.srv.AddTool(&mcpsdk.Tool{
		Name:        name,
		Description: name + " (test)",
		InputSchema: map[string]any{"type": "object"},
	}, func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{Name: name, Args: args})
		s.mu.Unlock()
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: h(args)}},
		}, nil
	})
}

// Text is a Handler that always answers with text.
func Text(text string) Handler {
	return func(map[string]any) string { return text }
}

// Dialer connects each new session to the server over a fresh in-memory pipe.
func (s *Server) Dialer() mcp.Dialer {
	return func(ctx context.Context) (mcpsdk.Transport, func() error, error) {
		serverT, clientT := mcpsdk.NewInMemoryTransports()
		ss, err := s.srv.Connect(ctx, serverT, nil)
		if err != nil {
			return nil, nil, err
		}
		s.sessions.Add(1)
		return clientT, func() error {
			s.released.Add(1)
			_ = ss.Close()
			return nil
		}, nil
	}
}

// HTTPHandler serves the tools over streamable HTTP.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.srv }, nil)
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls for one tool name.
func (s *Server) CallsTo(name string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Sessions reports how many sessions were dialed.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

// Released reports how many dialed sessions were torn down.
func (s *Server) Released() int { return int(s.released.Load()) }
