package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"

	clientName    = "pkai"
	clientVersion = "0.1.0"
)

// Dialer builds the transport for one session. The returned release func, if
// any, runs after the protocol session is closed.
type Dialer func(ctx context.Context) (mcpsdk.Transport, func() error, error)

type Options struct {
	Transport string
	// Command and Args start the workspace server for the stdio transport.
	Command string
	Args    []string
	// Env is overlaid on the parent environment of the spawned server.
	Env map[string]string
	// Endpoint is the streamable HTTP URL.
	Endpoint   string
	HTTPClient *http.Client
	Workers    int
	Logger     *slog.Logger
	// Dial replaces transport construction entirely.
	Dial Dialer
}

// Client opens a fresh protocol session per operation. All session work runs
// on a bounded worker pool.
type Client struct {
	opts   Options
	impl   *mcpsdk.Client
	pool   *Pool
	logger *slog.Logger
}

func New(opts Options) *Client {
	opts.Transport = strings.ToLower(strings.TrimSpace(opts.Transport))
	if opts.Transport == "" {
		opts.Transport = TransportStdio
	}
	opts.Endpoint = strings.TrimSpace(opts.Endpoint)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		opts:   opts,
		impl:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil),
		pool:   NewPool(opts.Workers),
		logger: logger.With("component", "workspace-mcp"),
	}
}

// Close stops the worker pool.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

func (c *Client) TransportName() string { return c.opts.Transport }

// Endpoint describes where sessions connect to, with command arguments and
// URL credentials redacted.
func (c *Client) Endpoint() string {
	if c.opts.Transport == TransportStreamableHTTP {
		return sanitizeEndpoint(c.opts.Endpoint)
	}
	return sanitizeEndpoint(strings.TrimSpace(c.opts.Command + " " + strings.Join(c.opts.Args, " ")))
}

// Session is one protocol session on one live channel. It is owned by the
// worker goroutine that opened it.
type Session struct {
	cs        *mcpsdk.ClientSession
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) push(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases the session and its channel in reverse order of acquisition.
// Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// CallTool invokes a server tool and returns the first text part of the
// result. Failures are returned as "Error: <message>".
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) string {
	res, err := s.cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "Error: " + err.Error()
	}
	if res == nil {
		return ""
	}
	return ExtractText(contentParts(res.Content))
}

// ListTools returns the server's tools across all pages.
func (s *Session) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	var tools []*mcpsdk.Tool
	for tool, err := range s.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// WithSession opens a session on a pool worker, runs fn, and tears the
// session down on every exit path, including a panic in fn.
func WithSession[T any](ctx context.Context, c *Client, fn func(context.Context, *Session) (T, error)) (T, error) {
	var (
		out    T
		runErr error
	)
	err := c.pool.Do(ctx, func(ctx context.Context) {
		runErr = c.runSession(ctx, func(ctx context.Context, s *Session) error {
			v, err := fn(ctx, s)
			out = v
			return err
		})
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, runErr
}

func (c *Client) runSession(ctx context.Context, fn func(context.Context, *Session) error) (err error) {
	s, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		r := recover()
		if closeErr := s.Close(); closeErr != nil {
			c.logger.Debug("session teardown failed", "error", closeErr)
		}
		if r != nil {
			err = fmt.Errorf("workspace session: panic: %v", r)
		}
	}()
	return fn(ctx, s)
}

func (c *Client) connect(ctx context.Context) (*Session, error) {
	transport, release, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	s := &Session{}
	if release != nil {
		s.push(release)
	}
	cs, err := c.impl.Connect(ctx, transport, nil)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect to workspace server (%s): %w", c.opts.Transport, err)
	}
	s.cs = cs
	s.push(cs.Close)
	c.logger.Debug("session opened", "transport", c.opts.Transport)
	return s, nil
}

func (c *Client) dial(ctx context.Context) (mcpsdk.Transport, func() error, error) {
	if c.opts.Dial != nil {
		return c.opts.Dial(ctx)
	}
	switch c.opts.Transport {
	case TransportStreamableHTTP:
		if c.opts.Endpoint == "" {
			return nil, nil, ErrMissingEndpoint
		}
		hc := c.opts.HTTPClient
		var release func() error
		if hc == nil {
			hc = &http.Client{}
			release = func() error {
				hc.CloseIdleConnections()
				return nil
			}
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: c.opts.Endpoint, HTTPClient: hc}, release, nil
	case TransportStdio:
		if strings.TrimSpace(c.opts.Command) == "" {
			return nil, nil, errors.New("workspace server command is empty; set WORKSPACE_MCP_COMMAND")
		}
		cmd := exec.CommandContext(ctx, c.opts.Command, c.opts.Args...)
		cmd.Env = MergeEnv(os.Environ(), c.opts.Env)
		return &mcpsdk.CommandTransport{Command: cmd}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported workspace transport %q", c.opts.Transport)
	}
}

// MergeEnv overlays overrides on a KEY=VALUE environment list. Overridden
// keys are replaced in place; new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			out = append(out, key+"="+v)
			seen[key] = true
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
