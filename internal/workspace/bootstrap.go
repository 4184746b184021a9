package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pkai/internal/mcp"
	"pkai/internal/protocol"
)

const probeMaxResults = 5

const (
	msgAlreadyAuthorized = "OK: workspace-mcp already has valid tokens. Task lists found."
	msgOAuthCompleted    = "OK: OAuth completed. workspace-mcp has saved tokens. You can close this and use the app."
	msgRetryResult       = "Retry result: "
)

// AuthState is a step of the one-time authorization bootstrap.
type AuthState int

const (
	StateProbing AuthState = iota
	StateAwaitingUser
	StateRetrying
	StateAuthorized
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateAwaitingUser:
		return "awaiting_user"
	case StateRetrying:
		return "retrying"
	case StateAuthorized:
		return "authorized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// Prompter blocks until the operator says the browser sign-in is done.
type Prompter interface {
	WaitForSignIn(ctx context.Context) error
}

type BootstrapResult struct {
	State   AuthState
	Message string
}

type BootstrapOptions struct {
	Client    *mcp.Client
	UserEmail string
	Prompter  Prompter
	// OnTransition is called for every state change.
	OnTransition func(from, to AuthState)
	Logger       *slog.Logger
}

// Bootstrap keeps one workspace session open while the operator completes the
// server's OAuth flow, so the server process is still alive to receive the
// redirect.
type Bootstrap struct {
	client       *mcp.Client
	email        string
	prompter     Prompter
	onTransition func(from, to AuthState)
	logger       *slog.Logger
}

func NewBootstrap(opts BootstrapOptions) *Bootstrap {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bootstrap{
		client:       opts.Client,
		email:        strings.TrimSpace(opts.UserEmail),
		prompter:     opts.Prompter,
		onTransition: opts.OnTransition,
		logger:       logger.With("component", "workspace-auth"),
	}
}

// Run probes the server, waits for the operator if the probe finds no task
// lists, and probes once more. A non-nil error means the session could not be
// used at all or the wait was interrupted.
func (b *Bootstrap) Run(ctx context.Context) (BootstrapResult, error) {
	return mcp.WithSession(ctx, b.client, func(ctx context.Context, s *mcp.Session) (BootstrapResult, error) {
		state := StateProbing
		move := func(to AuthState) {
			b.logger.Info("auth state", "from", state.String(), "to", to.String())
			if b.onTransition != nil {
				b.onTransition(state, to)
			}
			state = to
		}

		if len(ParseListing(b.probe(ctx, s))) > 0 {
			move(StateAuthorized)
			return BootstrapResult{State: state, Message: msgAlreadyAuthorized}, nil
		}

		move(StateAwaitingUser)
		if err := b.await(ctx); err != nil {
			move(StateFailed)
			return BootstrapResult{State: state, Message: "Sign-in wait interrupted: " + err.Error()}, err
		}

		move(StateRetrying)
		raw := b.probe(ctx, s)
		if len(ParseListing(raw)) > 0 {
			move(StateAuthorized)
			return BootstrapResult{State: state, Message: msgOAuthCompleted}, nil
		}
		move(StateFailed)
		return BootstrapResult{State: state, Message: msgRetryResult + truncate(raw, 400)}, nil
	})
}

func (b *Bootstrap) probe(ctx context.Context, s *mcp.Session) string {
	args := map[string]any{"max_results": probeMaxResults}
	if b.email != "" {
		args["user_google_email"] = b.email
	}
	return s.CallTool(ctx, protocol.ServerToolListTaskLists, args)
}

// await runs the prompter on its own goroutine so the session goroutine only
// waits on completion or cancellation.
func (b *Bootstrap) await(ctx context.Context) error {
	if b.prompter == nil {
		return fmt.Errorf("no prompter configured for interactive sign-in")
	}
	done := make(chan error, 1)
	go func() {
		done <- b.prompter.WaitForSignIn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
