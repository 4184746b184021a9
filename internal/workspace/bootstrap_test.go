package workspace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pkai/internal/mcp"
	"pkai/internal/mcp/mcptest"
	"pkai/internal/protocol"
)

type fakePrompter struct {
	calls atomic.Int32
	err   error
	// onWait runs while the operator is "signing in".
	onWait func()
}

func (p *fakePrompter) WaitForSignIn(context.Context) error {
	p.calls.Add(1)
	if p.onWait != nil {
		p.onWait()
	}
	return p.err
}

func runBootstrap(t *testing.T, srv *mcptest.Server, prompter Prompter) (BootstrapResult, []AuthState, error) {
	t.Helper()
	client := mcp.New(mcp.Options{Dial: srv.Dialer()})
	t.Cleanup(func() { _ = client.Close() })
	var states []AuthState
	b := NewBootstrap(BootstrapOptions{
		Client:    client,
		UserEmail: "me@example.com",
		Prompter:  prompter,
		OnTransition: func(_, to AuthState) {
			states = append(states, to)
		},
	})
	res, err := b.Run(context.Background())
	return res, states, err
}

func TestBootstrapAlreadyAuthorized(t *testing.T) {
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, mcptest.Text(`[{"id":"L1"}]`))
	prompter := &fakePrompter{}

	res, states, err := runBootstrap(t, srv, prompter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateAuthorized || res.Message != "OK: workspace-mcp already has valid tokens. Task lists found." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if prompter.calls.Load() != 0 {
		t.Fatalf("operator should not be prompted when already authorized")
	}
	if len(states) != 1 || states[0] != StateAuthorized {
		t.Fatalf("unexpected transitions: %v", states)
	}
	args := srv.Calls()[0].Args
	if args["max_results"] != float64(5) || args["user_google_email"] != "me@example.com" {
		t.Fatalf("unexpected probe args: %v", args)
	}
}

func TestBootstrapCompletesAfterSignIn(t *testing.T) {
	var signedIn atomic.Bool
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, func(map[string]any) string {
		if signedIn.Load() {
			return `{"items":[{"id":"L1"}]}`
		}
		return "Authorization required. Open https://accounts.google.com/o/oauth2/auth?... to continue."
	})
	prompter := &fakePrompter{onWait: func() { signedIn.Store(true) }}

	res, states, err := runBootstrap(t, srv, prompter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateAuthorized || !strings.HasPrefix(res.Message, "OK: OAuth completed.") {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []AuthState{StateAwaitingUser, StateRetrying, StateAuthorized}
	if len(states) != len(want) {
		t.Fatalf("unexpected transitions: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
	if srv.Sessions() != 1 {
		t.Fatalf("bootstrap must hold a single session, got %d", srv.Sessions())
	}
	if n := len(srv.CallsTo(protocol.ServerToolListTaskLists)); n != 2 {
		t.Fatalf("expected probe and retry, got %d calls", n)
	}
}

func TestBootstrapRetryStillFailing(t *testing.T) {
	reply := "Still not authorized: " + strings.Repeat("z", 600)
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, mcptest.Text(reply))

	res, states, err := runBootstrap(t, srv, &fakePrompter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateFailed || res.Message != "Retry result: "+reply[:400] {
		t.Fatalf("unexpected result: %+v", res)
	}
	if states[len(states)-1] != StateFailed {
		t.Fatalf("unexpected transitions: %v", states)
	}
}

func TestBootstrapPrompterError(t *testing.T) {
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, mcptest.Text("[]"))

	res, _, err := runBootstrap(t, srv, &fakePrompter{err: ErrSignInCancelled})
	if !errors.Is(err, ErrSignInCancelled) {
		t.Fatalf("expected ErrSignInCancelled, got %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("unexpected state: %v", res.State)
	}
	if n := len(srv.Calls()); n != 1 {
		t.Fatalf("no retry expected after a cancelled wait, got %d calls", n)
	}
}

type blockingPrompter struct{}

func (blockingPrompter) WaitForSignIn(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBootstrapContextCancelledWhileWaiting(t *testing.T) {
	srv := mcptest.NewServer()
	srv.Handle(protocol.ServerToolListTaskLists, mcptest.Text("[]"))
	client := mcp.New(mcp.Options{Dial: srv.Dialer()})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res, err := NewBootstrap(BootstrapOptions{Client: client, Prompter: blockingPrompter{}}).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("unexpected state: %v", res.State)
	}
	if srv.Released() != 1 {
		t.Fatalf("session should be torn down after cancellation")
	}
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := LinePrompter{In: strings.NewReader("\n"), Out: &out}
	if err := p.WaitForSignIn(context.Background()); err != nil {
		t.Fatalf("WaitForSignIn: %v", err)
	}
	if !strings.Contains(out.String(), "Press Enter to retry") {
		t.Fatalf("unexpected prompt: %q", out.String())
	}
}

func TestAuthStateString(t *testing.T) {
	if StateAwaitingUser.String() != "awaiting_user" || AuthState(42).String() != "AuthState(42)" {
		t.Fatalf("unexpected state names")
	}
}
