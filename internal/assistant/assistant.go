// Package assistant wires configuration into a ready-to-run chat loop.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pkai/internal/agent"
	"pkai/internal/config"
	"pkai/internal/ingest"
	"pkai/internal/llm"
	"pkai/internal/mcp"
	"pkai/internal/retrieval"
	"pkai/internal/store"
	"pkai/internal/tools"
	"pkai/internal/workspace"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger

	// Model replaces the provider client built from Config.LLM.
	Model llm.Model
	// Dial replaces the workspace transport built from Config.Workspace.
	Dial mcp.Dialer
	// Searcher replaces the SQLite knowledge store.
	Searcher retrieval.Searcher
	// HTTPClient is used by the external fetch tool.
	HTTPClient *http.Client
}

type Assistant struct {
	cfg       config.Config
	loop      *agent.Loop
	registry  *agent.Registry
	client    *mcp.Client
	workspace *workspace.Adapter
	store     *store.SQLiteStore
	logger    *slog.Logger
}

func New(opts Options) (*Assistant, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config

	model := opts.Model
	if model == nil {
		client, err := llm.NewFromConfig(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		model = client
	}

	a := &Assistant{cfg: cfg, logger: logger}

	searcher := opts.Searcher
	if searcher == nil {
		a.store = store.NewSQLiteStore(cfg.Knowledge.DBPath)
		searcher = retrieval.NewService(a.store, logger)
	}

	a.client = NewWorkspaceClient(cfg.Workspace, opts.Dial, logger)
	a.workspace = workspace.NewAdapter(workspace.Options{
		Client:    a.client,
		UserEmail: cfg.Workspace.UserEmail,
		Timeout:   seconds(cfg.Workspace.ToolTimeoutSeconds),
		Logger:    logger,
	})

	registry, err := newRegistry(searcher, cfg.Knowledge.TopK, opts.HTTPClient, a.workspace)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.registry = registry
	a.loop = agent.NewLoop(agent.LoopOptions{
		Model:    model,
		Registry: registry,
		MaxTurns: cfg.Agent.MaxTurns,
		Logger:   logger,
	})
	return a, nil
}

func newRegistry(searcher retrieval.Searcher, topK int, httpClient *http.Client, ws tools.Workspace) (*agent.Registry, error) {
	return agent.NewRegistry(
		tools.NewKnowledgeSearch(searcher, topK),
		tools.NewExternalUpdates(httpClient),
		tools.NewCreateDriveFile(ws),
		tools.NewListTaskLists(ws),
		tools.NewCreateGoogleTask(ws),
	)
}

// ToolDefinitions describes the tools offered to the model without opening
// any of their backends.
func ToolDefinitions() []llm.ToolDefinition {
	registry, err := newRegistry(nil, 0, nil, nil)
	if err != nil {
		return nil
	}
	return registry.Definitions()
}

// NewWorkspaceClient builds the transport client for the workspace server.
// A non-nil dial overrides the configured transport.
func NewWorkspaceClient(cfg config.WorkspaceConfig, dial mcp.Dialer, logger *slog.Logger) *mcp.Client {
	return mcp.New(mcp.Options{
		Transport: cfg.Transport,
		Command:   cfg.Command,
		Args:      cfg.Args,
		Env:       cfg.ServerEnv(),
		Endpoint:  cfg.HTTPURL,
		Logger:    logger,
		Dial:      dial,
	})
}

// Ask runs one conversation turn. history is not retained between calls.
func (a *Assistant) Ask(ctx context.Context, query string, history []agent.HistoryEntry) (agent.ChatResult, error) {
	return a.loop.Run(ctx, query, history)
}

func (a *Assistant) Registry() *agent.Registry { return a.registry }

func (a *Assistant) Workspace() *workspace.Adapter { return a.workspace }

func (a *Assistant) Client() *mcp.Client { return a.client }

// Ingest indexes dir into the knowledge store. It fails when a custom
// searcher replaced the store.
func (a *Assistant) Ingest(ctx context.Context, dir string, opts ingest.Options) (ingest.Report, error) {
	if a.store == nil {
		return ingest.Report{}, errors.New("knowledge store is not configured")
	}
	return ingest.NewService(a.store, opts, a.logger).Run(ctx, dir)
}

func (a *Assistant) Close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
