package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pkai/internal/mcp"
	"pkai/internal/protocol"
)

const (
	DefaultListMaxResults = 20
	resolveMaxResults     = 10
	DefaultMimeType       = "text/plain"
)

const (
	msgNoTaskLists        = "No task lists found. Create a task list in Google Tasks first."
	msgListNeedsAccount   = "Error: Set USER_GOOGLE_EMAIL in .env to your Google account email for list_task_lists."
	msgCreateNeedsAccount = "Error: workspace-mcp requires user_google_email for list_task_lists. Set USER_GOOGLE_EMAIL (or GOOGLE_EMAIL) in .env to your Google account email, or pass task_list_id to create_google_task."
	msgNoTaskListFound    = "Error: No task list found. Create a task list in Google Tasks first or pass task_list_id."
	msgCouldNotGetList    = "Error: Could not get task list. Response: "
)

type Options struct {
	Client *mcp.Client
	// UserEmail is sent as user_google_email when set.
	UserEmail string
	// Timeout bounds each operation; zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Adapter exposes the Drive and Tasks operations of the workspace server.
// Every failure except a missing HTTP endpoint is reported as a string that
// starts with "Error:".
type Adapter struct {
	client  *mcp.Client
	email   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		client:  opts.Client,
		email:   strings.TrimSpace(opts.UserEmail),
		timeout: opts.Timeout,
		logger:  logger.With("component", "workspace"),
	}
}

type FileRequest struct {
	Name     string
	Content  string
	FolderID string
	MimeType string
}

type TaskRequest struct {
	Title      string
	TaskListID string
	Notes      string
	Due        string
}

// ListTaskLists renders the user's task lists as "{i}. {title} (id: {id})" lines.
func (a *Adapter) ListTaskLists(ctx context.Context, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = DefaultListMaxResults
	}
	return a.run(ctx, protocol.ServerToolListTaskLists, func(ctx context.Context, s *mcp.Session) (string, error) {
		raw := s.CallTool(ctx, protocol.ServerToolListTaskLists, a.withAccount(map[string]any{"max_results": maxResults}))
		items, err := DecodeListing(raw)
		switch {
		case errors.Is(err, ErrNotStructured):
			if MentionsMissingAccount(raw) {
				return msgListNeedsAccount, nil
			}
			return raw, nil
		case err != nil:
			return raw, nil
		case len(items) == 0:
			return msgNoTaskLists, nil
		}
		lines := make([]string, 0, len(items))
		for i, item := range items {
			id := field(item, "id", "task_list_id")
			if id == "" {
				id = "?"
			}
			title := field(item, "title", "name")
			if title == "" {
				title = "Untitled"
			}
			lines = append(lines, fmt.Sprintf("%d. %s (id: %s)", i+1, title, id))
		}
		return strings.Join(lines, "\n"), nil
	})
}

// CreateFile creates a Drive file and returns the server's reply verbatim.
func (a *Adapter) CreateFile(ctx context.Context, req FileRequest) (string, error) {
	mime := strings.TrimSpace(req.MimeType)
	if mime == "" {
		mime = DefaultMimeType
	}
	args := map[string]any{
		"file_name": req.Name,
		"content":   req.Content,
		"mime_type": mime,
	}
	if req.FolderID != "" {
		args["folder_id"] = req.FolderID
	}
	return a.run(ctx, protocol.ServerToolCreateDriveFile, func(ctx context.Context, s *mcp.Session) (string, error) {
		return s.CallTool(ctx, protocol.ServerToolCreateDriveFile, a.withAccount(args)), nil
	})
}

// CreateTask creates a task. Without a TaskListID the first list returned by
// the server is used, resolved in the same session.
func (a *Adapter) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	return a.run(ctx, protocol.ServerToolCreateTask, func(ctx context.Context, s *mcp.Session) (string, error) {
		listID := strings.TrimSpace(req.TaskListID)
		if listID == "" {
			raw := s.CallTool(ctx, protocol.ServerToolListTaskLists, a.withAccount(map[string]any{"max_results": resolveMaxResults}))
			id, failure := resolveDefaultList(raw)
			if failure != "" {
				a.logger.Debug("default task list not resolved", "reply", truncate(raw, 200))
				return failure, nil
			}
			listID = id
		}
		args := map[string]any{"task_list_id": listID, "title": req.Title}
		if req.Notes != "" {
			args["notes"] = req.Notes
		}
		if req.Due != "" {
			args["due"] = req.Due
		}
		return s.CallTool(ctx, protocol.ServerToolCreateTask, a.withAccount(args)), nil
	})
}

var (
	errNoStructuredID = errors.New("structured listing has no usable id")
	errAccountMissing = errors.New("reply signals a missing account identifier")
	errNoIDInText     = errors.New("no id found in reply text")
)

// resolveTier inspects a list_task_lists reply. It returns an id, or an error
// naming why this tier could not produce one.
type resolveTier struct {
	name    string
	resolve func(raw string, parseErr error, items []map[string]any) (string, error)
}

var resolveChain = []resolveTier{
	{"structured", func(_ string, parseErr error, items []map[string]any) (string, error) {
		if parseErr != nil {
			return "", parseErr
		}
		if len(items) > 0 {
			if id := field(items[0], "id", "task_list_id"); id != "" {
				return id, nil
			}
		}
		return "", errNoStructuredID
	}},
	{"account", func(raw string, parseErr error, _ []map[string]any) (string, error) {
		if errors.Is(parseErr, ErrNotStructured) && MentionsMissingAccount(raw) {
			return "", errAccountMissing
		}
		return "", errNoIDInText
	}},
	{"pattern", func(raw string, _ error, _ []map[string]any) (string, error) {
		if id, ok := ExtractListID(raw); ok {
			return id, nil
		}
		return "", errNoIDInText
	}},
}

// resolveDefaultList runs the tiers in order. The first id wins; a
// structured-but-empty listing or a missing account ends the chain early.
// failure is the user-facing message when no id was found.
func resolveDefaultList(raw string) (id string, failure string) {
	items, parseErr := DecodeListing(raw)
	for _, tier := range resolveChain {
		id, err := tier.resolve(raw, parseErr, items)
		switch {
		case err == nil:
			return id, ""
		case errors.Is(err, errNoStructuredID):
			return "", msgNoTaskListFound
		case errors.Is(err, errAccountMissing):
			return "", msgCreateNeedsAccount
		}
	}
	if errors.Is(parseErr, ErrMalformedListing) {
		return "", msgCouldNotGetList + truncate(raw, 200)
	}
	return "", msgCouldNotGetList + truncate(raw, 300)
}

func (a *Adapter) withAccount(args map[string]any) map[string]any {
	if a.email != "" {
		args["user_google_email"] = a.email
	}
	return args
}

func (a *Adapter) run(ctx context.Context, op string, fn func(context.Context, *mcp.Session) (string, error)) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	started := time.Now()
	out, err := mcp.WithSession(ctx, a.client, fn)
	if err != nil {
		if errors.Is(err, mcp.ErrMissingEndpoint) {
			return "", err
		}
		a.logger.Warn("workspace operation failed", "op", op, "error", err)
		return "Error: " + err.Error(), nil
	}
	a.logger.Debug("workspace operation", "op", op, "elapsed", time.Since(started))
	return out, nil
}
