package tools

import (
	"context"
	"fmt"

	"pkai/internal/protocol"
	"pkai/internal/workspace"
)

// Workspace is the subset of the workspace adapter the tools call.
type Workspace interface {
	ListTaskLists(ctx context.Context, maxResults int) (string, error)
	CreateFile(ctx context.Context, req workspace.FileRequest) (string, error)
	CreateTask(ctx context.Context, req workspace.TaskRequest) (string, error)
}

type CreateDriveFile struct{ ws Workspace }

func NewCreateDriveFile(ws Workspace) *CreateDriveFile { return &CreateDriveFile{ws: ws} }

func (t *CreateDriveFile) Name() string { return protocol.ToolNameCreateDriveFile }

func (t *CreateDriveFile) Description() string {
	return "Create a file in the user's Google Drive. Use to save a note or document for the user. Executes immediately."
}

func (t *CreateDriveFile) Parameters() map[string]any {
	return schema([]string{"name", "content"}, map[string]any{
		"name":      prop("string", "File name"),
		"content":   prop("string", "File content"),
		"folder_id": prop("string", "Optional Drive folder id"),
		"mime_type": prop("string", "MIME type (default text/plain)"),
	})
}

func (t *CreateDriveFile) Invoke(ctx context.Context, args map[string]any) (string, error) {
	name := stringArg(args, "name")
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	content, _ := args["content"].(string)
	return t.ws.CreateFile(ctx, workspace.FileRequest{
		Name:     name,
		Content:  content,
		FolderID: stringArg(args, "folder_id"),
		MimeType: stringArg(args, "mime_type"),
	})
}

type ListTaskLists struct{ ws Workspace }

func NewListTaskLists(ws Workspace) *ListTaskLists { return &ListTaskLists{ws: ws} }

func (t *ListTaskLists) Name() string { return protocol.ToolNameListTaskLists }

func (t *ListTaskLists) Description() string {
	return "List the user's Google Tasks task lists with their ids."
}

func (t *ListTaskLists) Parameters() map[string]any {
	return schema(nil, map[string]any{
		"max_results": prop("integer", fmt.Sprintf("Maximum number of lists (default %d)", workspace.DefaultListMaxResults)),
	})
}

func (t *ListTaskLists) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.ws.ListTaskLists(ctx, intArg(args, "max_results", workspace.DefaultListMaxResults))
}

type CreateGoogleTask struct{ ws Workspace }

func NewCreateGoogleTask(ws Workspace) *CreateGoogleTask { return &CreateGoogleTask{ws: ws} }

func (t *CreateGoogleTask) Name() string { return protocol.ToolNameCreateGoogleTask }

func (t *CreateGoogleTask) Description() string {
	return "Create a task in the user's Google Tasks. Without task_list_id the first task list is used. Executes immediately."
}

func (t *CreateGoogleTask) Parameters() map[string]any {
	return schema([]string{"title"}, map[string]any{
		"title":        prop("string", "Task title"),
		"task_list_id": prop("string", "Optional task list id"),
		"notes":        prop("string", "Optional notes"),
		"due":          prop("string", "Optional RFC 3339 due date"),
	})
}

func (t *CreateGoogleTask) Invoke(ctx context.Context, args map[string]any) (string, error) {
	title := stringArg(args, "title")
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	return t.ws.CreateTask(ctx, workspace.TaskRequest{
		Title:      title,
		TaskListID: stringArg(args, "task_list_id"),
		Notes:      stringArg(args, "notes"),
		Due:        stringArg(args, "due"),
	})
}
