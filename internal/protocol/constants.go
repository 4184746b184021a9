package protocol

// Tools offered to the language model.
const (
	ToolNameSearchKnowledge  = "search_knowledge_base"
	ToolNameFetchExternal    = "fetch_external_updates"
	ToolNameCreateDriveFile  = "create_file_in_drive"
	ToolNameListTaskLists    = "list_google_task_lists"
	ToolNameCreateGoogleTask = "create_google_task"
)

// Tools exposed by the workspace-mcp server.
const (
	ServerToolListTaskLists   = "list_task_lists"
	ServerToolCreateDriveFile = "create_drive_file"
	ServerToolCreateTask      = "create_task"
)

const (
	// NoResponse is the answer when the model never produced final text.
	NoResponse = "No response."

	ToolErrorPrefix   = "Tool error: "
	UnknownToolPrefix = "Unknown tool: "
)
