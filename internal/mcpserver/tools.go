// Package mcpserver registers MCP tools that expose workspace operations.
// It adapts the workspace package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/zepposd/docudigitize/internal/autosave"
	"github.com/zepposd/docudigitize/internal/clock"
	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/workspace"
)

// Deps are the services the tools operate on. Autosave may be nil, in
// which case the status tool reports idle.
type Deps struct {
	Workspace *workspace.Workspace
	Pipeline  *ingest.Pipeline
	Autosave  *autosave.Scheduler
	Clock     clock.Clock
}

// tools binds handlers to Deps. ingestMu keeps concurrent ingest calls
// from sharing the pipeline queue.
type tools struct {
	Deps
	ingestMu sync.Mutex
}

// RegisterTools adds all workspace tools to the given MCP server.
func RegisterTools(server *mcp.Server, deps Deps) {
	t := &tools{Deps: deps}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_list_files",
		Description: "List every digitized file with its metadata (id, filename, uploader, language, archive status). No OCR text. Use this first to get file ids.",
	}, handler(t.listFiles))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_read_file",
		Description: "Read one file in full: OCR text, summary, translations and metadata.",
	}, handler(t.readFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_search",
		Description: "Offline case-insensitive search across filenames, metadata values, summaries and OCR text. Each file is reported once with a snippet.",
	}, handler(t.search))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_smart_search",
		Description: "Semantic search: the AI collaborator picks the files that answer a natural-language query and says why.",
	}, handler(t.smartSearch))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_update_file",
		Description: "Edit fields of a file. Only the fields given are changed. Metadata, when given, replaces the whole list.",
	}, handler(t.updateFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_toggle_archive",
		Description: "Flip a file between keep and exclude. Excluded files are left out of backups and workbook exports.",
	}, handler(t.toggleArchive))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_delete_file",
		Description: "Delete a file. Deleting a missing id is not an error.",
	}, handler(t.deleteFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_translate_file",
		Description: "Translate a file's OCR text into English or Greek and store the translation on the file.",
	}, handler(t.translateFile))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_reevaluate_languages",
		Description: "Ask the AI collaborator for the original language of the given files (all files when ids is empty). Stops at the first authentication failure.",
	}, handler(t.reevaluateLanguages))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docs_ingest",
		Description: "Ingest scan files (PNG, JPEG, PDF) from paths on the server. Each file is extracted and committed unedited. Duplicates by content are skipped or replaced per on_duplicate.",
	}, handler(t.ingest))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_list",
		Description: "List the metadata titles in display order.",
	}, handler(t.listTitles))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_add",
		Description: "Add a metadata title. Names are unique ignoring case.",
	}, handler(t.addTitle))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_rename",
		Description: "Rename a metadata title in place.",
	}, handler(t.renameTitle))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_delete",
		Description: "Delete a metadata title. File metadata values are left untouched.",
	}, handler(t.deleteTitle))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_reorder",
		Description: "Reorder metadata titles. ids must list every title exactly once.",
	}, handler(t.reorderTitles))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_suggest",
		Description: "Ask the AI collaborator for metadata titles that fit a sample text. Only titles not already present are added.",
	}, handler(t.suggestTitles))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "titles_history",
		Description: "List saved title settings snapshots, oldest first, or diff two of them when from is given.",
	}, handler(t.history))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "autosave_status",
		Description: "Report the title autosave state (idle, pending, saving, saved) and whether unsaved title edits exist.",
	}, handler(t.autosaveStatus))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "users_list",
		Description: "List workspace users.",
	}, handler(t.listUsers))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "users_add",
		Description: "Add a user. Names are unique ignoring case.",
	}, handler(t.addUser))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "users_delete",
		Description: "Delete a user. Their files are kept.",
	}, handler(t.deleteUser))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_create",
		Description: "Write a backup JSON file of the workspace into dir. Excluded files are left out.",
	}, handler(t.backup))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_merge",
		Description: "Merge a backup file into the workspace, adding only what is missing. Returns per-collection counts.",
	}, handler(t.merge))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_restore",
		Description: "Replace the workspace with the contents of a backup file. Users are kept. All or nothing.",
	}, handler(t.restore))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_files",
		Description: "Export files as txt, csv, xlsx or md into dir. ids selects files, all files when omitted.",
	}, handler(t.export))
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// handler adapts a plain operation to the SDK's typed handler signature.
func handler[In, Out any](fn func(context.Context, In) (Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		out, err := fn(ctx, input)
		if err != nil {
			var zero Out
			return nil, zero, err
		}

		return textResult(out), out, nil
	}
}
