package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/reconcile"
	"github.com/zepposd/docudigitize/internal/state"
	"github.com/zepposd/docudigitize/internal/testutil"
	"github.com/zepposd/docudigitize/internal/workspace"
	"go.uber.org/mock/gomock"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	session   *mcp.ClientSession
	ws        *workspace.Workspace
	assistant *workspace.MockAssistant
	extractor *ingest.MockExtractor
}

// testSetup creates a workspace in a temp database, registers tools on an
// MCP server, and returns a connected client session for calling tools.
func testSetup(t *testing.T) *fixture {
	t.Helper()

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "test.db"),
		state.WithIDGenerator(testutil.NewStubIDGenerator()),
		state.WithSeedTitles([]models.MetadataTitle{{ID: "meta-1", Name: "Date"}, {ID: "meta-2", Name: "Author"}}))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctrl := gomock.NewController(t)
	assistant := workspace.NewMockAssistant(ctrl)
	extractor := ingest.NewMockExtractor(ctrl)
	clk := testutil.FixedClock()

	ws := workspace.New(st, assistant, nil, clk, testLogger)

	for _, f := range []models.DigitizedFile{
		{
			OriginalFilename: "letter.png",
			ContentHash:      "hash-letter",
			OCRText:          "Αγαπητέ φίλε,\nη σοδειά ήταν καλή.",
			Summary:          "Επιστολή για τη σοδειά",
			OriginalLanguage: "Ελληνικά",
			Metadata:         models.Metadata{{Name: "Date", Value: "1921"}, {Name: "Author", Value: "Νίκος"}},
			UploadedBy:       "Maria",
			ArchiveStatus:    models.ArchiveKeep,
		},
		{
			OriginalFilename: "deed.pdf",
			ContentHash:      "hash-deed",
			OCRText:          "Title deed for the olive grove.",
			Summary:          "Συμβόλαιο",
			OriginalLanguage: "Αγγλικά",
			Metadata:         models.Metadata{},
			UploadedBy:       "Maria",
			ArchiveStatus:    models.ArchiveKeep,
		},
	} {
		_, err := st.Files.Create(f)
		require.NoError(t, err)
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "docudigitize-test", Version: "test"},
		nil,
	)
	RegisterTools(server, Deps{
		Workspace: ws,
		Pipeline:  ingest.New(st, extractor, clk, testLogger),
		Clock:     clk,
	})

	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err = server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "test"},
		nil,
	)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &fixture{session: session, ws: ws, assistant: assistant, extractor: extractor}
}

// callTool is a helper that calls a tool and returns the result.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	return result
}

// extractJSON unmarshals the first text content from a CallToolResult.
func extractJSON(t *testing.T, result *mcp.CallToolResult, dest interface{}) {
	t.Helper()
	require.NotEmpty(t, result.Content, "result has no content")
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content is not TextContent")
	require.NoError(t, json.Unmarshal([]byte(tc.Text), dest))
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, result.IsError)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func fileID(t *testing.T, ws *workspace.Workspace, name string) string {
	t.Helper()
	for _, f := range ws.Files() {
		if f.OriginalFilename == name {
			return f.ID
		}
	}
	t.Fatalf("%s not found", name)
	return ""
}

// --- registration ---

func TestRegisterTools_ListsEveryTool(t *testing.T) {
	f := testSetup(t)

	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}

	for _, want := range []string{
		"docs_list_files", "docs_read_file", "docs_search", "docs_smart_search",
		"docs_update_file", "docs_toggle_archive", "docs_delete_file",
		"docs_translate_file", "docs_reevaluate_languages", "docs_ingest",
		"titles_list", "titles_add", "titles_rename", "titles_delete",
		"titles_reorder", "titles_suggest", "titles_history", "autosave_status",
		"users_list", "users_add", "users_delete",
		"backup_create", "backup_merge", "backup_restore", "export_files",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

// --- files ---

func TestListFiles(t *testing.T) {
	f := testSetup(t)
	result := callTool(t, f.session, "docs_list_files", nil)
	assert.False(t, result.IsError)

	var out FileListResult
	extractJSON(t, result, &out)
	require.Equal(t, 2, out.TotalFiles)
	assert.Equal(t, "letter.png", out.Files[0].OriginalFilename)
	assert.Equal(t, []MetadataField{{Name: "Date", Value: "1921"}, {Name: "Author", Value: "Νίκος"}}, out.Files[0].Metadata)
	assert.Equal(t, []MetadataField{}, out.Files[1].Metadata)
	assert.Equal(t, "keep", out.Files[0].ArchiveStatus)
}

func TestReadFile(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "letter.png")

	result := callTool(t, f.session, "docs_read_file", map[string]interface{}{"id": id})
	assert.False(t, result.IsError)

	var out FileView
	extractJSON(t, result, &out)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, "hash-letter", out.ContentHash)
	assert.Contains(t, out.OCRText, "σοδειά")
}

func TestReadFile_NotFound(t *testing.T) {
	f := testSetup(t)
	result := callTool(t, f.session, "docs_read_file", map[string]interface{}{"id": "missing"})
	assert.Contains(t, errorText(t, result), "not found")
}

func TestSearch_ByMetadata(t *testing.T) {
	f := testSetup(t)
	result := callTool(t, f.session, "docs_search", map[string]interface{}{"query": "νίκος"})
	assert.False(t, result.IsError)

	var out workspace.SearchResult
	extractJSON(t, result, &out)
	require.Equal(t, 1, out.TotalMatches)
	assert.Equal(t, "metadata", out.Results[0].MatchType)
	assert.Equal(t, "letter.png", out.Results[0].Filename)
}

func TestSearch_NoMatches(t *testing.T) {
	f := testSetup(t)
	result := callTool(t, f.session, "docs_search", map[string]interface{}{"query": "zzz"})
	assert.False(t, result.IsError)

	var out workspace.SearchResult
	extractJSON(t, result, &out)
	assert.Equal(t, 0, out.TotalMatches)
	assert.Empty(t, out.Results)
}

func TestSmartSearch(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "deed.pdf")

	f.assistant.EXPECT().SmartSearch(gomock.Any(), "olive land", gomock.Len(2)).
		Return([]gemini.Match{{ID: id, Reason: "mentions the grove"}, {ID: "ghost", Reason: "?"}}, nil)

	result := callTool(t, f.session, "docs_smart_search", map[string]interface{}{"query": "olive land"})
	assert.False(t, result.IsError)

	var out SmartSearchResult
	extractJSON(t, result, &out)
	assert.Equal(t, []SmartHitView{{ID: id, Filename: "deed.pdf", Reason: "mentions the grove"}}, out.Hits)
}

func TestUpdateFile(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "letter.png")

	result := callTool(t, f.session, "docs_update_file", map[string]interface{}{
		"id":       id,
		"summary":  "Νέα περίληψη",
		"metadata": []map[string]string{{"name": "Author", "value": "Ελένη"}, {"name": "Date", "value": "1922"}},
	})
	assert.False(t, result.IsError)

	var out FileView
	extractJSON(t, result, &out)
	assert.Equal(t, "Νέα περίληψη", out.Summary)
	assert.Equal(t, []MetadataField{{Name: "Author", Value: "Ελένη"}, {Name: "Date", Value: "1922"}}, out.Metadata)

	stored, err := f.ws.File(id)
	require.NoError(t, err)
	assert.Equal(t, "Νέα περίληψη", stored.Summary)
	assert.Equal(t, "hash-letter", stored.ContentHash, "fields not given are kept")
}

func TestUpdateFile_InvalidArchiveStatus(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "letter.png")

	result := callTool(t, f.session, "docs_update_file", map[string]interface{}{
		"id":             id,
		"archive_status": "shred",
	})
	assert.True(t, result.IsError)
}

func TestToggleArchive(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "deed.pdf")

	result := callTool(t, f.session, "docs_toggle_archive", map[string]interface{}{"id": id})
	assert.False(t, result.IsError)

	var out FileSummary
	extractJSON(t, result, &out)
	assert.Equal(t, "exclude", out.ArchiveStatus)
}

func TestDeleteFile(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "deed.pdf")

	result := callTool(t, f.session, "docs_delete_file", map[string]interface{}{"id": id})
	assert.False(t, result.IsError)
	assert.Len(t, f.ws.Files(), 1)

	result = callTool(t, f.session, "docs_delete_file", map[string]interface{}{"id": id})
	assert.False(t, result.IsError, "deleting twice is not an error")
}

func TestTranslateFile(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "letter.png")

	f.assistant.EXPECT().Translate(gomock.Any(), gomock.Any(), gemini.English).Return("Dear friend,\nthe harvest was good.", nil)

	result := callTool(t, f.session, "docs_translate_file", map[string]interface{}{"id": id, "target": "English"})
	assert.False(t, result.IsError)

	var out FileView
	extractJSON(t, result, &out)
	assert.Equal(t, "Dear friend,\nthe harvest was good.", out.TranslationEn)
}

func TestTranslateFile_BadTarget(t *testing.T) {
	f := testSetup(t)
	id := fileID(t, f.ws, "letter.png")

	result := callTool(t, f.session, "docs_translate_file", map[string]interface{}{"id": id, "target": "Latin"})
	assert.Contains(t, errorText(t, result), "Latin")
}

func TestReevaluateLanguages_AllFiles(t *testing.T) {
	f := testSetup(t)

	gomock.InOrder(
		f.assistant.EXPECT().DetectLanguage(gomock.Any(), gomock.Any()).Return("Ελληνικά", nil),
		f.assistant.EXPECT().DetectLanguage(gomock.Any(), gomock.Any()).Return("", apperrors.ErrService),
	)

	result := callTool(t, f.session, "docs_reevaluate_languages", nil)
	assert.False(t, result.IsError)

	var out workspace.LanguageResult
	extractJSON(t, result, &out)
	assert.Equal(t, workspace.LanguageResult{Updated: 1, Failed: 1}, out)
	assert.Equal(t, models.LanguageError, f.ws.Files()[1].OriginalLanguage)
}

func TestReevaluateLanguages_AuthStops(t *testing.T) {
	f := testSetup(t)

	f.assistant.EXPECT().DetectLanguage(gomock.Any(), gomock.Any()).Return("", apperrors.ErrAuth)

	result := callTool(t, f.session, "docs_reevaluate_languages", nil)
	assert.True(t, result.IsError)
}

// --- ingest ---

func pngData(tag string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), tag...)
}

func TestIngest(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()

	scan := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(scan, pngData("new"), 0o644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0o644))

	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(&models.Extraction{
		OCRText:          "σκαναρισμένο",
		Summary:          "Σάρωση",
		OriginalLanguage: "Ελληνικά",
		Metadata:         models.Metadata{{Name: "Date", Value: "1930"}, {Name: "Author", Value: ""}},
	}, nil)

	result := callTool(t, f.session, "docs_ingest", map[string]interface{}{
		"paths":       []string{scan, notes, filepath.Join(dir, "missing.png")},
		"uploaded_by": "Eleni",
	})
	assert.False(t, result.IsError)

	var out IngestResult
	extractJSON(t, result, &out)
	require.Len(t, out.Created, 1)
	assert.Equal(t, "scan.png", out.Created[0].Name)
	assert.Empty(t, out.Skipped)
	assert.Equal(t, []string{"notes.txt"}, out.Rejected)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "missing.png", out.Failed[0].Name)

	stored, err := f.ws.File(out.Created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Eleni", stored.UploadedBy)
	assert.Len(t, f.ws.Users(), 1, "uploader is logged in")
}

func TestIngest_DuplicateSkipped(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()

	scan := filepath.Join(dir, "again.png")
	require.NoError(t, os.WriteFile(scan, pngData("dup"), 0o644))

	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(&models.Extraction{OCRText: "x", Metadata: models.Metadata{}}, nil)

	args := map[string]interface{}{"paths": []string{scan}, "uploaded_by": "Eleni"}

	result := callTool(t, f.session, "docs_ingest", args)
	require.False(t, result.IsError)

	result = callTool(t, f.session, "docs_ingest", args)
	require.False(t, result.IsError)

	var out IngestResult
	extractJSON(t, result, &out)
	assert.Equal(t, []string{"again.png"}, out.Skipped)
	assert.Empty(t, out.Created)
	assert.Len(t, f.ws.Files(), 3)
}

func TestIngest_InvalidPolicy(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "docs_ingest", map[string]interface{}{
		"paths":        []string{"/nowhere.png"},
		"uploaded_by":  "Eleni",
		"on_duplicate": "merge",
	})
	assert.Contains(t, errorText(t, result), "on_duplicate")
}

func TestIngest_AuthFailureResetsQueue(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()

	scan := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(scan, pngData("auth"), 0o644))

	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, apperrors.ErrAuth)

	result := callTool(t, f.session, "docs_ingest", map[string]interface{}{"paths": []string{scan}, "uploaded_by": "Eleni"})
	assert.True(t, result.IsError)
	assert.Len(t, f.ws.Files(), 2)
}

// --- titles ---

func TestTitles_AddRenameReorderDelete(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "titles_add", map[string]interface{}{"name": "Place"})
	require.False(t, result.IsError)

	var added TitleView
	extractJSON(t, result, &added)
	assert.Equal(t, "Place", added.Name)

	result = callTool(t, f.session, "titles_add", map[string]interface{}{"name": "place"})
	assert.Contains(t, errorText(t, result), "exists")

	result = callTool(t, f.session, "titles_rename", map[string]interface{}{"id": added.ID, "name": "Location"})
	require.False(t, result.IsError)

	result = callTool(t, f.session, "titles_reorder", map[string]interface{}{"ids": []string{added.ID, "meta-2", "meta-1"}})
	require.False(t, result.IsError)

	var list TitleListResult
	extractJSON(t, result, &list)
	assert.Equal(t, []TitleView{{ID: added.ID, Name: "Location"}, {ID: "meta-2", Name: "Author"}, {ID: "meta-1", Name: "Date"}}, list.Titles)

	result = callTool(t, f.session, "titles_delete", map[string]interface{}{"id": "meta-2"})
	require.False(t, result.IsError)

	result = callTool(t, f.session, "titles_list", nil)
	extractJSON(t, result, &list)
	assert.Len(t, list.Titles, 2)
}

func TestTitles_ReorderIncomplete(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "titles_reorder", map[string]interface{}{"ids": []string{"meta-1"}})
	assert.True(t, result.IsError)
}

func TestTitles_Suggest(t *testing.T) {
	f := testSetup(t)

	f.assistant.EXPECT().SuggestTitles(gomock.Any(), "sample").Return([]string{"date", "Recipient"}, nil)

	result := callTool(t, f.session, "titles_suggest", map[string]interface{}{"sample": "sample"})
	require.False(t, result.IsError)

	var out TitleListResult
	extractJSON(t, result, &out)
	require.Len(t, out.Titles, 1)
	assert.Equal(t, "Recipient", out.Titles[0].Name)
}

func TestTitles_History(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "titles_history", nil)
	require.False(t, result.IsError)

	var out HistoryResult
	extractJSON(t, result, &out)
	assert.Empty(t, out.Snapshots)

	_, err := f.ws.State().MetadataSettingsHistory.Create(models.MetadataSettingsSnapshot{
		SavedAt:        testutil.FixedClock().Now(),
		MetadataTitles: f.ws.Titles(),
	})
	require.NoError(t, err)

	_, err = f.ws.AddTitle("Place")
	require.NoError(t, err)

	result = callTool(t, f.session, "titles_history", nil)
	extractJSON(t, result, &out)
	require.Len(t, out.Snapshots, 1)
	assert.Equal(t, []string{"Date", "Author"}, out.Snapshots[0].Titles)
	assert.Equal(t, "2024-01-15T10:30:00Z", out.Snapshots[0].SavedAt)

	result = callTool(t, f.session, "titles_history", map[string]interface{}{"from": out.Snapshots[0].Ref})
	require.False(t, result.IsError)

	extractJSON(t, result, &out)
	assert.Equal(t, []DiffLineView{{Op: " ", Name: "Date"}, {Op: " ", Name: "Author"}, {Op: "+", Name: "Place"}}, out.Diff)
}

func TestTitles_HistoryUnknownRef(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "titles_history", map[string]interface{}{"from": "nope"})
	assert.True(t, result.IsError)
}

func TestAutosaveStatus_NoScheduler(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "autosave_status", nil)
	require.False(t, result.IsError)

	var out AutosaveResult
	extractJSON(t, result, &out)
	assert.Equal(t, AutosaveResult{Status: "idle"}, out)
}

// --- users ---

func TestUsers(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "users_add", map[string]interface{}{"name": "Maria"})
	require.False(t, result.IsError)

	result = callTool(t, f.session, "users_add", map[string]interface{}{"name": "maria"})
	assert.True(t, result.IsError)

	result = callTool(t, f.session, "users_list", nil)

	var out UserListResult
	extractJSON(t, result, &out)
	assert.Equal(t, []string{"Maria"}, out.Users)

	result = callTool(t, f.session, "users_delete", map[string]interface{}{"name": "MARIA"})
	require.False(t, result.IsError)
	extractJSON(t, result, &out)
	assert.Empty(t, out.Users)
	assert.Len(t, f.ws.Files(), 2, "files outlive their uploader")
}

// --- backup and export ---

func TestBackupMergeRestore(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()

	result := callTool(t, f.session, "backup_create", map[string]interface{}{"dir": dir})
	require.False(t, result.IsError)

	var backup PathResult
	extractJSON(t, result, &backup)
	assert.Equal(t, filepath.Join(dir, "DocuDigitize-Backup-2024-01-15T10-30-00-000Z.json"), backup.Path)

	result = callTool(t, f.session, "backup_merge", map[string]interface{}{"path": backup.Path})
	require.False(t, result.IsError)

	var summary reconcile.Summary
	extractJSON(t, result, &summary)
	assert.True(t, summary.Empty(), "merging the workspace into itself adds nothing")

	require.NoError(t, f.ws.DeleteFile(fileID(t, f.ws, "deed.pdf")))

	result = callTool(t, f.session, "backup_restore", map[string]interface{}{"path": backup.Path})
	require.False(t, result.IsError)

	var restored RestoreResult
	extractJSON(t, result, &restored)
	assert.Equal(t, RestoreResult{Files: 2, MetadataTitles: 2}, restored)
}

func TestBackupRestore_InvalidFile(t *testing.T) {
	f := testSetup(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":2}`), 0o644))

	result := callTool(t, f.session, "backup_restore", map[string]interface{}{"path": path})
	assert.True(t, result.IsError)
	assert.Len(t, f.ws.Files(), 2, "failed restore leaves the workspace alone")
}

func TestExport_CSV(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()

	result := callTool(t, f.session, "export_files", map[string]interface{}{"format": "csv", "dir": dir})
	require.False(t, result.IsError)

	var out ExportResult
	extractJSON(t, result, &out)
	require.Len(t, out.Paths, 1)
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, filepath.Join(dir, "DocuDigitize-Export-2024-01-15T10-30-00-000Z.csv"), out.Paths[0])

	data, err := os.ReadFile(out.Paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"letter.png"`)
}

func TestExport_MarkdownSelection(t *testing.T) {
	f := testSetup(t)
	dir := t.TempDir()
	id := fileID(t, f.ws, "deed.pdf")

	result := callTool(t, f.session, "export_files", map[string]interface{}{"format": "markdown", "dir": dir, "ids": []string{id}})
	require.False(t, result.IsError)

	var out ExportResult
	extractJSON(t, result, &out)
	assert.Equal(t, []string{filepath.Join(dir, "deed.md")}, out.Paths)
}

func TestExport_UnknownFormat(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "export_files", map[string]interface{}{"format": "docx", "dir": t.TempDir()})
	assert.Contains(t, errorText(t, result), "docx")
}
