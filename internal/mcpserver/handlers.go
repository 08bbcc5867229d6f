package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zepposd/docudigitize/internal/autosave"
	"github.com/zepposd/docudigitize/internal/export"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/reconcile"
	"github.com/zepposd/docudigitize/internal/workspace"
)

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// NoInput is for tools without parameters.
type NoInput struct{}

// IDInput names one entity.
type IDInput struct {
	ID string `json:"id" jsonschema:"required,entity id"`
}

// NameInput carries one name.
type NameInput struct {
	Name string `json:"name" jsonschema:"required,name"`
}

// SearchInput holds parameters for docs_search.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"required,search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 20"`
}

// QueryInput holds parameters for docs_smart_search.
type QueryInput struct {
	Query string `json:"query" jsonschema:"required,natural-language question about the documents"`
}

// UpdateFileInput holds parameters for docs_update_file.
type UpdateFileInput struct {
	ID               string          `json:"id" jsonschema:"required,file id"`
	OriginalFilename *string         `json:"original_filename,omitempty" jsonschema:"new display filename"`
	Summary          *string         `json:"summary,omitempty" jsonschema:"new summary"`
	OCRText          *string         `json:"ocr_text,omitempty" jsonschema:"corrected OCR text"`
	OriginalLanguage *string         `json:"original_language,omitempty" jsonschema:"original language label"`
	TranslationEn    *string         `json:"translation_en,omitempty" jsonschema:"English translation"`
	TranslationGr    *string         `json:"translation_gr,omitempty" jsonschema:"Greek translation"`
	ArchiveStatus    *string         `json:"archive_status,omitempty" jsonschema:"keep or exclude"`
	Metadata         []MetadataField `json:"metadata,omitempty" jsonschema:"full ordered metadata list, replaces the existing one"`
}

// TranslateInput holds parameters for docs_translate_file.
type TranslateInput struct {
	ID     string `json:"id" jsonschema:"required,file id"`
	Target string `json:"target" jsonschema:"required,English or Greek"`
}

// IDsInput selects files or titles.
type IDsInput struct {
	IDs []string `json:"ids,omitempty" jsonschema:"ids to act on"`
}

// IngestInput holds parameters for docs_ingest.
type IngestInput struct {
	Paths       []string `json:"paths" jsonschema:"required,absolute paths of scan files on the server"`
	UploadedBy  string   `json:"uploaded_by" jsonschema:"required,user the files are recorded under"`
	OnDuplicate string   `json:"on_duplicate,omitempty" jsonschema:"skip or replace, defaults to skip"`
}

// RenameInput holds parameters for titles_rename.
type RenameInput struct {
	ID   string `json:"id" jsonschema:"required,title id"`
	Name string `json:"name" jsonschema:"required,new name"`
}

// SuggestInput holds parameters for titles_suggest.
type SuggestInput struct {
	Sample string `json:"sample" jsonschema:"required,sample document text"`
	Record bool   `json:"record,omitempty" jsonschema:"keep the sample in the raw input log"`
}

// HistoryInput holds parameters for titles_history.
type HistoryInput struct {
	From string `json:"from,omitempty" jsonschema:"snapshot ref to diff from"`
	To   string `json:"to,omitempty" jsonschema:"snapshot ref to diff to, defaults to the live titles"`
}

// DirInput names a directory on the server.
type DirInput struct {
	Dir string `json:"dir" jsonschema:"required,directory on the server"`
}

// PathInput names a file on the server.
type PathInput struct {
	Path string `json:"path" jsonschema:"required,file path on the server"`
}

// ExportInput holds parameters for export_files.
type ExportInput struct {
	Format string   `json:"format" jsonschema:"required,txt, csv, xlsx or md"`
	Dir    string   `json:"dir" jsonschema:"required,directory on the server"`
	IDs    []string `json:"ids,omitempty" jsonschema:"file ids to export, all files when omitted"`
}

// --- Handlers: files ---

func (t *tools) listFiles(_ context.Context, _ NoInput) (FileListResult, error) {
	files := t.Workspace.Files()

	out := FileListResult{TotalFiles: len(files), Files: make([]FileSummary, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, summaryView(f))
	}

	return out, nil
}

func (t *tools) readFile(_ context.Context, in IDInput) (FileView, error) {
	f, err := t.Workspace.File(in.ID)
	if err != nil {
		return FileView{}, err
	}

	return fileView(f), nil
}

func (t *tools) search(_ context.Context, in SearchInput) (workspace.SearchResult, error) {
	return t.Workspace.Search(in.Query, in.MaxResults), nil
}

func (t *tools) smartSearch(ctx context.Context, in QueryInput) (SmartSearchResult, error) {
	hits, err := t.Workspace.SmartSearch(ctx, in.Query)
	if err != nil {
		return SmartSearchResult{}, err
	}

	out := SmartSearchResult{Query: in.Query, Hits: make([]SmartHitView, 0, len(hits))}
	for _, h := range hits {
		out.Hits = append(out.Hits, SmartHitView{ID: h.File.ID, Filename: h.File.OriginalFilename, Reason: h.Reason})
	}

	return out, nil
}

func (t *tools) updateFile(_ context.Context, in UpdateFileInput) (FileView, error) {
	patch := models.FilePatch{
		OriginalFilename: in.OriginalFilename,
		Summary:          in.Summary,
		OCRText:          in.OCRText,
		OriginalLanguage: in.OriginalLanguage,
		TranslationEn:    in.TranslationEn,
		TranslationGr:    in.TranslationGr,
	}

	if in.ArchiveStatus != nil {
		status := models.ArchiveStatus(*in.ArchiveStatus)
		patch.ArchiveStatus = &status
	}

	if in.Metadata != nil {
		patch.Metadata = models.Metadata{}
		for _, m := range in.Metadata {
			patch.Metadata = patch.Metadata.Set(m.Name, m.Value)
		}
	}

	f, err := t.Workspace.PatchFile(in.ID, patch)
	if err != nil {
		return FileView{}, err
	}

	return fileView(f), nil
}

func (t *tools) toggleArchive(_ context.Context, in IDInput) (FileSummary, error) {
	f, err := t.Workspace.ToggleArchive(in.ID)
	if err != nil {
		return FileSummary{}, err
	}

	return summaryView(f), nil
}

func (t *tools) deleteFile(_ context.Context, in IDInput) (DeleteResult, error) {
	if err := t.Workspace.DeleteFile(in.ID); err != nil {
		return DeleteResult{}, err
	}

	return DeleteResult{Deleted: in.ID}, nil
}

func (t *tools) translateFile(ctx context.Context, in TranslateInput) (FileView, error) {
	f, err := t.Workspace.TranslateFile(ctx, in.ID, gemini.Language(in.Target))
	if err != nil {
		return FileView{}, err
	}

	return fileView(f), nil
}

func (t *tools) reevaluateLanguages(ctx context.Context, in IDsInput) (workspace.LanguageResult, error) {
	ids := in.IDs
	if len(ids) == 0 {
		for _, f := range t.Workspace.Files() {
			ids = append(ids, f.ID)
		}
	}

	return t.Workspace.ReevaluateLanguages(ctx, ids, nil)
}

func (t *tools) ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	policy := ingest.OnDuplicateSkip
	if in.OnDuplicate != "" {
		policy = ingest.DuplicatePolicy(in.OnDuplicate)
	}

	if !policy.Valid() {
		return IngestResult{}, fmt.Errorf("on_duplicate must be %q or %q", ingest.OnDuplicateSkip, ingest.OnDuplicateReplace)
	}

	user, err := t.Workspace.Login(in.UploadedBy)
	if err != nil {
		return IngestResult{}, err
	}

	out := IngestResult{Rejected: []string{}, Failed: []IngestFailure{}}

	uploads := make([]ingest.Upload, 0, len(in.Paths))
	for _, p := range in.Paths {
		u, err := ingest.LoadFile(p)
		if err != nil {
			out.Failed = append(out.Failed, IngestFailure{Name: filepath.Base(p), Error: err.Error()})
			continue
		}

		uploads = append(uploads, u)
	}

	t.ingestMu.Lock()
	defer t.ingestMu.Unlock()

	res := t.Pipeline.Enqueue(uploads...)
	out.Rejected = append(out.Rejected, res.Rejected...)

	rep, err := t.Pipeline.RunAll(ctx, user.Name, policy)
	if err != nil {
		t.Pipeline.Reset()
		return IngestResult{}, err
	}

	out.Created = ingestedViews(rep.Created)
	out.Replaced = ingestedViews(rep.Replaced)
	out.Skipped = orEmpty(rep.Skipped)

	for _, f := range rep.Failed {
		out.Failed = append(out.Failed, IngestFailure{Name: f.Name, Error: f.Err})
	}

	return out, nil
}

// --- Handlers: titles ---

func (t *tools) listTitles(_ context.Context, _ NoInput) (TitleListResult, error) {
	return TitleListResult{Titles: titleViews(t.Workspace.Titles())}, nil
}

func (t *tools) addTitle(_ context.Context, in NameInput) (TitleView, error) {
	title, err := t.Workspace.AddTitle(in.Name)
	if err != nil {
		return TitleView{}, err
	}

	return TitleView{ID: title.ID, Name: title.Name}, nil
}

func (t *tools) renameTitle(_ context.Context, in RenameInput) (TitleView, error) {
	title, err := t.Workspace.RenameTitle(in.ID, in.Name)
	if err != nil {
		return TitleView{}, err
	}

	return TitleView{ID: title.ID, Name: title.Name}, nil
}

func (t *tools) deleteTitle(_ context.Context, in IDInput) (DeleteResult, error) {
	if err := t.Workspace.DeleteTitle(in.ID); err != nil {
		return DeleteResult{}, err
	}

	return DeleteResult{Deleted: in.ID}, nil
}

func (t *tools) reorderTitles(_ context.Context, in IDsInput) (TitleListResult, error) {
	titles, err := t.Workspace.ReorderTitles(in.IDs)
	if err != nil {
		return TitleListResult{}, err
	}

	return TitleListResult{Titles: titleViews(titles)}, nil
}

func (t *tools) suggestTitles(ctx context.Context, in SuggestInput) (TitleListResult, error) {
	added, err := t.Workspace.SuggestMetadataTitles(ctx, in.Sample, in.Record)
	if err != nil {
		return TitleListResult{}, err
	}

	return TitleListResult{Titles: titleViews(added)}, nil
}

func (t *tools) history(_ context.Context, in HistoryInput) (HistoryResult, error) {
	history := t.Workspace.History()

	out := HistoryResult{Snapshots: make([]SnapshotView, 0, len(history)), Diff: []DiffLineView{}}
	for i, h := range history {
		ref := h.ID
		if ref == "" {
			ref = "#" + strconv.Itoa(i+1)
		}

		out.Snapshots = append(out.Snapshots, SnapshotView{
			Ref:     ref,
			SavedAt: h.SavedAt.UTC().Format(time.RFC3339),
			Titles:  models.TitleNames(h.MetadataTitles),
		})
	}

	if in.From == "" {
		return out, nil
	}

	lines, err := t.Workspace.DiffHistory(in.From, in.To)
	if err != nil {
		return HistoryResult{}, err
	}

	for _, l := range lines {
		out.Diff = append(out.Diff, DiffLineView{Op: string(l.Op), Name: l.Name})
	}

	return out, nil
}

func (t *tools) autosaveStatus(_ context.Context, _ NoInput) (AutosaveResult, error) {
	if t.Autosave == nil {
		return AutosaveResult{Status: string(autosave.StatusIdle)}, nil
	}

	return AutosaveResult{Status: string(t.Autosave.Status()), Unsaved: t.Autosave.HasUnsavedChanges()}, nil
}

// --- Handlers: users ---

func (t *tools) listUsers(_ context.Context, _ NoInput) (UserListResult, error) {
	users := t.Workspace.Users()

	out := UserListResult{Users: make([]string, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, u.Name)
	}

	return out, nil
}

func (t *tools) addUser(ctx context.Context, in NameInput) (UserListResult, error) {
	if _, err := t.Workspace.AddUser(in.Name); err != nil {
		return UserListResult{}, err
	}

	return t.listUsers(ctx, NoInput{})
}

func (t *tools) deleteUser(ctx context.Context, in NameInput) (UserListResult, error) {
	if err := t.Workspace.DeleteUser(in.Name); err != nil {
		return UserListResult{}, err
	}

	return t.listUsers(ctx, NoInput{})
}

// --- Handlers: backup and export ---

func (t *tools) backup(_ context.Context, in DirInput) (PathResult, error) {
	path, err := t.Workspace.WriteBackup(in.Dir)
	if err != nil {
		return PathResult{}, err
	}

	return PathResult{Path: path}, nil
}

func (t *tools) merge(_ context.Context, in PathInput) (reconcile.Summary, error) {
	return t.Workspace.MergeFile(in.Path)
}

func (t *tools) restore(_ context.Context, in PathInput) (RestoreResult, error) {
	if err := t.Workspace.RestoreFile(in.Path); err != nil {
		return RestoreResult{}, err
	}

	return RestoreResult{Files: len(t.Workspace.Files()), MetadataTitles: len(t.Workspace.Titles())}, nil
}

func (t *tools) export(_ context.Context, in ExportInput) (ExportResult, error) {
	format, err := export.ParseFormat(in.Format)
	if err != nil {
		return ExportResult{}, err
	}

	files := export.Select(t.Workspace.Files(), in.IDs)

	if format == export.FormatMarkdown {
		paths, err := export.MarkdownDir(in.Dir, files)
		if err != nil {
			return ExportResult{}, err
		}

		return ExportResult{Format: string(format), Files: len(files), Paths: paths}, nil
	}

	path, err := export.WriteFile(in.Dir, format, files, t.Workspace.Titles(), t.Clock.Now())
	if err != nil {
		return ExportResult{}, err
	}

	return ExportResult{Format: string(format), Files: len(files), Paths: []string{path}}, nil
}
