package mcpserver

import (
	"time"

	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/models"
)

// The SDK validates structured output against a schema inferred from the
// Go type, so results use plain views: ordered metadata as a list of
// fields, timestamps as RFC 3339 strings and slices that are never nil.

// MetadataField is one metadata value.
type MetadataField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FileSummary is a file without its long text fields.
type FileSummary struct {
	ID               string          `json:"id"`
	OriginalFilename string          `json:"original_filename"`
	UploadedBy       string          `json:"uploaded_by"`
	CreatedAt        string          `json:"created_at"`
	OriginalLanguage string          `json:"original_language"`
	ArchiveStatus    string          `json:"archive_status"`
	Metadata         []MetadataField `json:"metadata"`
}

// FileView is a file in full.
type FileView struct {
	FileSummary
	ContentHash   string `json:"content_hash"`
	Summary       string `json:"summary"`
	OCRText       string `json:"ocr_text"`
	TranslationEn string `json:"translation_en"`
	TranslationGr string `json:"translation_gr"`
}

// FileListResult is the response for docs_list_files.
type FileListResult struct {
	TotalFiles int           `json:"total_files"`
	Files      []FileSummary `json:"files"`
}

// SmartHitView is one smart search hit.
type SmartHitView struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// SmartSearchResult is the response for docs_smart_search.
type SmartSearchResult struct {
	Query string         `json:"query"`
	Hits  []SmartHitView `json:"hits"`
}

// DeleteResult acknowledges a delete.
type DeleteResult struct {
	Deleted string `json:"deleted"`
}

// IngestFailure is a file that could not be ingested.
type IngestFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// IngestedFile pairs an upload with the file it was stored as.
type IngestedFile struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// IngestResult is the response for docs_ingest.
type IngestResult struct {
	Created  []IngestedFile  `json:"created"`
	Replaced []IngestedFile  `json:"replaced"`
	Skipped  []string        `json:"skipped"`
	Rejected []string        `json:"rejected"`
	Failed   []IngestFailure `json:"failed"`
}

// TitleView is a metadata title.
type TitleView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TitleListResult lists titles.
type TitleListResult struct {
	Titles []TitleView `json:"titles"`
}

// SnapshotView is one saved title settings snapshot. Ref is the value to
// pass as from or to when diffing.
type SnapshotView struct {
	Ref     string   `json:"ref"`
	SavedAt string   `json:"saved_at"`
	Titles  []string `json:"titles"`
}

// DiffLineView is one line of a title diff.
type DiffLineView struct {
	Op   string `json:"op"`
	Name string `json:"name"`
}

// HistoryResult is the response for titles_history.
type HistoryResult struct {
	Snapshots []SnapshotView `json:"snapshots"`
	Diff      []DiffLineView `json:"diff"`
}

// AutosaveResult is the response for autosave_status.
type AutosaveResult struct {
	Status  string `json:"status"`
	Unsaved bool   `json:"unsaved"`
}

// UserListResult lists users.
type UserListResult struct {
	Users []string `json:"users"`
}

// PathResult reports a written file.
type PathResult struct {
	Path string `json:"path"`
}

// ExportResult reports the files an export wrote.
type ExportResult struct {
	Format string   `json:"format"`
	Files  int      `json:"files"`
	Paths  []string `json:"paths"`
}

// RestoreResult reports the workspace size after a restore.
type RestoreResult struct {
	Files          int `json:"files"`
	MetadataTitles int `json:"metadata_titles"`
}

func metadataView(m models.Metadata) []MetadataField {
	out := make([]MetadataField, 0, len(m))
	for _, f := range m {
		out = append(out, MetadataField{Name: f.Name, Value: f.Value})
	}

	return out
}

func summaryView(f models.DigitizedFile) FileSummary {
	return FileSummary{
		ID:               f.ID,
		OriginalFilename: f.OriginalFilename,
		UploadedBy:       f.UploadedBy,
		CreatedAt:        f.CreatedAt.UTC().Format(time.RFC3339),
		OriginalLanguage: f.OriginalLanguage,
		ArchiveStatus:    string(f.ArchiveStatus),
		Metadata:         metadataView(f.Metadata),
	}
}

func fileView(f models.DigitizedFile) FileView {
	return FileView{
		FileSummary:   summaryView(f),
		ContentHash:   f.ContentHash,
		Summary:       f.Summary,
		OCRText:       f.OCRText,
		TranslationEn: f.TranslationEn,
		TranslationGr: f.TranslationGr,
	}
}

func titleViews(titles []models.MetadataTitle) []TitleView {
	out := make([]TitleView, 0, len(titles))
	for _, t := range titles {
		out = append(out, TitleView{ID: t.ID, Name: t.Name})
	}

	return out
}

func ingestedViews(done []ingest.Committed) []IngestedFile {
	out := make([]IngestedFile, 0, len(done))
	for _, c := range done {
		out = append(out, IngestedFile{Name: c.Name, ID: c.ID})
	}

	return out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
