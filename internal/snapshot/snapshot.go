// Package snapshot encodes and decodes workspace backup files.
//
// A backup is a JSON envelope {version, createdAt, data}. Only version 1
// exists. Every collection under data is optional on input and always
// present on output; the legacy classification collections are carried
// through unchanged so older readers can still open new backups.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/state"
)

// Version is the only backup format version this build reads and writes.
const Version = 1

// Backup is the envelope written to disk.
type Backup struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Data      Data      `json:"data"`

	// InvalidTimestamps counts item timestamps Decode could not parse and
	// left as the zero time.
	InvalidTimestamps int `json:"-"`
}

// Data is the backup payload. Field order follows the format produced by
// earlier releases.
type Data struct {
	Files                     []models.DigitizedFile              `json:"files"`
	Categories                []models.Category                   `json:"categories"`
	ClassificationGoal        string                              `json:"classificationGoal"`
	CategoryRawInputs         []models.CategoryRawInput           `json:"categoryRawInputs"`
	CategorySettingsHistory   []models.CategorySettingsSnapshot   `json:"categorySettingsHistory"`
	ClassificationGoalHistory []models.ClassificationGoalSnapshot `json:"classificationGoalHistory"`
	MetadataTitles            []models.MetadataTitle              `json:"metadataTitles"`
	MetadataRawInputs         []models.MetadataRawInput           `json:"metadataRawInputs"`
	MetadataSettingsHistory   []models.MetadataSettingsSnapshot   `json:"metadataSettingsHistory"`
}

// Encode builds a backup of c taken at now. Files whose archive status is
// not keep are left out; every other collection is copied unfiltered.
func Encode(c state.Contents, now time.Time) Backup {
	files := make([]models.DigitizedFile, 0, len(c.Files))
	for _, f := range c.Files {
		if f.Kept() {
			files = append(files, f.Clone())
		}
	}

	data := Data{
		Files:                     files,
		Categories:                c.Categories,
		ClassificationGoal:        c.ClassificationGoal,
		CategoryRawInputs:         c.CategoryRawInputs,
		CategorySettingsHistory:   c.CategorySettingsHistory,
		ClassificationGoalHistory: c.ClassificationGoalHistory,
		MetadataTitles:            c.MetadataTitles,
		MetadataRawInputs:         c.MetadataRawInputs,
		MetadataSettingsHistory:   c.MetadataSettingsHistory,
	}
	data.normalize()

	return Backup{
		Version:   Version,
		CreatedAt: now.UTC(),
		Data:      data,
	}
}

// Marshal renders b as indented JSON.
func Marshal(b Backup) ([]byte, error) {
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}

	return out, nil
}

// Decode parses a backup file. It fails with apperrors.ErrInvalidFormat
// when raw is not JSON, the version is not 1, or data is missing. Absent
// collections decode as empty ones; unknown fields are ignored. An item
// timestamp that is empty or not RFC 3339 decodes as the zero time.
func Decode(raw []byte) (*Backup, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", apperrors.ErrInvalidFormat)
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", apperrors.ErrInvalidFormat)
	}

	version := root.Get("version")
	if version.Type != gjson.Number || version.Num != Version {
		return nil, fmt.Errorf("%w: unsupported version %s", apperrors.ErrInvalidFormat, versionText(version))
	}

	payload := root.Get("data")
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: missing data", apperrors.ErrInvalidFormat)
	}

	body, invalid, err := clearBadTimestamps(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidFormat, err)
	}

	var data Data
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidFormat, err)
	}

	data.normalize()

	b := &Backup{Version: Version, Data: data, InvalidTimestamps: invalid}

	// createdAt is informational; a malformed value does not reject the file.
	if t, err := time.Parse(time.RFC3339Nano, root.Get("createdAt").String()); err == nil {
		b.CreatedAt = t
	}

	return b, nil
}

// timestampFields maps each collection under data to its time field.
var timestampFields = map[string]string{
	"files":                     "createdAt",
	"categoryRawInputs":         "createdAt",
	"categorySettingsHistory":   "savedAt",
	"classificationGoalHistory": "savedAt",
	"metadataRawInputs":         "createdAt",
	"metadataSettingsHistory":   "savedAt",
}

// clearBadTimestamps returns payload with every unparseable item timestamp
// replaced by null, and how many it replaced. payload is returned as is
// when nothing needs clearing.
func clearBadTimestamps(payload gjson.Result) ([]byte, int, error) {
	bad := 0

	for coll, field := range timestampFields {
		payload.Get(coll).ForEach(func(_, item gjson.Result) bool {
			if v := item.Get(field); v.Exists() && !validTime(v.Raw) {
				bad++
			}

			return true
		})
	}

	if bad == 0 {
		return []byte(payload.Raw), 0, nil
	}

	var colls map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload.Raw), &colls); err != nil {
		return nil, 0, err
	}

	for coll, field := range timestampFields {
		raw, ok := colls[coll]
		if !ok {
			continue
		}

		var items []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			// Left for the typed decode to report.
			continue
		}

		for _, it := range items {
			if v, ok := it[field]; ok && !validTime(string(v)) {
				it[field] = json.RawMessage("null")
			}
		}

		fixed, err := json.Marshal(items)
		if err != nil {
			return nil, 0, err
		}

		colls[coll] = fixed
	}

	body, err := json.Marshal(colls)
	if err != nil {
		return nil, 0, err
	}

	return body, bad, nil
}

// validTime reports whether raw decodes into a time.Time.
func validTime(raw string) bool {
	var t time.Time
	return t.UnmarshalJSON([]byte(raw)) == nil
}

func versionText(v gjson.Result) string {
	if !v.Exists() {
		return "(missing)"
	}

	return v.Raw
}

// FileName returns the download name for a backup taken at now, for
// example DocuDigitize-Backup-2024-01-15T10-30-00-000Z.json.
func FileName(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)

	return "DocuDigitize-Backup-" + ts + ".json"
}

// normalize replaces absent collections with empty ones and fills
// per-item defaults.
func (d *Data) normalize() {
	d.Files = orEmpty(d.Files)
	for i := range d.Files {
		normalizeFile(&d.Files[i])
	}

	d.Categories = orEmpty(d.Categories)
	for i := range d.Categories {
		d.Categories[i].Subcategories = orEmpty(d.Categories[i].Subcategories)
	}

	d.CategoryRawInputs = orEmpty(d.CategoryRawInputs)
	d.CategorySettingsHistory = orEmpty(d.CategorySettingsHistory)
	d.ClassificationGoalHistory = orEmpty(d.ClassificationGoalHistory)
	d.MetadataTitles = orEmpty(d.MetadataTitles)
	d.MetadataRawInputs = orEmpty(d.MetadataRawInputs)

	d.MetadataSettingsHistory = orEmpty(d.MetadataSettingsHistory)
	for i := range d.MetadataSettingsHistory {
		d.MetadataSettingsHistory[i].MetadataTitles = orEmpty(d.MetadataSettingsHistory[i].MetadataTitles)
	}
}

func normalizeFile(f *models.DigitizedFile) {
	if f.Metadata == nil {
		f.Metadata = models.Metadata{}
	}

	f.Categories = orEmpty(f.Categories)

	// Files written before the archive feature carry no status.
	if f.ArchiveStatus == "" {
		f.ArchiveStatus = models.ArchiveKeep
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
