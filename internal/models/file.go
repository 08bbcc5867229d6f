// Package models defines the workspace entities shared across internal
// packages. JSON field names match the backup file format.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ArchiveStatus controls whether a file is included in backups.
type ArchiveStatus string

const (
	ArchiveKeep    ArchiveStatus = "keep"
	ArchiveExclude ArchiveStatus = "exclude"
)

// Valid reports whether s is one of the known statuses.
func (s ArchiveStatus) Valid() bool {
	return s == ArchiveKeep || s == ArchiveExclude
}

// LanguageUnknown is the label used when no language could be detected.
const LanguageUnknown = "Άγνωστη"

// LanguageError marks a file whose language re-evaluation failed.
const LanguageError = "Σφάλμα"

// FileCategory is a legacy category assignment kept so old backups
// round-trip without loss.
type FileCategory struct {
	CategoryID    string `json:"categoryId"`
	SubcategoryID string `json:"subcategoryId,omitempty"`
}

// DigitizedFile is a scanned document and everything extracted from it.
// ContentHash is the duplicate-detection key, ID is the identity.
type DigitizedFile struct {
	ID                 string         `json:"id"`
	OriginalFilename   string         `json:"originalFilename"`
	ContentHash        string         `json:"contentHash"`
	OCRText            string         `json:"ocrText"`
	Summary            string         `json:"summary"`
	TranslationEn      string         `json:"translationEn,omitempty"`
	TranslationGr      string         `json:"translationGr,omitempty"`
	OriginalLanguage   string         `json:"originalLanguage"`
	Categories         []FileCategory `json:"categories"`
	Metadata           Metadata       `json:"metadata"`
	ClassificationGoal string         `json:"classificationGoal"`
	CreatedAt          time.Time      `json:"createdAt"`
	APICalls           int            `json:"apiCalls"`
	UploadedBy         string         `json:"uploadedBy"`
	ArchiveStatus      ArchiveStatus  `json:"archiveStatus"`
}

// Kept reports whether the file is included in backups.
func (f DigitizedFile) Kept() bool {
	return f.ArchiveStatus == ArchiveKeep
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (f DigitizedFile) Clone() DigitizedFile {
	out := f
	if f.Categories != nil {
		out.Categories = append([]FileCategory{}, f.Categories...)
	}

	out.Metadata = f.Metadata.Clone()

	return out
}

// FilePatch carries a partial update for a DigitizedFile. Nil fields are
// left unchanged.
type FilePatch struct {
	OriginalFilename *string        `json:"originalFilename,omitempty"`
	ContentHash      *string        `json:"contentHash,omitempty"`
	OCRText          *string        `json:"ocrText,omitempty"`
	Summary          *string        `json:"summary,omitempty"`
	TranslationEn    *string        `json:"translationEn,omitempty"`
	TranslationGr    *string        `json:"translationGr,omitempty"`
	OriginalLanguage *string        `json:"originalLanguage,omitempty"`
	Metadata         Metadata       `json:"metadata,omitempty"`
	APICalls         *int           `json:"apiCalls,omitempty"`
	UploadedBy       *string        `json:"uploadedBy,omitempty"`
	ArchiveStatus    *ArchiveStatus `json:"archiveStatus,omitempty"`
}

// Apply merges the non-nil fields of p into f.
func (p FilePatch) Apply(f *DigitizedFile) {
	if p.OriginalFilename != nil {
		f.OriginalFilename = *p.OriginalFilename
	}

	if p.ContentHash != nil {
		f.ContentHash = *p.ContentHash
	}

	if p.OCRText != nil {
		f.OCRText = *p.OCRText
	}

	if p.Summary != nil {
		f.Summary = *p.Summary
	}

	if p.TranslationEn != nil {
		f.TranslationEn = *p.TranslationEn
	}

	if p.TranslationGr != nil {
		f.TranslationGr = *p.TranslationGr
	}

	if p.OriginalLanguage != nil {
		f.OriginalLanguage = *p.OriginalLanguage
	}

	if p.Metadata != nil {
		f.Metadata = p.Metadata.Clone()
	}

	if p.APICalls != nil {
		f.APICalls = *p.APICalls
	}

	if p.UploadedBy != nil {
		f.UploadedBy = *p.UploadedBy
	}

	if p.ArchiveStatus != nil {
		f.ArchiveStatus = *p.ArchiveStatus
	}
}

// Field is a single metadata value keyed by the title name it was
// captured under.
type Field struct {
	Name  string
	Value string
}

// Metadata is an ordered mapping of field name to value. It encodes as a
// JSON object and keeps key order on both encode and decode.
type Metadata []Field

// Get returns the value stored under name.
func (m Metadata) Get(name string) (string, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}

	return "", false
}

// Set replaces the value under name, appending a new field when absent.
func (m Metadata) Set(name, value string) Metadata {
	for i := range m {
		if m[i].Name == name {
			m[i].Value = value
			return m
		}
	}

	return append(m, Field{Name: name, Value: value})
}

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}

	return append(Metadata{}, m...)
}

// MarshalJSON encodes m as a JSON object in field order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Non-string
// values (numbers, booleans) produced by older extractors are kept as
// their literal JSON text; null becomes an empty string.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	out := Metadata{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata: decoding value for %q: %w", key, err)
		}

		out = out.Set(key, rawToString(raw))
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out

	return nil
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	return string(trimmed)
}
