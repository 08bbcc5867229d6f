package models

// Extraction is what the AI collaborator returns for one scanned page.
// Metadata is keyed by the title names that were requested.
type Extraction struct {
	OCRText          string   `json:"ocrText"`
	Summary          string   `json:"summary"`
	OriginalLanguage string   `json:"originalLanguage"`
	Metadata         Metadata `json:"metadata"`
}

// Clone returns a deep copy of e.
func (e Extraction) Clone() Extraction {
	e.Metadata = e.Metadata.Clone()
	return e
}
