package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"golang.org/x/text/unicode/norm"
)

// acceptedTypes are the scan formats the extractor can read.
var acceptedTypes = []string{"image/png", "image/jpeg", "application/pdf"}

// Upload is one file handed to the pipeline.
type Upload struct {
	Name string
	Data []byte
}

// LoadFile reads the file at path into an Upload named after its base
// name.
func LoadFile(path string) (Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return Upload{Name: filepath.Base(path), Data: data}, nil
}

// DetectType sniffs the content type of data and returns it when it is an
// accepted scan format. The declared file extension is not trusted.
func DetectType(data []byte) (string, error) {
	m := mimetype.Detect(data)
	for _, t := range acceptedTypes {
		if m.Is(t) {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %s (accepted: PNG, JPEG, PDF)", apperrors.ErrUnsupportedType, m.String())
}

// normalizeName NFC-normalizes a filename. macOS file pickers hand over
// decomposed Greek accents.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}
