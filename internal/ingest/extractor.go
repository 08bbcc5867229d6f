package ingest

//go:generate mockgen -source=extractor.go -destination=mock_extractor.go -package=ingest

import (
	"context"

	"github.com/zepposd/docudigitize/internal/models"
)

// ExtractRequest is one page sent to the extraction collaborator.
type ExtractRequest struct {
	Data     []byte
	MIMEType string
	// Titles are the metadata field names to fill, in display order.
	Titles []string
}

// Extractor turns a scanned page into text, summary and metadata. Errors
// wrap apperrors.ErrAuth when the credentials are rejected and
// apperrors.ErrService for any other failure.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*models.Extraction, error)
}
