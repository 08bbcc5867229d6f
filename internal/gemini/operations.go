package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// searchOCRRunes is how much OCR text each document contributes to a
	// smart search prompt.
	searchOCRRunes = 1000
	// languageSampleRunes is how much text language detection looks at.
	languageSampleRunes = 2000
)

var _ ingest.Extractor = (*Client)(nil)

// Extract runs OCR, language identification, a Greek summary and
// metadata extraction on one scanned page. The returned metadata holds
// exactly the requested titles, in request order, with "" where nothing
// was found.
func (c *Client) Extract(ctx context.Context, req ingest.ExtractRequest) (*models.Extraction, error) {
	var metadataTask string
	if len(req.Titles) > 0 {
		metadataTask = "4. Metadata extraction: from the extracted text, identify values for the following metadata fields: " +
			strings.Join(req.Titles, ", ") + ". If a value for a field is not found, return an empty string for it.\n"
	}

	prompt := "Analyze the attached document and perform the following tasks based on its content:\n" +
		"1. OCR: extract all text accurately. Preserve the original language.\n" +
		"2. Language identification: identify the primary language of the text and name it in Greek (e.g. \"Ελληνικά\", \"Γερμανικά\", \"Αγγλικά\").\n" +
		"3. Summary: write a concise summary in Greek, no longer than 3-4 sentences.\n" +
		metadataTask +
		"Return a single JSON object conforming to the provided schema. Ensure all requested fields are present."

	s := &schema{
		Type: "OBJECT",
		Properties: map[string]*schema{
			"ocrText": {Type: "STRING", Description: "The full text extracted from the document."},
			"summary": {Type: "STRING", Description: "A concise summary of the text in Greek."},
			"originalLanguage": {
				Type:        "STRING",
				Description: "The primary language of the text, written in Greek (e.g. Ελληνικά, Γερμανικά, Αγγλικά). If unknown, use '" + models.LanguageUnknown + "'.",
			},
		},
		PropertyOrdering: []string{"ocrText", "summary", "originalLanguage"},
	}

	if len(req.Titles) > 0 {
		props := make(map[string]*schema, len(req.Titles))
		for _, title := range req.Titles {
			props[title] = &schema{Type: "STRING", Description: "The extracted value for " + title + "."}
		}

		s.Properties["metadata"] = &schema{
			Type:             "OBJECT",
			Description:      "Extracted metadata values keyed by the requested metadata titles.",
			Properties:       props,
			PropertyOrdering: req.Titles,
		}
		s.PropertyOrdering = append(s.PropertyOrdering, "metadata")
	}

	parts := []part{
		{InlineData: &inlineData{MIMEType: req.MIMEType, Data: base64.StdEncoding.EncodeToString(req.Data)}},
		{Text: prompt},
	}

	text, err := c.generate(ctx, c.model, jsonRequest(parts, s))
	if err != nil {
		return nil, fmt.Errorf("extracting document: %w", err)
	}

	var raw models.Extraction
	if err := decodeJSON(c.model, text, &raw); err != nil {
		return nil, fmt.Errorf("extracting document: %w", err)
	}

	out := &models.Extraction{
		OCRText:          raw.OCRText,
		Summary:          raw.Summary,
		OriginalLanguage: strings.TrimSpace(raw.OriginalLanguage),
		Metadata:         models.Metadata{},
	}

	if out.OriginalLanguage == "" {
		out.OriginalLanguage = models.LanguageUnknown
	}

	for _, title := range req.Titles {
		v, _ := raw.Metadata.Get(title)
		out.Metadata = out.Metadata.Set(title, v)
	}

	c.logger.Info("document extracted",
		slog.String("mime_type", req.MIMEType),
		slog.Int("ocr_chars", utf8.RuneCountInString(out.OCRText)),
		slog.String("language", out.OriginalLanguage),
	)

	return out, nil
}

// Translate returns text translated into target.
func (c *Client) Translate(ctx context.Context, text string, target Language) (string, error) {
	if !target.Valid() {
		return "", fmt.Errorf("unsupported translation target %q", target)
	}

	prompt := fmt.Sprintf("Translate the following text to %s. Return only the translated text. Text: \"\"\"%s\"\"\"", target, text)

	out, err := c.generate(ctx, c.model, textRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("translating to %s: %w", target, err)
	}

	return strings.TrimSpace(out), nil
}

// SuggestTitles proposes metadata titles, in Greek, for documents like
// sample. Blank suggestions are dropped.
func (c *Client) SuggestTitles(ctx context.Context, sample string) ([]string, error) {
	prompt := "Based on the following sample text, identify and suggest relevant metadata titles or fields.\n" +
		"For example, from an invoice you might suggest \"Invoice Number\", \"Date\", \"Total Amount\", \"Vendor Name\".\n" +
		"The output must be a JSON array of strings, each a suggested metadata title in Greek.\n\n" +
		"Sample text:\n---\n" + sample + "\n---\n\nReturn ONLY the JSON array."

	text, err := c.generate(ctx, c.model, jsonRequest([]part{{Text: prompt}}, &schema{
		Type:  "ARRAY",
		Items: &schema{Type: "STRING"},
	}))
	if err != nil {
		return nil, fmt.Errorf("suggesting titles: %w", err)
	}

	var raw []string
	if err := decodeJSON(c.model, text, &raw); err != nil {
		return nil, fmt.Errorf("suggesting titles: %w", err)
	}

	titles := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}

	return titles, nil
}

// DocumentFor condenses f for a smart search prompt.
func DocumentFor(f models.DigitizedFile) Document {
	return Document{
		ID:               f.ID,
		Filename:         f.OriginalFilename,
		Summary:          f.Summary,
		OCRText:          truncateRunes(f.OCRText, searchOCRRunes),
		OriginalLanguage: f.OriginalLanguage,
	}
}

// SmartSearch asks the search model which documents match query and why.
// The caller is responsible for discarding ids it does not know.
func (c *Client) SmartSearch(ctx context.Context, query string, docs []Document) ([]Match, error) {
	if docs == nil {
		docs = []Document{}
	}

	listing, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encoding documents: %w", err)
	}

	prompt := "You are an intelligent document search assistant.\n" +
		fmt.Sprintf("A user has provided the following query: %q\n\n", query) +
		"Search the following documents and identify the ones most relevant to the query. " +
		"Consider the filename, summary, extracted text (ocrText) and originalLanguage.\n\n" +
		"Documents:\n---\n" + string(listing) + "\n---\n\n" +
		"Return a JSON array of objects. Each object must contain the 'id' of a matching document and a brief 'reason' (in Greek) explaining why it matches. " +
		"Only return strong matches. If nothing matches, return an empty array."

	text, err := c.generate(ctx, c.searchModel, jsonRequest([]part{{Text: prompt}}, &schema{
		Type: "ARRAY",
		Items: &schema{
			Type: "OBJECT",
			Properties: map[string]*schema{
				"id":     {Type: "STRING"},
				"reason": {Type: "STRING"},
			},
			PropertyOrdering: []string{"id", "reason"},
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("smart search: %w", err)
	}

	var matches []Match
	if err := decodeJSON(c.searchModel, text, &matches); err != nil {
		return nil, fmt.Errorf("smart search: %w", err)
	}

	return matches, nil
}

// DetectLanguage names the primary language of text in Greek, with an
// initial capital and the rest lowercase. It answers "Άγνωστη" when the
// model gives nothing.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	prompt := "Analyze the following text and determine its primary language. Return your answer in Greek.\n\n" +
		"Text to analyze: \"\"\"" + truncateRunes(text, languageSampleRunes) + "\"\"\""

	out, err := c.generate(ctx, c.model, jsonRequest([]part{{Text: prompt}}, &schema{
		Type: "OBJECT",
		Properties: map[string]*schema{
			"language": {
				Type:        "STRING",
				Description: "The name of the language in Greek (e.g. \"Ελληνικά\", \"Γερμανικά\"). If unknown, use \"" + models.LanguageUnknown + "\".",
			},
		},
	}))
	if err != nil {
		return "", fmt.Errorf("detecting language: %w", err)
	}

	var res struct {
		Language string `json:"language"`
	}
	if err := decodeJSON(c.model, out, &res); err != nil {
		return "", fmt.Errorf("detecting language: %w", err)
	}

	return NormalizeLanguage(res.Language), nil
}

// NormalizeLanguage trims label and returns it with an initial capital and
// the remainder lowercase. A blank label becomes "Άγνωστη".
func NormalizeLanguage(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.LanguageUnknown
	}

	first, size := utf8.DecodeRuneInString(label)

	return string(unicode.ToUpper(first)) + cases.Lower(language.Und).String(label[size:])
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
