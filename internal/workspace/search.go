package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/models"
	"golang.org/x/text/cases"
)

const defaultMaxResults = 20

// SearchMatch is a single search result.
type SearchMatch struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MatchType string `json:"match_type"`
	Snippet   string `json:"snippet"`
}

// SearchResult is the response for a local search.
type SearchResult struct {
	Query        string        `json:"query"`
	TotalMatches int           `json:"total_matches"`
	Results      []SearchMatch `json:"results"`
}

// SmartHit is a smart search result resolved to a live file.
type SmartHit struct {
	File   models.DigitizedFile `json:"file"`
	Reason string               `json:"reason"`
}

// SmartSearch asks the collaborator which files match query. Hits naming
// a file that does not exist are dropped.
func (w *Workspace) SmartSearch(ctx context.Context, query string) ([]SmartHit, error) {
	files := w.st.Files.All()
	if len(files) == 0 || strings.TrimSpace(query) == "" {
		return []SmartHit{}, nil
	}

	docs := make([]gemini.Document, 0, len(files))
	byID := make(map[string]models.DigitizedFile, len(files))

	for _, f := range files {
		docs = append(docs, gemini.DocumentFor(f))
		byID[f.ID] = f
	}

	matches, err := w.ai.SmartSearch(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("smart search: %w", err)
	}

	hits := make([]SmartHit, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, m := range matches {
		f, ok := byID[m.ID]
		if !ok || seen[m.ID] {
			w.logger.Debug("dropping smart search hit", slog.String("id", m.ID))
			continue
		}

		seen[m.ID] = true
		hits = append(hits, SmartHit{File: f, Reason: m.Reason})
	}

	return hits, nil
}

// Search is the offline search: a case-insensitive substring match over
// filenames, then metadata values, then summaries, then OCR text. Each
// file is reported once, under the first field that matched.
func (w *Workspace) Search(query string, maxResults int) SearchResult {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	res := SearchResult{Query: query, Results: []SearchMatch{}}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))

	if needle == "" {
		return res
	}

	files := w.st.Files.All()
	seen := make(map[string]bool)

	phases := []struct {
		matchType string
		fields    func(f models.DigitizedFile) []string
	}{
		{"filename", func(f models.DigitizedFile) []string { return []string{f.OriginalFilename} }},
		{"metadata", func(f models.DigitizedFile) []string {
			out := make([]string, 0, len(f.Metadata))
			for _, m := range f.Metadata {
				out = append(out, m.Name+": "+m.Value)
			}

			return out
		}},
		{"summary", func(f models.DigitizedFile) []string { return []string{f.Summary} }},
		{"content", func(f models.DigitizedFile) []string { return strings.Split(f.OCRText, "\n") }},
	}

	for _, phase := range phases {
		for _, f := range files {
			if len(res.Results) >= maxResults {
				break
			}

			if seen[f.ID] {
				continue
			}

			for _, text := range phase.fields(f) {
				snippet, ok := matchSnippet(fold, text, needle)
				if !ok {
					continue
				}

				res.Results = append(res.Results, SearchMatch{
					ID:        f.ID,
					Filename:  f.OriginalFilename,
					MatchType: phase.matchType,
					Snippet:   snippet,
				})
				seen[f.ID] = true

				break
			}
		}
	}

	res.TotalMatches = len(res.Results)

	return res
}

// matchSnippet reports whether text contains needle, which is already
// folded, and builds a snippet around the first match. Matching works on
// runes so multi-byte Greek text is never cut mid-character.
func matchSnippet(fold cases.Caser, text, needle string) (string, bool) {
	runes := []rune(text)
	n := utf8.RuneCountInString(needle)

	for i := 0; i+n <= len(runes); i++ {
		if fold.String(string(runes[i:i+n])) == needle {
			return buildSnippet(runes, i, n), true
		}
	}

	return "", false
}

// buildSnippet creates a context snippet around a match, bolding the
// match. start and length are rune offsets.
func buildSnippet(line []rune, start, length int) string {
	const contextRunes = 50

	from := max(start-contextRunes, 0)
	to := min(start+length+contextRunes, len(line))

	prefix := ""
	if from > 0 {
		prefix = "..."
	}

	suffix := ""
	if to < len(line) {
		suffix = "..."
	}

	return prefix + string(line[from:start]) + "**" + string(line[start:start+length]) + "**" + string(line[start+length:to]) + suffix
}
