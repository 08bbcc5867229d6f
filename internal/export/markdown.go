package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zepposd/docudigitize/internal/models"
	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header of a markdown export. Metadata is a
// yaml.Node so titles keep their order.
type frontmatter struct {
	ID               string     `yaml:"id"`
	OriginalFilename string     `yaml:"original_filename"`
	ContentHash      string     `yaml:"content_hash"`
	UploadedBy       string     `yaml:"uploaded_by"`
	CreatedAt        string     `yaml:"created_at"`
	OriginalLanguage string     `yaml:"original_language"`
	ArchiveStatus    string     `yaml:"archive_status"`
	Metadata         *yaml.Node `yaml:"metadata,omitempty"`
}

// Markdown writes one file as a markdown document with YAML front matter.
func Markdown(w io.Writer, f models.DigitizedFile) error {
	fm := frontmatter{
		ID:               f.ID,
		OriginalFilename: f.OriginalFilename,
		ContentHash:      f.ContentHash,
		UploadedBy:       f.UploadedBy,
		CreatedAt:        f.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		OriginalLanguage: f.OriginalLanguage,
		ArchiveStatus:    string(f.ArchiveStatus),
	}

	if len(f.Metadata) > 0 {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, m := range f.Metadata {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.Name},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.Value},
			)
		}

		fm.Metadata = node
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(fm); err != nil {
		return fmt.Errorf("encoding front matter: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding front matter: %w", err)
	}

	var doc strings.Builder

	doc.WriteString("---\n")
	doc.Write(buf.Bytes())
	doc.WriteString("---\n\n")
	doc.WriteString("# " + f.OriginalFilename + "\n\n")
	doc.WriteString("## Σύνοψη\n\n" + f.Summary + "\n\n")

	if f.TranslationEn != "" {
		doc.WriteString("## Μετάφραση (Αγγλικά)\n\n" + f.TranslationEn + "\n\n")
	}

	if f.TranslationGr != "" {
		doc.WriteString("## Μετάφραση (Ελληνικά)\n\n" + f.TranslationGr + "\n\n")
	}

	doc.WriteString("## Πρωτότυπο Κείμενο\n\n" + f.OCRText + "\n")

	if _, err := io.WriteString(w, doc.String()); err != nil {
		return fmt.Errorf("writing markdown: %w", err)
	}

	return nil
}

// MarkdownDir writes one markdown document per file into dir, named
// after the original filename, and returns the paths written.
func MarkdownDir(dir string, files []models.DigitizedFile) ([]string, error) {
	if len(files) == 0 {
		return nil, ErrNothingToExport
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	used := make(map[string]int)
	paths := make([]string, 0, len(files))

	for _, f := range files {
		name := markdownName(f.OriginalFilename)
		if n := used[name]; n > 0 {
			name = strings.TrimSuffix(name, ".md") + fmt.Sprintf("-%d.md", n+1)
		}

		used[markdownName(f.OriginalFilename)]++

		var buf bytes.Buffer
		if err := Markdown(&buf, f); err != nil {
			return paths, err
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", name, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// markdownName turns an upload name into a safe markdown file name.
func markdownName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		if r < 0x20 {
			return -1
		}

		return r
	}, base)

	if base == "" || base == "." || base == ".." {
		base = "document"
	}

	return base + ".md"
}
