package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NameKey returns the comparison key for a title or user name. Two names
// collide when their keys are equal. The key is trimmed, NFC-normalized
// and case-folded, so "Σύνοψη", " ΣΎΝΟΨΗ " and a decomposed accent compare
// equal. Inner whitespace is kept as is.
func NameKey(name string) string {
	// cases.Caser is stateful, so one is built per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// NameIndex maps name keys to the first title carrying that key. It is
// built fresh for each add or merge so it never goes stale.
func NameIndex(titles []MetadataTitle) map[string]MetadataTitle {
	idx := make(map[string]MetadataTitle, len(titles))
	for _, t := range titles {
		k := NameKey(t.Name)
		if _, ok := idx[k]; !ok {
			idx[k] = t
		}
	}

	return idx
}
