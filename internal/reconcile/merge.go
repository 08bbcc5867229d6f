// Package reconcile applies decoded backups to the workspace store, either
// additively (Merge) or destructively (Restore).
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/snapshot"
	"github.com/zepposd/docudigitize/internal/state"
)

// Plan lists the items a merge would append to each collection, in the
// order they appear in the backup.
type Plan struct {
	Files                   []models.DigitizedFile
	MetadataTitles          []models.MetadataTitle
	MetadataRawInputs       []models.MetadataRawInput
	MetadataSettingsHistory []models.MetadataSettingsSnapshot

	// Unidentified counts settings snapshots that carried no id and were
	// matched on savedAt and title names instead.
	Unidentified int
}

// Summary returns the per-collection counts of p.
func (p Plan) Summary() Summary {
	return Summary{
		Files:                   len(p.Files),
		MetadataTitles:          len(p.MetadataTitles),
		MetadataRawInputs:       len(p.MetadataRawInputs),
		MetadataSettingsHistory: len(p.MetadataSettingsHistory),
	}
}

// PlanMerge decides which backup items are new relative to live. It does
// no I/O.
//
// Novelty rules:
//   - files: no live file has the same contentHash
//   - metadata titles: no live title has the same name, ignoring case
//   - raw inputs: no live raw input has the same id
//   - settings history: no live snapshot has the same id, or for
//     snapshots without an id, the same savedAt and title names
//
// Items already accepted earlier in the same backup count as live, so a
// backup that repeats an item contributes it once.
//
// An accepted file or title whose id is already taken, live or earlier in
// the plan, gets a fresh id from ids.
func PlanMerge(live state.Contents, data snapshot.Data, ids state.IDGenerator) Plan {
	var p Plan

	hashes := make(map[string]struct{}, len(live.Files))
	fileIDs := make(map[string]struct{}, len(live.Files))
	for _, f := range live.Files {
		hashes[f.ContentHash] = struct{}{}
		fileIDs[f.ID] = struct{}{}
	}

	for _, f := range data.Files {
		if _, ok := hashes[f.ContentHash]; ok {
			continue
		}

		hashes[f.ContentHash] = struct{}{}
		f = f.Clone()
		f.ID = claimID(fileIDs, f.ID, ids)
		p.Files = append(p.Files, f)
	}

	names := models.NameIndex(live.MetadataTitles)
	titleIDs := make(map[string]struct{}, len(live.MetadataTitles))
	for _, t := range live.MetadataTitles {
		titleIDs[t.ID] = struct{}{}
	}

	for _, t := range data.MetadataTitles {
		k := models.NameKey(t.Name)
		if _, ok := names[k]; ok {
			continue
		}

		t.ID = claimID(titleIDs, t.ID, ids)
		names[k] = t
		p.MetadataTitles = append(p.MetadataTitles, t)
	}

	rawIDs := make(map[string]struct{}, len(live.MetadataRawInputs))
	for _, r := range live.MetadataRawInputs {
		rawIDs[r.ID] = struct{}{}
	}

	for _, r := range data.MetadataRawInputs {
		if _, ok := rawIDs[r.ID]; ok {
			continue
		}

		rawIDs[r.ID] = struct{}{}
		p.MetadataRawInputs = append(p.MetadataRawInputs, r)
	}

	history := make(map[string]struct{}, len(live.MetadataSettingsHistory))
	for _, h := range live.MetadataSettingsHistory {
		history[settingsKey(h)] = struct{}{}
	}

	for _, h := range data.MetadataSettingsHistory {
		if h.ID == "" {
			p.Unidentified++
		}

		k := settingsKey(h)
		if _, ok := history[k]; ok {
			continue
		}

		history[k] = struct{}{}
		h.MetadataTitles = models.CloneTitles(h.MetadataTitles)
		p.MetadataSettingsHistory = append(p.MetadataSettingsHistory, h)
	}

	return p
}

// claimID returns id when it is free, or a fresh one otherwise, and marks
// the result as taken.
func claimID(taken map[string]struct{}, id string, ids state.IDGenerator) string {
	for {
		if _, ok := taken[id]; !ok && id != "" {
			taken[id] = struct{}{}
			return id
		}

		id = ids.New()
	}
}

// settingsKey is the merge identity of a settings snapshot. The prefixes
// keep an id from ever colliding with a structural key.
func settingsKey(h models.MetadataSettingsSnapshot) string {
	if h.ID != "" {
		return "id:" + h.ID
	}

	return "at:" + h.SavedAt.UTC().Format(time.RFC3339Nano) + "\x00" + strings.Join(models.TitleNames(h.MetadataTitles), "\x00")
}

// Summary counts what a merge added.
type Summary struct {
	Files                   int `json:"files"`
	MetadataTitles          int `json:"metadataTitles"`
	MetadataRawInputs       int `json:"metadataRawInputs"`
	MetadataSettingsHistory int `json:"metadataSettingsHistory"`
}

// Empty reports whether the merge added nothing.
func (s Summary) Empty() bool {
	return s == Summary{}
}

// String renders the summary shown to the user after a merge.
func (s Summary) String() string {
	if s.Empty() {
		return "Merge complete. No new data was found to add."
	}

	var lines []string

	if s.Files > 0 {
		lines = append(lines, fmt.Sprintf("%d new files", s.Files))
	}

	if s.MetadataTitles > 0 {
		lines = append(lines, fmt.Sprintf("%d new metadata titles", s.MetadataTitles))
	}

	if s.MetadataRawInputs > 0 {
		lines = append(lines, fmt.Sprintf("%d new metadata generation history entries", s.MetadataRawInputs))
	}

	if s.MetadataSettingsHistory > 0 {
		lines = append(lines, fmt.Sprintf("%d new metadata settings history entries", s.MetadataSettingsHistory))
	}

	return "Merge complete! Added:\n- " + strings.Join(lines, "\n- ")
}
