package models

import "time"

// MetadataTitle is a metadata field definition. Files store values under
// the title's Name at capture time, not under its ID.
type MetadataTitle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MetadataRawInput is a text sample that was fed to the title suggester.
type MetadataRawInput struct {
	ID         string    `json:"id"`
	PastedText string    `json:"pastedText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MetadataSettingsSnapshot is a point-in-time copy of the title list.
// ID is assigned by this program; snapshots from older backups have none.
type MetadataSettingsSnapshot struct {
	ID             string          `json:"id,omitempty"`
	SavedAt        time.Time       `json:"savedAt"`
	MetadataTitles []MetadataTitle `json:"metadataTitles"`
}

// TitleNames returns the names of titles in order.
func TitleNames(titles []MetadataTitle) []string {
	names := make([]string, 0, len(titles))
	for _, t := range titles {
		names = append(names, t.Name)
	}

	return names
}

// CloneTitles copies a title list.
func CloneTitles(titles []MetadataTitle) []MetadataTitle {
	if titles == nil {
		return nil
	}

	return append([]MetadataTitle{}, titles...)
}

// User is identified by name, compared case-insensitively.
type User struct {
	Name string `json:"name"`
}
