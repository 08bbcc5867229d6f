package models

import "time"

// The types below belong to the previous classification feature. They are
// stored, exported and restored unchanged so older backups stay readable
// and newer backups stay readable by older builds.

type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

type Subcategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CategoryRawInput struct {
	ID         string    `json:"id"`
	PastedText string    `json:"pastedText"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CategorySettingsSnapshot struct {
	SavedAt    time.Time  `json:"savedAt"`
	Categories []Category `json:"categories"`
}

type ClassificationGoalSnapshot struct {
	ID       string    `json:"id"`
	GoalText string    `json:"goalText"`
	SavedAt  time.Time `json:"savedAt"`
}
