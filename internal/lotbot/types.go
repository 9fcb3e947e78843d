// Package lotbot defines core types shared across subsystems.
package lotbot

import "time"

// Coordinates is a geographic point resolved from a street address.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Property represents one parcel record tracked by the bot.
type Property struct {
	// PIN is the parcel identification number, the natural primary key.
	PIN         string       `json:"pin"`
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Posted      bool         `json:"posted"`
	PostedAt    *time.Time   `json:"posted_at,omitempty"`
	ErrorCount  int          `json:"error_count"`
	LastError   string       `json:"last_error,omitempty"`
}

// MaxErrors is the number of recorded failures after which a property
// is considered permanently failed and never offered again.
const MaxErrors = 3

// PostHistoryEntry is the append-only record of one successful publish.
type PostHistoryEntry struct {
	PIN       string    `json:"pin"`
	PostedAt  time.Time `json:"posted_at"`
	PostID    string    `json:"post_id"`
	ImagePath string    `json:"image_path"`
}

// Statistics summarizes the processing state of the whole store.
type Statistics struct {
	Total             int `json:"total"`
	Posted            int `json:"posted"`
	PermanentlyFailed int `json:"permanently_failed"`
	Remaining         int `json:"remaining"`
}
