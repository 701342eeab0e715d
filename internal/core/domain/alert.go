package domain

import (
	"errors"
	"time"
)

// Alert types. NEW_MATCH fires when a record first satisfies a watchlist
// query; UPDATED_MATCH when an already-matching record changes and still
// matches.
const (
	AlertNewMatch     = "NEW_MATCH"
	AlertUpdatedMatch = "UPDATED_MATCH"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Alert links a record to the watchlist that matched it. The watchlist name
// is denormalized so alerts stay displayable after the watchlist is deleted.
type Alert struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"cve_id"`
	WatchlistID   string    `json:"watchlist_id"`
	WatchlistName string    `json:"watchlist_name"`
	Type          string    `json:"type"`
	CreatedAt     time.Time `json:"created_at"`
	Read          bool      `json:"read"`
}
