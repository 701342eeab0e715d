package domain

import (
	"errors"
	"time"
)

// Domain errors for watchlist management.
var (
	ErrWatchlistNotFound = errors.New("watchlist not found")
	ErrWatchlistName     = errors.New("watchlist name must not be empty")
)

// Watchlist is a saved query whose matching record set is tracked across
// ingestion passes to generate alerts. LastRun and MatchCount are mutated
// only by the watchlist evaluator, exactly once per ingestion pass.
type Watchlist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Query      Query     `json:"query"` // sort/pagination fields unused
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	LastRun    time.Time `json:"last_run,omitempty"`
	MatchCount int       `json:"match_count"`
}

// Validate checks user-supplied fields before persisting.
func (w *Watchlist) Validate() error {
	if w.Name == "" {
		return ErrWatchlistName
	}
	return w.Query.Validate()
}
