package ports

import (
	"context"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// RecordStats aggregates dashboard counters over the record store.
type RecordStats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	KEVCount   int            `json:"kev_count"`
}

// RecordStore is the single source of truth for normalized vulnerability
// records and the search index over them.
type RecordStore interface {
	// Upsert writes a normalized record, returning the three-way outcome
	// and, for updates, the prior stored state.
	Upsert(ctx context.Context, rec *domain.VulnerabilityRecord) (domain.UpsertOutcome, *domain.VulnerabilityRecord, error)

	// Search answers a filtered/sorted/paginated query. The returned total
	// reflects the full filtered set, independent of pagination.
	Search(ctx context.Context, q *domain.Query) ([]domain.VulnerabilityRecord, int, error)

	// Count returns the size of the filtered set without fetching rows.
	Count(ctx context.Context, q *domain.Query) (int, error)

	// Get returns a record by id, or nil when absent.
	Get(ctx context.Context, id string) (*domain.VulnerabilityRecord, error)

	// Tombstone marks a record REJECTED when it disappears upstream.
	Tombstone(ctx context.Context, id string) error

	Stats(ctx context.Context) (*RecordStats, error)
	Close() error
}
