package ports

import (
	"context"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// Enrichment carries the KEV catalog and EPSS scores loaded from the
// mirror alongside the record files.
type Enrichment struct {
	KEV  map[string]bool
	EPSS map[string]float64
}

// SyncResult is the outcome of one mirror synchronization.
type SyncResult struct {
	Changes    []domain.Change
	Revision   string
	Enrichment Enrichment
}

// FeedSource mirrors the external record source and reports which logical
// records changed since the last committed revision.
type FeedSource interface {
	// Sync fetches the source. In bulk mode (or on first run) every record
	// file is reported as added; otherwise only the delta since the last
	// committed revision is returned.
	Sync(ctx context.Context, bulk bool) (*SyncResult, error)

	// ReadRecord returns the raw bytes of a record file inside the mirror.
	ReadRecord(path string) ([]byte, error)

	// Commit persists the revision after a pass finishes successfully, so
	// an interrupted run recomputes from the last committed point.
	Commit(revision string) error
}

// Normalizer converts one raw record into its canonical form. A returned
// *feed.ParseError marks the record malformed without failing the batch.
type Normalizer interface {
	Normalize(raw []byte, enrich Enrichment) (*domain.VulnerabilityRecord, error)
}
