package domain

// Change kinds reported by the feed synchronizer.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// Change describes one logical record that differs from the last
// successfully ingested source revision.
type Change struct {
	RecordID string `json:"record_id"`
	Kind     string `json:"kind"`
	Path     string `json:"path"` // file path inside the mirror
}

// Upsert outcomes. The three-way distinction feeds job counters and tells
// the watchlist evaluator which records to examine.
type UpsertOutcome int

const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeAdded
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// TouchedRecord is one record written during the current ingestion pass,
// kept as first-class data so watchlist evaluation stays correct under
// partial or cancelled runs. Prior holds the pre-update stored state for
// OutcomeUpdated and is nil for OutcomeAdded.
type TouchedRecord struct {
	Record  *VulnerabilityRecord
	Prior   *VulnerabilityRecord
	Outcome UpsertOutcome
}
