package domain

import (
	"errors"
	"time"
)

// Job lifecycle states. RUNNING is the only non-terminal state.
const (
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELLED"
)

// Job kinds. A bulk ingestion rebuilds the mirror from scratch; a delta
// ingestion processes only changes since the last committed revision.
const (
	JobKindIngest = "ingest"
	JobKindBulk   = "ingest-bulk"
)

// Log levels for job log entries.
const (
	LogInfo  = "INFO"
	LogWarn  = "WARN"
	LogError = "ERROR"
)

// Domain errors surfaced by the job tracker.
var (
	ErrJobAlreadyRunning = errors.New("an ingestion job is already running")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotRunning     = errors.New("job is not running")
)

// IngestionJob models one execution of the sync + normalize + upsert +
// watchlist-evaluation pipeline as an observable, cancellable unit of work.
type IngestionJob struct {
	ID        int64      `json:"id"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	Phase     string     `json:"phase,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Heartbeat time.Time  `json:"heartbeat"`
	Error     string     `json:"error,omitempty"`

	ItemsProcessed int `json:"items_processed"`
	ItemsAdded     int `json:"items_added"`
	ItemsUpdated   int `json:"items_updated"`
	ItemsUnchanged int `json:"items_unchanged"`
	ItemsErrored   int `json:"items_errored"`
	TotalExpected  int `json:"total_expected"` // 0 when unknowable
}

// IsTerminal reports whether the job reached a final state.
func (j *IngestionJob) IsTerminal() bool {
	return j.Status != JobRunning
}

// ProgressPercent returns completion in 0..100, or -1 when the total is
// unknown and progress cannot be expressed as a percentage.
func (j *IngestionJob) ProgressPercent() float64 {
	if j.TotalExpected <= 0 {
		return -1
	}
	pct := float64(j.ItemsProcessed) / float64(j.TotalExpected) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// StaleAt reports whether a nominally RUNNING job's heartbeat is older than
// the staleness threshold at the given observation time.
func (j *IngestionJob) StaleAt(now time.Time, threshold time.Duration) bool {
	return j.Status == JobRunning && now.Sub(j.Heartbeat) > threshold
}

// JobLogEntry is one append-only structured log line scoped to a job.
type JobLogEntry struct {
	ID       int64             `json:"id"`
	JobID    int64             `json:"job_id"`
	Time     time.Time         `json:"time"`
	Level    string            `json:"level"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
