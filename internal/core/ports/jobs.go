package ports

import (
	"context"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// JobStore persists ingestion jobs and their append-only logs.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.IngestionJob) error
	UpdateJob(ctx context.Context, job *domain.IngestionJob) error
	GetJob(ctx context.Context, id int64) (*domain.IngestionJob, error)

	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, limit int) ([]domain.IngestionJob, error)

	// ActiveJob returns the RUNNING job, or nil when none is running.
	ActiveJob(ctx context.Context) (*domain.IngestionJob, error)

	AppendLog(ctx context.Context, entry *domain.JobLogEntry) error
	ListLogs(ctx context.Context, jobID int64, limit int) ([]domain.JobLogEntry, error)

	// DeleteJob removes a job and cascades to its log entries.
	DeleteJob(ctx context.Context, id int64) error
}
