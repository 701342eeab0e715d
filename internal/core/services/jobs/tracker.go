// Package jobs models one ingestion run as a stateful, observable and
// cancellable unit of work: lifecycle transitions, heartbeat watchdog,
// cooperative cancellation and live log streaming.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

// DefaultStaleAfter is the heartbeat staleness threshold after which a
// nominally RUNNING job is presumed crashed.
const DefaultStaleAfter = 2 * time.Minute

// Tracker owns job lifecycle state. Only one job may be RUNNING at a time;
// the exclusion is an explicit lock around job creation so contention is
// deterministic under test.
type Tracker struct {
	store      ports.JobStore
	hub        *Hub
	staleAfter time.Duration
	now        func() time.Time

	startMu sync.Mutex // serializes the check-then-create in Start

	mu      sync.Mutex
	cancels map[int64]*atomic.Bool
}

// NewTracker creates a tracker over the given store.
func NewTracker(store ports.JobStore, staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		store:      store,
		hub:        NewHub(),
		staleAfter: staleAfter,
		now:        time.Now,
		cancels:    make(map[int64]*atomic.Bool),
	}
}

// Start creates a new RUNNING job, enforcing the single-running-job
// invariant. A stale leftover RUNNING job from a crashed process is
// reclassified instead of blocking new work forever.
func (t *Tracker) Start(ctx context.Context, kind string) (*domain.IngestionJob, error) {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	active, err := t.store.ActiveJob(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if !active.StaleAt(t.now(), t.staleAfter) {
			return nil, domain.ErrJobAlreadyRunning
		}
		if err := t.failStale(ctx, active); err != nil {
			return nil, err
		}
	}

	now := t.now()
	job := &domain.IngestionJob{
		Kind:      kind,
		Status:    domain.JobRunning,
		StartedAt: now,
		Heartbeat: now,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cancels[job.ID] = &atomic.Bool{}
	t.mu.Unlock()

	telemetry.JobsStarted.WithLabelValues(kind).Inc()
	slog.Info("ingestion job started", "job_id", job.ID, "kind", kind)
	return job, nil
}

// Update persists the job's current progress and stamps its heartbeat.
func (t *Tracker) Update(ctx context.Context, job *domain.IngestionJob) error {
	job.Heartbeat = t.now()
	return t.store.UpdateJob(ctx, job)
}

// SetPhase updates the human-readable phase and logs the transition.
func (t *Tracker) SetPhase(ctx context.Context, job *domain.IngestionJob, phase string) error {
	job.Phase = phase
	t.Log(ctx, job.ID, domain.LogInfo, phase, nil)
	return t.Update(ctx, job)
}

// Complete transitions a job to COMPLETED.
func (t *Tracker) Complete(ctx context.Context, job *domain.IngestionJob) error {
	return t.finish(ctx, job, domain.JobCompleted, "")
}

// Fail transitions a job to FAILED with the fatal error attached.
func (t *Tracker) Fail(ctx context.Context, job *domain.IngestionJob, msg string) error {
	return t.finish(ctx, job, domain.JobFailed, msg)
}

// MarkCancelled transitions a job to CANCELLED. Work already persisted is
// kept; this is a user-requested stop, not a failure.
func (t *Tracker) MarkCancelled(ctx context.Context, job *domain.IngestionJob) error {
	return t.finish(ctx, job, domain.JobCancelled, "")
}

func (t *Tracker) finish(ctx context.Context, job *domain.IngestionJob, status, msg string) error {
	now := t.now()
	job.Status = status
	job.EndedAt = &now
	job.Heartbeat = now
	job.Error = msg
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.cancels, job.ID)
	t.mu.Unlock()
	t.hub.CloseJob(job.ID)

	telemetry.JobsFinished.WithLabelValues(job.Kind, status).Inc()
	slog.Info("ingestion job finished", "job_id", job.ID, "status", status)
	return nil
}

// Cancel sets the cooperative cancel flag for a running job. Idempotent:
// cancelling twice, or after the cancellation landed, is harmless. A job
// that completed or failed is not cancellable.
func (t *Tracker) Cancel(ctx context.Context, jobID int64) error {
	job, err := t.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobCancelled {
		return nil
	}
	if job.IsTerminal() {
		return domain.ErrJobNotRunning
	}

	t.mu.Lock()
	flag, ok := t.cancels[jobID]
	t.mu.Unlock()
	if ok {
		flag.Store(true)
		t.Log(ctx, jobID, domain.LogWarn, "cancellation requested", nil)
		return nil
	}

	// RUNNING in the store but unknown to this process: a crash leftover.
	return t.failStale(ctx, job)
}

// CancelRequested reports whether the cooperative cancel flag is set. The
// pipeline polls this at safe checkpoints between records.
func (t *Tracker) CancelRequested(jobID int64) bool {
	t.mu.Lock()
	flag, ok := t.cancels[jobID]
	t.mu.Unlock()
	return ok && flag.Load()
}

// Get returns a job, reclassifying it to FAILED first when its heartbeat
// went stale.
func (t *Tracker) Get(ctx context.Context, id int64) (*domain.IngestionJob, error) {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.reclassifyIfStale(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first, applying the staleness watchdog.
func (t *Tracker) List(ctx context.Context, limit int) ([]domain.IngestionJob, error) {
	jobsList, err := t.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range jobsList {
		if err := t.reclassifyIfStale(ctx, &jobsList[i]); err != nil {
			return nil, err
		}
	}
	return jobsList, nil
}

// RecoverStale runs the watchdog once, for process startup: a job left
// RUNNING by a crashed predecessor must never stay RUNNING forever.
func (t *Tracker) RecoverStale(ctx context.Context) error {
	active, err := t.store.ActiveJob(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	t.mu.Lock()
	_, owned := t.cancels[active.ID]
	t.mu.Unlock()
	if owned {
		return nil
	}
	return t.failStale(ctx, active)
}

func (t *Tracker) reclassifyIfStale(ctx context.Context, job *domain.IngestionJob) error {
	if !job.StaleAt(t.now(), t.staleAfter) {
		return nil
	}
	t.mu.Lock()
	_, owned := t.cancels[job.ID]
	t.mu.Unlock()
	if owned {
		return nil
	}
	return t.failStale(ctx, job)
}

func (t *Tracker) failStale(ctx context.Context, job *domain.IngestionJob) error {
	ended := job.Heartbeat
	job.Status = domain.JobFailed
	job.Error = "heartbeat went stale; job presumed crashed"
	job.EndedAt = &ended
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	t.Log(ctx, job.ID, domain.LogError, job.Error, nil)
	telemetry.JobsFinished.WithLabelValues(job.Kind, domain.JobFailed).Inc()
	slog.Warn("reclassified stale job", "job_id", job.ID)
	return nil
}

// Log appends a structured entry to the job's log and publishes it to live
// subscribers.
func (t *Tracker) Log(ctx context.Context, jobID int64, level, msg string, meta map[string]string) {
	entry := &domain.JobLogEntry{
		JobID:    jobID,
		Time:     t.now(),
		Level:    level,
		Message:  msg,
		Metadata: meta,
	}
	if err := t.store.AppendLog(ctx, entry); err != nil {
		slog.Error("failed to persist job log entry", "job_id", jobID, "error", err)
		return
	}
	t.hub.Publish(*entry)
}

// Logs returns a job's persisted log history.
func (t *Tracker) Logs(ctx context.Context, jobID int64, limit int) ([]domain.JobLogEntry, error) {
	return t.store.ListLogs(ctx, jobID, limit)
}

// Subscribe attaches a live log consumer. Entries logged before the
// subscription are not replayed; use Logs for history.
func (t *Tracker) Subscribe(jobID int64) (<-chan domain.JobLogEntry, func()) {
	return t.hub.Subscribe(jobID)
}
