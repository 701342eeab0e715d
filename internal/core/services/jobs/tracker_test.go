package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cvetrack/internal/adapters/storage"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

func setupTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := storage.NewSQLiteAdapter(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewTracker(store, time.Minute)
}

func TestStartEnforcesSingleRunningJob(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.NotZero(t, job.ID)

	_, err = tracker.Start(ctx, domain.JobKindIngest)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyRunning)

	// After the job finishes a new one may start.
	require.NoError(t, tracker.Complete(ctx, job))
	next, err := tracker.Start(ctx, domain.JobKindBulk)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, next.ID)
}

// TestStartReclaimsStaleJob: a RUNNING job whose heartbeat went stale must
// not block new work forever.
func TestStartReclaimsStaleJob(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	// Simulate a crashed predecessor: forget ownership and age the clock
	// past the staleness threshold.
	tracker.mu.Lock()
	delete(tracker.cancels, job.ID)
	tracker.mu.Unlock()
	tracker.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	next, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, next.ID)

	old, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, old.Status)
	assert.Contains(t, old.Error, "stale")
	require.NotNil(t, old.EndedAt)
	assert.WithinDuration(t, job.Heartbeat, *old.EndedAt, time.Second, "failure stamped at last heartbeat")
}

func TestCompleteStampsEnd(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	job.ItemsProcessed = 10
	require.NoError(t, tracker.Complete(ctx, job))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, 10, got.ItemsProcessed)
}

func TestFailAttachesError(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	require.NoError(t, tracker.Fail(ctx, job, "mirror sync failed"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "mirror sync failed", got.Error)
}

// TestCancelFlow: cancel sets the cooperative flag, the worker observes it
// and marks the job cancelled; repeated cancels are no-ops.
func TestCancelFlow(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	assert.False(t, tracker.CancelRequested(job.ID))

	require.NoError(t, tracker.Cancel(ctx, job.ID))
	assert.True(t, tracker.CancelRequested(job.ID))

	// Idempotent while running.
	require.NoError(t, tracker.Cancel(ctx, job.ID))

	require.NoError(t, tracker.MarkCancelled(ctx, job))
	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, got.Status)

	// Re-cancelling a job that already landed in CANCELLED stays a no-op.
	require.NoError(t, tracker.Cancel(ctx, job.ID))
	got, err = tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, got.Status)

	// A completed job is not cancellable.
	done, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	require.NoError(t, tracker.Complete(ctx, done))
	assert.ErrorIs(t, tracker.Cancel(ctx, done.ID), domain.ErrJobNotRunning)

	assert.ErrorIs(t, tracker.Cancel(ctx, 9999), domain.ErrJobNotFound)
}

/// TestGetReclassifiesStale: reading a stale job reports FAILED, but a job
// owned by this process is left alone no matter how old its heartbeat is.
func TestGetReclassifiesStale(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	tracker.now = func() time.Time { return time.Now().Add(5 * time.Minute) }

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, got.Status, "owned job never reclassified")

	tracker.mu.Lock()
	delete(tracker.cancels, job.ID)
	tracker.mu.Unlock()

	got, err = tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
}

func TestRecoverStale(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	// A fresh process does not own the leftover job.
	tracker.mu.Lock()
	delete(tracker.cancels, job.ID)
	tracker.mu.Unlock()

	require.NoError(t, tracker.RecoverStale(ctx))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)

	// Nothing running: recovery is a no-op.
	require.NoError(t, tracker.RecoverStale(ctx))
}

func TestLogPersistsAndPublishes(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	ch, cancel := tracker.Subscribe(job.ID)
	defer cancel()

	tracker.Log(ctx, job.ID, domain.LogError, "bad record", map[string]string{"record_id": "CVE-2024-0001"})

	logs, err := tracker.Logs(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogError, logs[0].Level)
	assert.Equal(t, "CVE-2024-0001", logs[0].Metadata["record_id"])

	select {
	case entry := <-ch:
		assert.Equal(t, "bad record", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("live entry not delivered")
	}
}

func TestFinishClosesSubscribers(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	ch, cancel := tracker.Subscribe(job.ID)
	defer cancel()

	require.NoError(t, tracker.Complete(ctx, job))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closed on job completion")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestSetPhase(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	require.NoError(t, tracker.SetPhase(ctx, job, "processing changes"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing changes", got.Phase)

	logs, err := tracker.Logs(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "processing changes", logs[0].Message)
}
