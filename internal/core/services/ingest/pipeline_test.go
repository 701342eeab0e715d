package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cvetrack/internal/adapters/feed"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/recordstore"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/storage"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/watchlist"
)

// stubSource serves canned sync results and record files from memory.
type stubSource struct {
	result    *ports.SyncResult
	files     map[string][]byte
	syncErr   error
	committed []string
}

func (s *stubSource) Sync(ctx context.Context, bulk bool) (*ports.SyncResult, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return s.result, nil
}

func (s *stubSource) ReadRecord(path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (s *stubSource) Commit(revision string) error {
	s.committed = append(s.committed, revision)
	return nil
}

type env struct {
	pipeline *Pipeline
	tracker  *jobs.Tracker
	records  *recordstore.Store
	system   *storage.SQLiteAdapter
	source   *stubSource
}

func setup(t *testing.T, source *stubSource) *env {
	t.Helper()
	system, err := storage.NewSQLiteAdapter(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { system.Close() })

	records, err := recordstore.New(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	tracker := jobs.NewTracker(system, time.Minute)
	evaluator := watchlist.NewEvaluator(system, system, records, tracker)

	return &env{
		pipeline: NewPipeline(source, feed.NewNormalizer(), records, tracker, evaluator),
		tracker:  tracker,
		records:  records,
		system:   system,
		source:   source,
	}
}

func rawDoc(id string, score float64) []byte {
	return []byte(fmt.Sprintf(`{
	  "cveMetadata": {"cveId": %q, "state": "PUBLISHED", "datePublished": "2024-03-01T00:00:00Z"},
	  "containers": {"cna": {
	    "descriptions": [{"lang": "en", "value": "test vulnerability"}],
	    "metrics": [{"cvssV3_1": {"baseScore": %.1f, "baseSeverity": %q}}]
	  }}
	}`, id, score, domain.SeverityFromScore(score)))
}

func sourceWith(files map[string][]byte) *stubSource {
	res := &ports.SyncResult{Revision: "deadbeefcafe", Enrichment: ports.Enrichment{}}
	for path := range files {
		id := filepath.Base(path)
		res.Changes = append(res.Changes, domain.Change{
			RecordID: id[:len(id)-len(".json")],
			Kind:     domain.ChangeAdded,
			Path:     path,
		})
	}
	return &stubSource{result: res, files: files}
}

// run triggers a pass and waits for the job to reach a terminal state.
func run(t *testing.T, e *env, bulk bool) *domain.IngestionJob {
	t.Helper()
	job, err := e.pipeline.Trigger(context.Background(), bulk)
	require.NoError(t, err)

	var final *domain.IngestionJob
	require.Eventually(t, func() bool {
		got, err := e.tracker.Get(context.Background(), job.ID)
		if err != nil || !got.IsTerminal() {
			return false
		}
		final = got
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return final
}

func TestRunHappyPath(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
		"cves/2024/CVE-2024-0002.json": rawDoc("CVE-2024-0002", 5.0),
	}))

	job := run(t, e, false)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 2, job.ItemsProcessed)
	assert.Equal(t, 2, job.ItemsAdded)
	assert.Zero(t, job.ItemsErrored)
	assert.Equal(t, 2, job.TotalExpected)

	rec, err := e.records.Get(context.Background(), "CVE-2024-0001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 9.8, rec.Score)

	// Revision committed only after the full pass succeeded.
	assert.Equal(t, []string{"deadbeefcafe"}, e.source.committed)
}

func TestRunSyncFailure(t *testing.T) {
	e := setup(t, &stubSource{syncErr: errors.New("network unreachable")})

	job := run(t, e, false)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Contains(t, job.Error, "network unreachable")
	assert.Empty(t, e.source.committed)
}

// TestRunSkipsMalformedRecords: a parse error is counted and logged but the
// rest of the batch completes, and the revision still commits.
func TestRunSkipsMalformedRecords(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
		"cves/2024/CVE-2024-0002.json": []byte(`{broken`),
	}))

	job := run(t, e, false)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 1, job.ItemsAdded)
	assert.Equal(t, 1, job.ItemsErrored)
	assert.Len(t, e.source.committed, 1)

	logs, err := e.tracker.Logs(context.Background(), job.ID, 0)
	require.NoError(t, err)
	var sawError bool
	for _, entry := range logs {
		if entry.Level == domain.LogError {
			sawError = true
			assert.Equal(t, "CVE-2024-0002", entry.Metadata["record_id"])
		}
	}
	assert.True(t, sawError, "parse error surfaced in the job log")
}

// TestRunMissingFileFails: an unreadable record file is a transient fault
// and aborts the pass without committing the revision.
func TestRunMissingFileFails(t *testing.T) {
	src := sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
	})
	src.result.Changes = append(src.result.Changes, domain.Change{
		RecordID: "CVE-2024-0002", Kind: domain.ChangeModified, Path: "cves/2024/CVE-2024-0002.json",
	})
	e := setup(t, src)

	job := run(t, e, false)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Empty(t, e.source.committed)
}

func TestRunUnchangedSecondPass(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
	}))

	first := run(t, e, false)
	assert.Equal(t, 1, first.ItemsAdded)

	second := run(t, e, false)
	assert.Equal(t, domain.JobCompleted, second.Status)
	assert.Zero(t, second.ItemsAdded)
	assert.Equal(t, 1, second.ItemsUnchanged)
}

func TestRunTombstonesRemovals(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
	}))
	run(t, e, false)

	e.source.result = &ports.SyncResult{
		Revision: "rev2",
		Changes: []domain.Change{
			{RecordID: "CVE-2024-0001", Kind: domain.ChangeRemoved, Path: "cves/2024/CVE-2024-0001.json"},
			{RecordID: "CVE-2024-9999", Kind: domain.ChangeRemoved, Path: "cves/2024/CVE-2024-9999.json"},
		},
		Enrichment: ports.Enrichment{},
	}

	job := run(t, e, false)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 1, job.ItemsUpdated, "existing record tombstoned")
	assert.Equal(t, 1, job.ItemsUnchanged, "unknown removal is a no-op")

	rec, err := e.records.Get(context.Background(), "CVE-2024-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rec.Status)
}

func TestRunEmitsAlerts(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
		"cves/2024/CVE-2024-0002.json": rawDoc("CVE-2024-0002", 3.0),
	}))

	min := 9.0
	require.NoError(t, e.system.CreateWatchlist(context.Background(), &domain.Watchlist{
		ID: "wl-1", Name: "critical", Query: domain.Query{CVSSMinBound: &min}, Enabled: true, CreatedAt: time.Now(),
	}))

	job := run(t, e, false)
	assert.Equal(t, domain.JobCompleted, job.Status)

	alerts, err := e.system.ListAlerts(context.Background(), false, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "CVE-2024-0001", alerts[0].RecordID)
	assert.Equal(t, domain.AlertNewMatch, alerts[0].Type)
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
	}))

	// Hold the run token by hand so the race is deterministic.
	job, err := e.tracker.Start(context.Background(), domain.JobKindIngest)
	require.NoError(t, err)

	_, err = e.pipeline.Trigger(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyRunning)

	require.NoError(t, e.tracker.Complete(context.Background(), job))
	_, err = e.pipeline.Trigger(context.Background(), false)
	assert.NoError(t, err)
}

// TestRunCancellation: a cancel observed at the between-records checkpoint
// lands the job in CANCELLED, keeps the partial work and skips the commit.
func TestRunCancellation(t *testing.T) {
	e := setup(t, sourceWith(map[string][]byte{
		"cves/2024/CVE-2024-0001.json": rawDoc("CVE-2024-0001", 9.8),
	}))
	ctx := context.Background()

	job, err := e.tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)
	require.NoError(t, e.tracker.Cancel(ctx, job.ID))

	e.pipeline.Run(ctx, job, false)

	got, err := e.tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, got.Status)
	assert.Empty(t, e.source.committed, "cancelled pass never commits the revision")
}

// TestHeartbeatDuringJoins: stopping the sync heartbeat must wait for the
// ticker goroutine, so the caller can mutate the job immediately afterwards
// without racing a late update.
func TestHeartbeatDuringJoins(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = time.Millisecond
	defer func() { heartbeatInterval = old }()

	e := setup(t, sourceWith(nil))
	ctx := context.Background()

	job, err := e.tracker.Start(ctx, domain.JobKindIngest)
	require.NoError(t, err)

	stop := e.pipeline.heartbeatDuring(ctx, job)
	require.Eventually(t, func() bool {
		got, err := e.tracker.Get(ctx, job.ID)
		return err == nil && got.Heartbeat.After(job.StartedAt)
	}, time.Second, time.Millisecond, "ticker stamps the heartbeat")
	stop()

	// No goroutine may touch the job once stop returns; the race detector
	// flags a straggler through these writes.
	job.Phase = "processing changes"
	job.TotalExpected = 7

	got, err := e.tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	persisted := got.Heartbeat
	time.Sleep(20 * time.Millisecond)
	got, err = e.tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, persisted, got.Heartbeat, "no updates after stop")

	require.NoError(t, e.tracker.Complete(ctx, job))
}
