// Package ingest orchestrates one ingestion pass: mirror sync, per-record
// normalization and upsert, and watchlist evaluation, all reported through
// the job tracker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/adapters/feed"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/watchlist"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

// progressEvery bounds how often incremental progress is persisted while
// looping over changed records.
const progressEvery = 50

// heartbeatInterval keeps the job heartbeat fresh during the (potentially
// long) mirror sync, when no per-record progress is being written. A var so
// tests can tighten it.
var heartbeatInterval = 15 * time.Second

// Pipeline wires the feed source, normalizer, record store, job tracker and
// watchlist evaluator into the ingestion flow.
type Pipeline struct {
	source     ports.FeedSource
	normalizer ports.Normalizer
	records    ports.RecordStore
	tracker    *jobs.Tracker
	evaluator  *watchlist.Evaluator
}

// NewPipeline creates a pipeline.
func NewPipeline(source ports.FeedSource, normalizer ports.Normalizer, records ports.RecordStore, tracker *jobs.Tracker, evaluator *watchlist.Evaluator) *Pipeline {
	return &Pipeline{
		source:     source,
		normalizer: normalizer,
		records:    records,
		tracker:    tracker,
		evaluator:  evaluator,
	}
}

// Trigger starts an ingestion job on a background goroutine and returns it.
// Fails synchronously with domain.ErrJobAlreadyRunning when another job
// holds the run token.
func (p *Pipeline) Trigger(ctx context.Context, bulk bool) (*domain.IngestionJob, error) {
	kind := domain.JobKindIngest
	if bulk {
		kind = domain.JobKindBulk
	}
	job, err := p.tracker.Start(ctx, kind)
	if err != nil {
		return nil, err
	}

	// The run outlives the triggering request.
	go p.Run(context.Background(), job, bulk)

	return job, nil
}

// Run executes the whole pass. Every failure path lands in a terminal job
// state; nothing propagates up to crash the server.
func (p *Pipeline) Run(ctx context.Context, job *domain.IngestionJob, bulk bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingestion panicked", "job_id", job.ID, "panic", r)
			p.tracker.Fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	p.tracker.SetPhase(ctx, job, "syncing feed mirror")

	stopHB := p.heartbeatDuring(ctx, job)
	res, err := p.source.Sync(ctx, bulk)
	stopHB()
	if err != nil {
		p.tracker.Log(ctx, job.ID, domain.LogError, "feed sync failed: "+err.Error(), nil)
		p.tracker.Fail(ctx, job, err.Error())
		return
	}

	job.TotalExpected = len(res.Changes)
	p.tracker.Log(ctx, job.ID, domain.LogInfo,
		fmt.Sprintf("feed at revision %.12s, %d change(s)", res.Revision, len(res.Changes)), nil)
	p.tracker.SetPhase(ctx, job, "processing changes")

	touched, cancelled, err := p.processChanges(ctx, job, res)
	if err != nil {
		p.tracker.Fail(ctx, job, err.Error())
		return
	}
	if cancelled {
		p.tracker.MarkCancelled(ctx, job)
		return
	}

	p.tracker.SetPhase(ctx, job, "evaluating watchlists")
	if p.tracker.CancelRequested(job.ID) {
		p.tracker.MarkCancelled(ctx, job)
		return
	}
	alerts, err := p.evaluator.EvaluatePass(ctx, job.ID, touched)
	if err != nil {
		p.tracker.Log(ctx, job.ID, domain.LogError, "watchlist evaluation failed: "+err.Error(), nil)
		p.tracker.Fail(ctx, job, err.Error())
		return
	}

	if err := p.source.Commit(res.Revision); err != nil {
		p.tracker.Fail(ctx, job, fmt.Sprintf("failed to commit revision: %v", err))
		return
	}

	p.tracker.Log(ctx, job.ID, domain.LogInfo, fmt.Sprintf(
		"pass complete: %d added, %d updated, %d unchanged, %d errored, %d alert(s)",
		job.ItemsAdded, job.ItemsUpdated, job.ItemsUnchanged, job.ItemsErrored, alerts), nil)
	p.tracker.Complete(ctx, job)
}

// processChanges upserts every changed record, checkpointing cancellation
// between records. Per-record parse errors are logged and skipped; storage
// and filesystem errors are fatal for the pass.
func (p *Pipeline) processChanges(ctx context.Context, job *domain.IngestionJob, res *ports.SyncResult) ([]domain.TouchedRecord, bool, error) {
	var touched []domain.TouchedRecord

	for i, change := range res.Changes {
		if p.tracker.CancelRequested(job.ID) {
			p.tracker.Log(ctx, job.ID, domain.LogWarn,
				fmt.Sprintf("cancelled after %d of %d change(s); persisted work kept", i, len(res.Changes)), nil)
			return touched, true, nil
		}

		if change.Kind == domain.ChangeRemoved {
			if err := p.tombstone(ctx, job, change.RecordID); err != nil {
				return touched, false, err
			}
			job.ItemsProcessed++
		} else {
			t, err := p.ingestOne(ctx, job, change, res.Enrichment)
			if err != nil {
				return touched, false, err
			}
			job.ItemsProcessed++
			if t != nil {
				touched = append(touched, *t)
			}
		}

		if (i+1)%progressEvery == 0 {
			if err := p.tracker.Update(ctx, job); err != nil {
				return touched, false, err
			}
		}
	}

	return touched, false, p.tracker.Update(ctx, job)
}

// ingestOne normalizes and upserts a single changed record. Returns nil with
// no error when the record was skipped or unchanged.
func (p *Pipeline) ingestOne(ctx context.Context, job *domain.IngestionJob, change domain.Change, enrich ports.Enrichment) (*domain.TouchedRecord, error) {
	raw, err := p.source.ReadRecord(change.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", change.Path, err)
	}

	rec, err := p.normalizer.Normalize(raw, enrich)
	if err != nil {
		var parseErr *feed.ParseError
		if errors.As(err, &parseErr) {
			// One malformed record must not abort the batch.
			p.tracker.Log(ctx, job.ID, domain.LogError, err.Error(),
				map[string]string{"record_id": change.RecordID, "path": change.Path})
			job.ItemsErrored++
			telemetry.RecordParseErrors.Inc()
			return nil, nil
		}
		return nil, err
	}

	outcome, prior, err := p.records.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	telemetry.RecordsUpserted.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case domain.OutcomeAdded:
		job.ItemsAdded++
	case domain.OutcomeUpdated:
		job.ItemsUpdated++
	default:
		job.ItemsUnchanged++
		return nil, nil
	}

	return &domain.TouchedRecord{Record: rec, Prior: prior, Outcome: outcome}, nil
}

// tombstone handles a record deleted upstream: it stops matching searches
// and watchlists but stays referencable by existing alerts.
func (p *Pipeline) tombstone(ctx context.Context, job *domain.IngestionJob, id string) error {
	existing, err := p.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status == domain.StatusRejected {
		job.ItemsUnchanged++
		return nil
	}
	if err := p.records.Tombstone(ctx, id); err != nil {
		return err
	}
	p.tracker.Log(ctx, job.ID, domain.LogWarn, "record removed upstream, marked rejected",
		map[string]string{"record_id": id})
	job.ItemsUpdated++
	return nil
}

// heartbeatDuring stamps the job heartbeat on a ticker until the returned
// stop function is called. Used around the sync step, when the main loop is
// blocked and would otherwise go stale. Stop waits for the goroutine to
// exit: the caller mutates job fields afterwards, so no update may still be
// reading them.
func (p *Pipeline) heartbeatDuring(ctx context.Context, job *domain.IngestionJob) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.tracker.Update(ctx, job); err != nil {
					slog.Warn("heartbeat update failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
