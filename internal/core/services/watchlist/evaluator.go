// Package watchlist turns "what changed in this ingestion pass" into alerts.
package watchlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

// passLogger is the slice of the job tracker the evaluator needs.
type passLogger interface {
	Log(ctx context.Context, jobID int64, level, msg string, meta map[string]string)
}

// Evaluator re-runs each enabled watchlist's stored query against the
// records touched by the current ingestion pass and emits deduplicated
// alerts for new or changed matches.
type Evaluator struct {
	watchlists ports.WatchlistStore
	alerts     ports.AlertStore
	records    ports.RecordStore
	logger     passLogger
	now        func() time.Time
}

// NewEvaluator creates an evaluator.
func NewEvaluator(watchlists ports.WatchlistStore, alerts ports.AlertStore, records ports.RecordStore, logger passLogger) *Evaluator {
	return &Evaluator{
		watchlists: watchlists,
		alerts:     alerts,
		records:    records,
		logger:     logger,
		now:        time.Now,
	}
}

// EvaluatePass examines every touched record against every enabled
// watchlist. LastRun and MatchCount are updated exactly once per watchlist
// per pass; MatchCount is recomputed by re-querying the store, never
// incremented. Returns the number of alerts created.
func (e *Evaluator) EvaluatePass(ctx context.Context, jobID int64, touched []domain.TouchedRecord) (int, error) {
	lists, err := e.watchlists.ListEnabledWatchlists(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list watchlists: %w", err)
	}

	now := e.now()
	created := 0

	for i := range lists {
		w := &lists[i]
		n, err := e.evaluateWatchlist(ctx, w, touched, now)
		if err != nil {
			return created, err
		}
		created += n

		w.LastRun = now
		count, err := e.records.Count(ctx, &w.Query)
		if err != nil {
			return created, fmt.Errorf("failed to recount watchlist %s: %w", w.ID, err)
		}
		w.MatchCount = count
		if err := e.watchlists.UpdateWatchlist(ctx, w); err != nil {
			return created, fmt.Errorf("failed to update watchlist %s: %w", w.ID, err)
		}

		if n > 0 && e.logger != nil {
			e.logger.Log(ctx, jobID, domain.LogInfo,
				fmt.Sprintf("watchlist %q produced %d alert(s)", w.Name, n),
				map[string]string{"watchlist_id": w.ID})
		}
	}

	return created, nil
}

// evaluateWatchlist emits at most one alert per record per pass for one
// watchlist. A record that stops matching, or an unchanged record that
// already matched, produces nothing.
func (e *Evaluator) evaluateWatchlist(ctx context.Context, w *domain.Watchlist, touched []domain.TouchedRecord, now time.Time) (int, error) {
	seen := make(map[string]bool)
	created := 0

	for _, t := range touched {
		if t.Outcome == domain.OutcomeUnchanged || t.Record == nil {
			continue
		}
		if seen[t.Record.ID] {
			continue
		}
		seen[t.Record.ID] = true

		if !w.Query.Matches(t.Record, now) {
			continue
		}

		alertType := domain.AlertNewMatch
		if t.Outcome == domain.OutcomeUpdated && t.Prior != nil && w.Query.Matches(t.Prior, now) {
			alertType = domain.AlertUpdatedMatch
		}

		alert := &domain.Alert{
			ID:            uuid.NewString(),
			RecordID:      t.Record.ID,
			WatchlistID:   w.ID,
			WatchlistName: w.Name,
			Type:          alertType,
			CreatedAt:     now,
		}
		if err := e.alerts.CreateAlert(ctx, alert); err != nil {
			return created, fmt.Errorf("failed to create alert for %s: %w", t.Record.ID, err)
		}
		telemetry.AlertsCreated.WithLabelValues(alertType).Inc()
		created++
	}

	return created, nil
}
