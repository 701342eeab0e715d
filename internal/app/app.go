// Package app is the composition root: it wires adapters into services and
// owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lcalzada-xor/cvetrack/internal/adapters/feed"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/recordstore"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/storage"
	webserver "github.com/lcalzada-xor/cvetrack/internal/adapters/web/server"
	"github.com/lcalzada-xor/cvetrack/internal/config"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/ingest"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/reporting"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/watchlist"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

// Application holds the core components of the system.
type Application struct {
	Config      *config.Config
	Records     *recordstore.Store
	SystemStore *storage.SQLiteAdapter
	Tracker     *jobs.Tracker
	Pipeline    *ingest.Pipeline
	WebServer   *webserver.Server
}

// New creates an Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	if err := os.MkdirAll(app.Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	records, err := recordstore.New(app.Config.RecordDBPath)
	if err != nil {
		return fmt.Errorf("failed to init record store: %w", err)
	}
	app.Records = records

	systemStore, err := storage.NewSQLiteAdapter(app.Config.SystemDBPath)
	if err != nil {
		return fmt.Errorf("failed to init system storage: %w", err)
	}
	app.SystemStore = systemStore

	app.Tracker = jobs.NewTracker(systemStore, app.Config.StaleAfter)

	evaluator := watchlist.NewEvaluator(systemStore, systemStore, records, app.Tracker)
	source := feed.NewGitSource(app.Config.FeedURL, app.Config.MirrorPath)
	app.Pipeline = ingest.NewPipeline(source, feed.NewNormalizer(), records, app.Tracker, evaluator)

	generator := reporting.NewGenerator(records, systemStore)
	app.WebServer = webserver.NewServer(
		app.Config.Addr, records, systemStore, systemStore, app.Pipeline, app.Tracker, generator)

	return nil
}

// Run reconciles leftover job state and serves HTTP until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Tracker.RecoverStale(ctx); err != nil {
		slog.Warn("stale job recovery failed", "error", err)
	}

	return app.WebServer.Run(ctx)
}

// Close releases storage resources.
func (app *Application) Close() {
	if app.Records != nil {
		if err := app.Records.Close(); err != nil {
			slog.Error("failed to close record store", "error", err)
		}
	}
	if app.SystemStore != nil {
		if err := app.SystemStore.Close(); err != nil {
			slog.Error("failed to close system storage", "error", err)
		}
	}
}
