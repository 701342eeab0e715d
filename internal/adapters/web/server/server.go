// Package server assembles the HTTP API on top of the core services.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pdfreporting "github.com/lcalzada-xor/cvetrack/internal/adapters/reporting"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/ingest"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/reporting"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server owns the HTTP listener and the handler set.
type Server struct {
	Addr string

	RecordHandler    *handlers.RecordHandler
	JobHandler       *handlers.JobHandler
	StreamHandler    *handlers.StreamHandler
	WatchlistHandler *handlers.WatchlistHandler
	AlertHandler     *handlers.AlertHandler
	ExportHandler    *handlers.ExportHandler

	srv *http.Server
}

// NewServer wires the handler set from the core services.
func NewServer(
	addr string,
	records ports.RecordStore,
	watchlists ports.WatchlistStore,
	alerts ports.AlertStore,
	pipeline *ingest.Pipeline,
	tracker *jobs.Tracker,
	generator *reporting.Generator,
) *Server {
	return &Server{
		Addr:             addr,
		RecordHandler:    handlers.NewRecordHandler(records),
		JobHandler:       handlers.NewJobHandler(pipeline, tracker),
		StreamHandler:    handlers.NewStreamHandler(tracker),
		WatchlistHandler: handlers.NewWatchlistHandler(watchlists, records),
		AlertHandler:     handlers.NewAlertHandler(alerts),
		ExportHandler:    handlers.NewExportHandler(records, alerts, generator, pdfreporting.NewPDFExporter()),
	}
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(s)

	instrumented := otelhttp.NewHandler(handler, "cvetrack-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumented,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown error", "error", err)
		}
	}()

	slog.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
