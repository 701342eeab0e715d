package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/cvetrack/internal/adapters/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the API router.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	// Ingestion triggers start real work; keep them rate limited.
	ingestLimiter := middleware.NewRateLimiter(5, 1*time.Minute)
	limited := middleware.RateLimitMiddleware(ingestLimiter)

	// Records
	r.HandleFunc("/api/cves", s.RecordHandler.HandleSearch).Methods(http.MethodGet)
	r.HandleFunc("/api/cves/{id}", s.RecordHandler.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.RecordHandler.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/presets", s.RecordHandler.HandlePresets).Methods(http.MethodGet)

	// Ingestion jobs
	r.Handle("/api/ingest", limited(s.JobHandler.HandleTrigger(false))).Methods(http.MethodPost)
	r.Handle("/api/ingest/bulk", limited(s.JobHandler.HandleTrigger(true))).Methods(http.MethodPost)
	r.HandleFunc("/api/jobs", s.JobHandler.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}", s.JobHandler.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/logs", s.JobHandler.HandleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/logs/stream", s.StreamHandler.HandleLogStream).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/cancel", s.JobHandler.HandleCancel).Methods(http.MethodPost)

	// Watchlists
	r.HandleFunc("/api/watchlists", s.WatchlistHandler.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/watchlists", s.WatchlistHandler.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlists/preview", s.WatchlistHandler.HandlePreview).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlists/{id}", s.WatchlistHandler.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlists/{id}", s.WatchlistHandler.HandleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/api/watchlists/{id}", s.WatchlistHandler.HandleDelete).Methods(http.MethodDelete)

	// Alerts
	r.HandleFunc("/api/alerts", s.AlertHandler.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.AlertHandler.HandleDeleteAll).Methods(http.MethodDelete)
	r.HandleFunc("/api/alerts/unread-count", s.AlertHandler.HandleUnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/mark-all-read", s.AlertHandler.HandleMarkAll(true)).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/mark-all-unread", s.AlertHandler.HandleMarkAll(false)).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/{id}/read", s.AlertHandler.HandleSetRead(true)).Methods(http.MethodPut)
	r.HandleFunc("/api/alerts/{id}/unread", s.AlertHandler.HandleSetRead(false)).Methods(http.MethodPut)
	r.HandleFunc("/api/alerts/{id}", s.AlertHandler.HandleDelete).Methods(http.MethodDelete)

	// Export and reports
	r.HandleFunc("/api/export", s.ExportHandler.HandleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/export/pdf", s.ExportHandler.HandleExportPDF).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/summary", s.ExportHandler.HandleSummary).Methods(http.MethodGet)

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	return r
}
