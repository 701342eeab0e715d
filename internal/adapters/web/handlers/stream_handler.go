package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin requests carry no Origin header.
		return r.Header.Get("Origin") == "" || r.Header.Get("Origin") == "http://"+r.Host
	},
}

// StreamHandler serves live job log streams over WebSocket.
type StreamHandler struct {
	Tracker *jobs.Tracker
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(tracker *jobs.Tracker) *StreamHandler {
	return &StreamHandler{Tracker: tracker}
}

// HandleLogStream answers GET /api/jobs/{id}/logs/stream. A subscriber
// joining a running job receives only entries logged after it attached;
// history stays on GET /api/jobs/{id}/logs, or can be prepended to the
// stream with ?history=true. A terminal job has no live tail, so its stored
// backlog is replayed and the stream ends.
func (h *StreamHandler) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.Tracker.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Subscribe before any replay so no entry falls between backlog and
	// tail. Duplicates at the boundary are possible and harmless for a log
	// view.
	live, cancel := h.Tracker.Subscribe(id)
	defer cancel()

	var backlog []domain.JobLogEntry
	if job.IsTerminal() || r.URL.Query().Get("history") == "true" {
		if backlog, err = h.Tracker.Logs(r.Context(), id, 0); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	telemetry.LogSubscribers.Inc()
	defer telemetry.LogSubscribers.Dec()

	for _, entry := range backlog {
		if err := conn.WriteJSON(entry); err != nil {
			return
		}
	}
	if job.IsTerminal() {
		return
	}

	// Read pump: detects client disconnect, discards input.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-live:
			if !ok {
				// Job finished (or this subscriber fell too far behind).
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
