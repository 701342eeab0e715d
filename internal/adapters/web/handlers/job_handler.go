package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/ingest"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/jobs"
)

const defaultJobListLimit = 50

// JobHandler serves ingestion triggering and job inspection.
type JobHandler struct {
	Pipeline *ingest.Pipeline
	Tracker  *jobs.Tracker
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(pipeline *ingest.Pipeline, tracker *jobs.Tracker) *JobHandler {
	return &JobHandler{Pipeline: pipeline, Tracker: tracker}
}

type triggerResponse struct {
	JobID int64               `json:"jobId"`
	Job   domain.IngestionJob `json:"job"`
}

// HandleTrigger answers POST /api/ingest and POST /api/ingest/bulk. The job
// is returned immediately; the pass runs in the background.
func (h *JobHandler) HandleTrigger(bulk bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.Pipeline.Trigger(r.Context(), bulk)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, triggerResponse{JobID: job.ID, Job: *job})
	}
}

// HandleList answers GET /api/jobs, newest first.
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	list, err := h.Tracker.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.IngestionJob{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet answers GET /api/jobs/{id}.
func (h *JobHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, job)
}

// HandleLogs answers GET /api/jobs/{id}/logs with the stored backlog.
func (h *JobHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	limit := 0 // all
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	if _, err := h.Tracker.Get(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Tracker.Logs(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.JobLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleCancel answers POST /api/jobs/{id}/cancel. Cancellation is
// cooperative: the running pass stops at its next checkpoint.
func (h *JobHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := h.Tracker.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
