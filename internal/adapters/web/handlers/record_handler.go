package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/telemetry"
)

// RecordHandler serves the record search and detail API.
type RecordHandler struct {
	Records ports.RecordStore
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(records ports.RecordStore) *RecordHandler {
	return &RecordHandler{Records: records}
}

type searchResponse struct {
	Records []domain.VulnerabilityRecord `json:"cves"`
	Total   int                          `json:"totalCount"`
	Limit   int                          `json:"limit"`
	Offset  int                          `json:"offset"`
}

// HandleSearch answers GET /api/cves.
func (h *RecordHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	records, total, err := h.Records.Search(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	telemetry.SearchDuration.Observe(time.Since(start).Seconds())

	if records == nil {
		records = []domain.VulnerabilityRecord{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Records: records,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

// HandleGet answers GET /api/cves/{id}.
func (h *RecordHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.Records.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleStats answers GET /api/stats.
func (h *RecordHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Records.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandlePresets answers GET /api/presets with the relative date vocabulary.
func (h *RecordHandler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"presets": domain.RelativePresets()})
}
