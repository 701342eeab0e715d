package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

// WatchlistHandler serves watchlist CRUD.
type WatchlistHandler struct {
	Watchlists ports.WatchlistStore
	Records    ports.RecordStore
}

// NewWatchlistHandler creates a new WatchlistHandler.
func NewWatchlistHandler(watchlists ports.WatchlistStore, records ports.RecordStore) *WatchlistHandler {
	return &WatchlistHandler{Watchlists: watchlists, Records: records}
}

type watchlistRequest struct {
	Name    string       `json:"name"`
	Query   domain.Query `json:"query"`
	Enabled *bool        `json:"enabled"`
}

// HandleCreate answers POST /api/watchlists. The initial match count is
// computed immediately so the UI shows a meaningful number before the first
// ingestion pass.
func (h *WatchlistHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	wl := &domain.Watchlist{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Query:     req.Query,
		Enabled:   enabled,
		CreatedAt: time.Now(),
	}
	if err := wl.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	count, err := h.Records.Count(r.Context(), &wl.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wl.MatchCount = count

	if err := h.Watchlists.CreateWatchlist(r.Context(), wl); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

// HandleList answers GET /api/watchlists.
func (h *WatchlistHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.Watchlists.ListWatchlists(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.Watchlist{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet answers GET /api/watchlists/{id}.
func (h *WatchlistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wl, err := h.Watchlists.GetWatchlist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

// HandleUpdate answers PUT /api/watchlists/{id}. Name, query and enabled
// flag are replaced; evaluator-owned fields are preserved.
func (h *WatchlistHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	wl, err := h.Watchlists.GetWatchlist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req watchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wl.Name = req.Name
	wl.Query = req.Query
	if req.Enabled != nil {
		wl.Enabled = *req.Enabled
	}
	if err := wl.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	count, err := h.Records.Count(r.Context(), &wl.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wl.MatchCount = count

	if err := h.Watchlists.UpdateWatchlist(r.Context(), wl); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

// HandleDelete answers DELETE /api/watchlists/{id}. Alerts raised by the
// watchlist survive; they carry its name denormalized.
func (h *WatchlistHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Watchlists.DeleteWatchlist(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePreview answers GET /api/watchlists/preview: runs an ad-hoc query
// with search semantics so users can see what a watchlist would match
// before saving it.
func (h *WatchlistHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, total, err := h.Records.Search(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
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
