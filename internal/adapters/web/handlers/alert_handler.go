package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

const defaultAlertListLimit = 100

// AlertHandler serves the alert inbox.
type AlertHandler struct {
	Alerts ports.AlertStore
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alerts ports.AlertStore) *AlertHandler {
	return &AlertHandler{Alerts: alerts}
}

// HandleList answers GET /api/alerts, newest first.
func (h *AlertHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	limit := defaultAlertListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	alerts, err := h.Alerts.ListAlerts(r.Context(), unreadOnly, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleUnreadCount answers GET /api/alerts/unread-count.
func (h *AlertHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Alerts.CountUnread(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// HandleSetRead answers PUT /api/alerts/{id}/read and .../unread.
func (h *AlertHandler) HandleSetRead(read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Alerts.SetAlertRead(r.Context(), mux.Vars(r)["id"], read); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDelete answers DELETE /api/alerts/{id}.
func (h *AlertHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Alerts.DeleteAlert(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAll answers POST /api/alerts/mark-all-read and .../mark-all-unread.
func (h *AlertHandler) HandleMarkAll(read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Alerts.MarkAllAlerts(r.Context(), read); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDeleteAll answers DELETE /api/alerts.
func (h *AlertHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Alerts.DeleteAllAlerts(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
