package handlers

import (
	"fmt"
	"net/http"
	"time"

	pdfreporting "github.com/lcalzada-xor/cvetrack/internal/adapters/reporting"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/export"
	"github.com/lcalzada-xor/cvetrack/internal/core/services/reporting"
)

// exportLimit caps how many rows a single export pulls.
const exportLimit = 10000

// ExportHandler serves data export and report download.
type ExportHandler struct {
	Records   ports.RecordStore
	Alerts    ports.AlertStore
	Generator *reporting.Generator
	PDF       *pdfreporting.PDFExporter
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(records ports.RecordStore, alerts ports.AlertStore, generator *reporting.Generator, pdf *pdfreporting.PDFExporter) *ExportHandler {
	return &ExportHandler{Records: records, Alerts: alerts, Generator: generator, PDF: pdf}
}

// HandleExport answers GET /api/export. The filter vocabulary is the same as
// the search endpoint; format is json or csv, type is records or alerts.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	if r.URL.Query().Get("type") == "alerts" {
		h.exportAlerts(w, r, format)
		return
	}

	q, err := ParseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Limit = exportLimit
	q.Offset = 0

	records, _, err := h.Records.Search(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stamp := time.Now().Format("20060102-150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=cves-%s.csv", stamp))
		if err := export.ExportCSV(w, records); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=cves-%s.json", stamp))
		if err := export.ExportJSON(w, records); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func (h *ExportHandler) exportAlerts(w http.ResponseWriter, r *http.Request, format string) {
	alerts, err := h.Alerts.ListAlerts(r.Context(), false, exportLimit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stamp := time.Now().Format("20060102-150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alerts-%s.csv", stamp))
		if err := export.ExportAlertsCSV(w, alerts); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alerts-%s.json", stamp))
		if err := export.ExportAlertsJSON(w, alerts); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// HandleExportPDF answers GET /api/export/pdf with a posture summary report.
func (h *ExportHandler) HandleExportPDF(w http.ResponseWriter, r *http.Request) {
	report, err := h.Generator.Generate(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := h.PDF.ExportSummary(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=summary-%s.pdf", report.GeneratedAt.Format("20060102-150405")))
	_, _ = w.Write(data)
}

// HandleSummary answers GET /api/reports/summary with the report as JSON.
func (h *ExportHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.Generator.Generate(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
