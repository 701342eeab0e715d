// Package export serializes query results for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// ExportJSON writes records as an indented JSON array.
func ExportJSON(w io.Writer, records []domain.VulnerabilityRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

// ExportCSV writes records as CSV with headers.
func ExportCSV(w io.Writer, records []domain.VulnerabilityRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{
		"ID", "Severity", "CVSS", "CVSSVersion",
		"CVSS2", "CVSS30", "CVSS31",
		"EPSS", "KEV", "ExploitMaturity", "Status",
		"Published", "LastModified",
		"Vendors", "Products", "Description",
	}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, r := range records {
		epss := ""
		if r.EPSS != nil {
			epss = fmt.Sprintf("%.5f", *r.EPSS)
		}
		row := []string{
			r.ID,
			r.Severity,
			formatScore(r.Score),
			r.CVSSVersion,
			formatScore(r.CVSS2Score),
			formatScore(r.CVSS30Score),
			formatScore(r.CVSS31Score),
			epss,
			fmt.Sprintf("%t", r.KEV),
			r.ExploitMaturity,
			r.Status,
			formatDate(r.Published),
			formatDate(r.LastModified),
			strings.Join(r.Vendors, ";"),
			strings.Join(r.Products, ";"),
			r.Description,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

// ExportAlertsJSON writes alerts as an indented JSON array.
func ExportAlertsJSON(w io.Writer, alerts []domain.Alert) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(alerts)
}

// ExportAlertsCSV writes alerts as CSV.
func ExportAlertsCSV(w io.Writer, alerts []domain.Alert) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{"ID", "CVE", "Watchlist", "WatchlistName", "Type", "CreatedAt", "Read"}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, a := range alerts {
		row := []string{
			a.ID,
			a.RecordID,
			a.WatchlistID,
			a.WatchlistName,
			a.Type,
			a.CreatedAt.Format(time.RFC3339),
			fmt.Sprintf("%t", a.Read),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func formatScore(s float64) string {
	if s == 0 {
		return ""
	}
	return fmt.Sprintf("%.1f", s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
