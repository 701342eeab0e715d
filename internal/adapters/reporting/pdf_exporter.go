// Package reporting renders summary reports to downloadable formats.
package reporting

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// PDFExporter exports summary reports to PDF format.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportSummary generates a PDF from a summary report.
func (e *PDFExporter) ExportSummary(report *domain.SummaryReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addRiskScore(pdf, report)
	e.addStatistics(pdf, report)
	e.addTopRecords(pdf, report)
	e.addRecentAlerts(pdf, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, "Vulnerability Posture Summary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	dateStr := fmt.Sprintf("Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.CellFormat(0, 6, dateStr, "", 1, "L", false, 0, "")

	pdf.Ln(8)
}

func (e *PDFExporter) addRiskScore(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	r, g, b := e.getRiskColor(report.RiskScore)

	pdf.SetFillColor(r, g, b)
	pdf.Rect(20, pdf.GetY(), 170, 30, "F")

	y := pdf.GetY()

	pdf.SetFont("Arial", "B", 36)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+5)
	scoreStr := fmt.Sprintf("%.1f/10", report.RiskScore)
	pdf.CellFormat(80, 20, scoreStr, "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 18)
	pdf.SetXY(110, y+8)
	levelStr := fmt.Sprintf("%s Risk", report.RiskLevel)
	pdf.CellFormat(80, 14, levelStr, "", 0, "L", false, 0, "")

	pdf.SetY(y + 35)
	pdf.Ln(5)
}

// getRiskColor returns RGB color based on risk score.
func (e *PDFExporter) getRiskColor(score float64) (r, g, b int) {
	switch {
	case score >= 8.0:
		return 220, 53, 69 // Red (Critical)
	case score >= 6.0:
		return 255, 149, 0 // Orange (High)
	case score >= 4.0:
		return 255, 204, 0 // Yellow (Medium)
	default:
		return 52, 199, 89 // Green (Low)
	}
}

func (e *PDFExporter) addStatistics(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Corpus Overview", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	stats := []struct {
		label string
		value string
		color []int
	}{
		{"Tracked CVEs", fmt.Sprintf("%d", report.TotalRecords), []int{0, 102, 204}},
		{"Known Exploited", fmt.Sprintf("%d", report.KEVCount), []int{220, 53, 69}},
		{"Critical", fmt.Sprintf("%d", report.Severity.Critical), []int{220, 53, 69}},
		{"High", fmt.Sprintf("%d", report.Severity.High), []int{255, 149, 0}},
		{"Medium", fmt.Sprintf("%d", report.Severity.Medium), []int{255, 204, 0}},
		{"Low", fmt.Sprintf("%d", report.Severity.Low), []int{52, 199, 89}},
		{"Unscored", fmt.Sprintf("%d", report.Severity.Unscored), []int{150, 150, 150}},
		{"Unread Alerts", fmt.Sprintf("%d", report.UnreadAlerts), []int{0, 102, 204}},
	}

	// Two-column grid
	colWidth := 85.0
	for i, stat := range stats {
		x := 20.0
		if i%2 == 1 {
			x = 105.0
		}

		pdf.SetXY(x, pdf.GetY())

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(50, 7, stat.label+":", "", 0, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(stat.color[0], stat.color[1], stat.color[2])
		pdf.CellFormat(colWidth-50, 7, stat.value, "", 0, "R", false, 0, "")

		if i%2 == 1 {
			pdf.Ln(7)
		}
	}

	pdf.Ln(10)
}

func (e *PDFExporter) addTopRecords(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Highest-Scored Vulnerabilities", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(report.TopRecords) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No scored vulnerabilities on record", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)

	pdf.CellFormat(40, 8, "CVE", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "CVSS", "1", 0, "C", true, 0, "")
	pdf.CellFormat(15, 8, "KEV", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 8, "Published", "1", 0, "C", true, 0, "")
	pdf.CellFormat(70, 8, "Summary", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, rec := range report.TopRecords {
		r, g, b := e.getSeverityColor(rec.Score)

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(40, 7, rec.ID, "1", 0, "L", false, 0, "")

		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(20, 7, fmt.Sprintf("%.1f", rec.Score), "1", 0, "C", false, 0, "")

		pdf.SetTextColor(60, 60, 60)
		kev := ""
		if rec.KEV {
			kev = "yes"
		}
		pdf.CellFormat(15, 7, kev, "1", 0, "C", false, 0, "")

		published := ""
		if !rec.Published.IsZero() {
			published = rec.Published.Format("2006-01-02")
		}
		pdf.CellFormat(25, 7, published, "1", 0, "C", false, 0, "")

		summary := rec.Description
		if len(summary) > 48 {
			summary = summary[:45] + "..."
		}
		pdf.CellFormat(70, 7, summary, "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
}

// getSeverityColor returns RGB color based on CVSS score.
func (e *PDFExporter) getSeverityColor(score float64) (r, g, b int) {
	switch {
	case score >= 9:
		return 220, 53, 69 // Red
	case score >= 7:
		return 255, 149, 0 // Orange
	case score >= 4:
		return 255, 204, 0 // Yellow
	default:
		return 52, 199, 89 // Green
	}
}

func (e *PDFExporter) addRecentAlerts(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Recent Unread Alerts", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(report.RecentAlerts) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No unread alerts", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for _, a := range report.RecentAlerts {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		line := fmt.Sprintf("%s  %s  (%s, %s)",
			a.CreatedAt.Format("2006-01-02 15:04"), a.RecordID, a.WatchlistName, a.Type)
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}

	pdf.Ln(5)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report *domain.SummaryReport) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	shortID := report.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	footerText := fmt.Sprintf("Generated by cvetrack | Report ID: %s", shortID)
	pdf.CellFormat(0, 5, footerText, "", 1, "C", false, 0, "")
}
