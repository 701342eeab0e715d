// Package reporting builds posture summary reports over the tracked corpus.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

const (
	topRecordCount   = 10
	recentAlertCount = 10
)

// Generator assembles summary reports from the record and alert stores.
type Generator struct {
	records  ports.RecordStore
	alerts   ports.AlertStore
	riskCalc *RiskCalculator
	now      func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(records ports.RecordStore, alerts ports.AlertStore) *Generator {
	return &Generator{
		records:  records,
		alerts:   alerts,
		riskCalc: NewRiskCalculator(),
		now:      time.Now,
	}
}

// Generate builds a summary report for the current state of the corpus.
func (g *Generator) Generate(ctx context.Context) (*domain.SummaryReport, error) {
	stats, err := g.records.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather record stats: %w", err)
	}

	breakdown := domain.SeverityBreakdown{
		Critical: stats.BySeverity[domain.SeverityCritical],
		High:     stats.BySeverity[domain.SeverityHigh],
		Medium:   stats.BySeverity[domain.SeverityMedium],
		Low:      stats.BySeverity[domain.SeverityLow],
		Unscored: stats.BySeverity[domain.SeverityNone],
	}

	score := g.riskCalc.CalculateOverallRisk(
		breakdown.Critical, breakdown.High, breakdown.Medium, breakdown.Low,
		stats.KEVCount, stats.Total)

	top, _, err := g.records.Search(ctx, &domain.Query{
		SortBy:    domain.SortByCVSS,
		SortOrder: domain.SortDesc,
		Limit:     topRecordCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top records: %w", err)
	}

	unread, err := g.alerts.CountUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	recent, err := g.alerts.ListAlerts(ctx, true, recentAlertCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent alerts: %w", err)
	}

	return &domain.SummaryReport{
		ID:           uuid.New().String(),
		GeneratedAt:  g.now(),
		TotalRecords: stats.Total,
		Severity:     breakdown,
		KEVCount:     stats.KEVCount,
		RiskScore:    score,
		RiskLevel:    g.riskCalc.GetRiskLevel(score),
		TopRecords:   top,
		UnreadAlerts: unread,
		RecentAlerts: recent,
	}, nil
}
