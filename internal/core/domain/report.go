package domain

import "time"

// SeverityBreakdown counts active records per severity bucket.
type SeverityBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unscored int `json:"unscored"`
}

// SummaryReport is a point-in-time posture snapshot: corpus statistics,
// an overall risk score, the highest-scored active records, and recent
// unread alerts.
type SummaryReport struct {
	ID           string                `json:"id"`
	GeneratedAt  time.Time             `json:"generated_at"`
	TotalRecords int                   `json:"total_records"`
	Severity     SeverityBreakdown     `json:"severity"`
	KEVCount     int                   `json:"kev_count"`
	RiskScore    float64               `json:"risk_score"`
	RiskLevel    string                `json:"risk_level"`
	TopRecords   []VulnerabilityRecord `json:"top_records"`
	UnreadAlerts int                   `json:"unread_alerts"`
	RecentAlerts []Alert               `json:"recent_alerts"`
}
