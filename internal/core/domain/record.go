package domain

import "time"

// Severity buckets derived from a CVSS base score.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
	SeverityNone     = ""
)

// Record status dimension. REJECTED and DISPUTED records are hidden by
// default search behavior unless the caller overrides it.
const (
	StatusActive   = "ACTIVE"
	StatusRejected = "REJECTED"
	StatusDisputed = "DISPUTED"
)

// Exploit maturity categories, derived during normalization.
const (
	MaturityActive     = "active"
	MaturityLikely     = "likely"
	MaturityPossible   = "possible"
	MaturityUnreported = "unreported"
)

// CVSS schema versions, newest first. The primary score/severity triple is
// always taken from the highest version that carries a metric.
const (
	CVSSVersion31 = "3.1"
	CVSSVersion30 = "3.0"
	CVSSVersion20 = "2.0"
)

// VulnerabilityRecord is the canonical, normalized form of one CVE entry.
// Records are created and updated only by the ingestion pipeline.
type VulnerabilityRecord struct {
	ID          string `json:"cve_id"` // e.g., "CVE-2024-3094"
	Description string `json:"description"`

	// Per-schema-version CVSS metrics. A zero score means the version is
	// absent from the source record.
	CVSS2Score     float64 `json:"cvss2_score,omitempty"`
	CVSS2Severity  string  `json:"cvss2_severity,omitempty"`
	CVSS30Score    float64 `json:"cvss30_score,omitempty"`
	CVSS30Severity string  `json:"cvss30_severity,omitempty"`
	CVSS31Score    float64 `json:"cvss31_score,omitempty"`
	CVSS31Severity string  `json:"cvss31_severity,omitempty"`

	// Primary triple, derived from the highest available CVSS version.
	// Kept denormalized for backward-compatible consumers.
	Score       float64 `json:"score"`
	Severity    string  `json:"severity"`
	CVSSVersion string  `json:"cvss_version,omitempty"`

	Published    time.Time `json:"published"`
	LastModified time.Time `json:"last_modified"`

	// Enrichment
	EPSS            *float64 `json:"epss,omitempty"` // 0..1, nil when unknown
	KEV             bool     `json:"kev"`
	ExploitMaturity string   `json:"exploit_maturity"`

	Status string `json:"status"`

	Vendors  []string `json:"vendors,omitempty"`  // lower-cased, deduped
	Products []string `json:"products,omitempty"` // lower-cased, deduped

	References []string `json:"references,omitempty"`
}

// SeverityFromScore maps a CVSS base score to its severity bucket.
// Pure function; thresholds follow the CVSS qualitative rating scale.
func SeverityFromScore(score float64) string {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// DerivePrimary recomputes the primary score/severity/version triple from
// the per-version metrics. 3.1 wins over 3.0 wins over 2.0.
func (r *VulnerabilityRecord) DerivePrimary() {
	switch {
	case r.CVSS31Score > 0:
		r.Score, r.Severity, r.CVSSVersion = r.CVSS31Score, r.CVSS31Severity, CVSSVersion31
	case r.CVSS30Score > 0:
		r.Score, r.Severity, r.CVSSVersion = r.CVSS30Score, r.CVSS30Severity, CVSSVersion30
	case r.CVSS2Score > 0:
		r.Score, r.Severity, r.CVSSVersion = r.CVSS2Score, r.CVSS2Severity, CVSSVersion20
	default:
		r.Score, r.Severity, r.CVSSVersion = 0, SeverityNone, ""
	}
}

// DeriveExploitMaturity computes the maturity category from enrichment data.
// An explicit value supplied by the feed takes precedence and is kept as-is.
func (r *VulnerabilityRecord) DeriveExploitMaturity() {
	if r.ExploitMaturity != "" {
		return
	}
	switch {
	case r.KEV:
		r.ExploitMaturity = MaturityActive
	case r.EPSS != nil && *r.EPSS >= 0.5:
		r.ExploitMaturity = MaturityLikely
	case r.EPSS != nil:
		r.ExploitMaturity = MaturityPossible
	default:
		r.ExploitMaturity = MaturityUnreported
	}
}
