package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSeverityFromScore verifies the qualitative rating thresholds,
// especially the boundary scores.
func TestSeverityFromScore(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{10.0, SeverityCritical},
		{9.0, SeverityCritical},
		{8.9, SeverityHigh},
		{7.0, SeverityHigh},
		{6.9, SeverityMedium},
		{4.0, SeverityMedium},
		{3.9, SeverityLow},
		{0.1, SeverityLow},
		{0.0, SeverityNone},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SeverityFromScore(c.score), "score %.1f", c.score)
	}
}

// TestDerivePrimaryPrefersNewestVersion ensures 3.1 wins over 3.0 wins
// over 2.0 when several metric versions are present.
func TestDerivePrimaryPrefersNewestVersion(t *testing.T) {
	rec := VulnerabilityRecord{
		CVSS2Score: 5.0, CVSS2Severity: SeverityMedium,
		CVSS30Score: 7.5, CVSS30Severity: SeverityHigh,
		CVSS31Score: 9.8, CVSS31Severity: SeverityCritical,
	}
	rec.DerivePrimary()
	assert.Equal(t, 9.8, rec.Score)
	assert.Equal(t, SeverityCritical, rec.Severity)
	assert.Equal(t, CVSSVersion31, rec.CVSSVersion)

	rec.CVSS31Score, rec.CVSS31Severity = 0, ""
	rec.DerivePrimary()
	assert.Equal(t, 7.5, rec.Score)
	assert.Equal(t, CVSSVersion30, rec.CVSSVersion)

	rec.CVSS30Score, rec.CVSS30Severity = 0, ""
	rec.DerivePrimary()
	assert.Equal(t, 5.0, rec.Score)
	assert.Equal(t, CVSSVersion20, rec.CVSSVersion)
}

// TestDerivePrimaryUnscored clears the triple when no metric exists.
func TestDerivePrimaryUnscored(t *testing.T) {
	rec := VulnerabilityRecord{Score: 9.1, Severity: SeverityCritical, CVSSVersion: CVSSVersion31}
	rec.DerivePrimary()
	assert.Zero(t, rec.Score)
	assert.Equal(t, SeverityNone, rec.Severity)
	assert.Empty(t, rec.CVSSVersion)
}

func TestDeriveExploitMaturity(t *testing.T) {
	epss := func(v float64) *float64 { return &v }

	cases := []struct {
		name string
		rec  VulnerabilityRecord
		want string
	}{
		{"kev wins", VulnerabilityRecord{KEV: true, EPSS: epss(0.1)}, MaturityActive},
		{"high epss", VulnerabilityRecord{EPSS: epss(0.5)}, MaturityLikely},
		{"low epss", VulnerabilityRecord{EPSS: epss(0.01)}, MaturityPossible},
		{"no signal", VulnerabilityRecord{}, MaturityUnreported},
		{"explicit value kept", VulnerabilityRecord{ExploitMaturity: "weaponized", KEV: true}, "weaponized"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.rec.DeriveExploitMaturity()
			assert.Equal(t, c.want, c.rec.ExploitMaturity)
		})
	}
}
