package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

const sampleRecord = `{
  "cveMetadata": {
    "cveId": "CVE-2024-3094",
    "state": "PUBLISHED",
    "datePublished": "2024-03-29T17:00:00Z",
    "dateUpdated": "2024-04-02T09:15:00Z"
  },
  "containers": {
    "cna": {
      "descriptions": [
        {"lang": "es", "value": "codigo malicioso"},
        {"lang": "en", "value": "Malicious code was discovered in the upstream tarballs of xz."}
      ],
      "metrics": [
        {"cvssV3_1": {"baseScore": 10.0, "baseSeverity": "CRITICAL"}},
        {"cvssV2_0": {"baseScore": 9.3}}
      ],
      "affected": [
        {"vendor": "Tukaani", "product": "XZ"},
        {"vendor": "tukaani", "product": "xz"},
        {"vendor": "n/a", "product": "n/a"}
      ],
      "references": [
        {"url": "https://www.openwall.com/lists/oss-security/2024/03/29/4"}
      ]
    }
  }
}`

func TestNormalize(t *testing.T) {
	n := NewNormalizer()
	rec, err := n.Normalize([]byte(sampleRecord), ports.Enrichment{})
	require.NoError(t, err)

	assert.Equal(t, "CVE-2024-3094", rec.ID)
	assert.Equal(t, domain.StatusActive, rec.Status)
	assert.Contains(t, rec.Description, "xz", "english description picked")

	assert.Equal(t, 10.0, rec.CVSS31Score)
	assert.Equal(t, domain.SeverityCritical, rec.CVSS31Severity)
	assert.Equal(t, 9.3, rec.CVSS2Score)
	assert.Equal(t, domain.SeverityCritical, rec.CVSS2Severity, "severity derived when source omits it")

	assert.Equal(t, 10.0, rec.Score)
	assert.Equal(t, domain.CVSSVersion31, rec.CVSSVersion)

	assert.Equal(t, time.Date(2024, 3, 29, 17, 0, 0, 0, time.UTC), rec.Published)
	assert.Equal(t, time.Date(2024, 4, 2, 9, 15, 0, 0, time.UTC), rec.LastModified)

	// n/a entries dropped, duplicates merged, lower-cased.
	assert.Equal(t, []string{"tukaani"}, rec.Vendors)
	assert.Equal(t, []string{"xz"}, rec.Products)
	assert.Len(t, rec.References, 1)

	assert.Nil(t, rec.EPSS)
	assert.False(t, rec.KEV)
	assert.Equal(t, domain.MaturityUnreported, rec.ExploitMaturity)
}

func TestNormalizeEnrichment(t *testing.T) {
	n := NewNormalizer()
	enrich := ports.Enrichment{
		KEV:  map[string]bool{"CVE-2024-3094": true},
		EPSS: map[string]float64{"CVE-2024-3094": 0.42},
	}
	rec, err := n.Normalize([]byte(sampleRecord), enrich)
	require.NoError(t, err)

	assert.True(t, rec.KEV)
	require.NotNil(t, rec.EPSS)
	assert.Equal(t, 0.42, *rec.EPSS)
	assert.Equal(t, domain.MaturityActive, rec.ExploitMaturity, "KEV outranks EPSS")
}

func TestNormalizeRejected(t *testing.T) {
	raw := `{"cveMetadata": {"cveId": "CVE-2020-0001", "state": "REJECTED"}}`
	rec, err := NewNormalizer().Normalize([]byte(raw), ports.Enrichment{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	assert.Zero(t, rec.Score)
	assert.Equal(t, domain.SeverityNone, rec.Severity)
}

func TestNormalizeDisputedTag(t *testing.T) {
	raw := `{
	  "cveMetadata": {"cveId": "CVE-2021-0002", "state": "PUBLISHED"},
	  "containers": {"cna": {"tags": ["disputed"]}}
	}`
	rec, err := NewNormalizer().Normalize([]byte(raw), ports.Enrichment{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, rec.Status)
}

func TestNormalizeModifiedFallsBackToPublished(t *testing.T) {
	raw := `{"cveMetadata": {"cveId": "CVE-2022-0003", "datePublished": "2022-01-15"}}`
	rec, err := NewNormalizer().Normalize([]byte(raw), ports.Enrichment{})
	require.NoError(t, err)
	assert.Equal(t, rec.Published, rec.LastModified)
}

// TestNormalizeMalformed: every malformed shape surfaces as a ParseError so
// the pipeline can skip the record instead of aborting the batch.
func TestNormalizeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":   `{broken`,
		"missing id": `{"cveMetadata": {"state": "PUBLISHED"}}`,
		"bad id":     `{"cveMetadata": {"cveId": "GHSA-xxxx"}}`,
		"bad date":   `{"cveMetadata": {"cveId": "CVE-2024-1", "datePublished": "yesterday"}}`,
	}
	n := NewNormalizer()
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := n.Normalize([]byte(raw), ports.Enrichment{})
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}
