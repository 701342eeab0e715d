package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
)

// ParseError marks a single malformed record. The pipeline logs it and
// continues with the rest of the batch.
type ParseError struct {
	ID  string
	Err error
}

func (e *ParseError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed record: %v", e.Err)
	}
	return fmt.Sprintf("malformed record %s: %v", e.ID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawRecord mirrors the source repository's per-record JSON document.
type rawRecord struct {
	CVEMetadata struct {
		CVEID         string `json:"cveId"`
		State         string `json:"state"` // PUBLISHED or REJECTED
		DatePublished string `json:"datePublished"`
		DateUpdated   string `json:"dateUpdated"`
	} `json:"cveMetadata"`
	Containers struct {
		CNA struct {
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics []struct {
				CVSSV31 *rawCVSS `json:"cvssV3_1,omitempty"`
				CVSSV30 *rawCVSS `json:"cvssV3_0,omitempty"`
				CVSSV2  *rawCVSS `json:"cvssV2_0,omitempty"`
				Other   *struct {
					Type    string `json:"type"`
					Content struct {
						Value string `json:"value"`
					} `json:"content"`
				} `json:"other,omitempty"`
			} `json:"metrics"`
			Affected []struct {
				Vendor  string `json:"vendor"`
				Product string `json:"product"`
			} `json:"affected"`
			References []struct {
				URL string `json:"url"`
			} `json:"references"`
			Tags []string `json:"tags"`
		} `json:"cna"`
	} `json:"containers"`
}

type rawCVSS struct {
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

// Normalizer implements ports.Normalizer for the source's JSON documents.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts one raw record into its canonical form, computing
// per-version severity buckets, the primary triple and enrichment-derived
// fields. Malformed input yields a *ParseError.
func (n *Normalizer) Normalize(raw []byte, enrich ports.Enrichment) (*domain.VulnerabilityRecord, error) {
	var doc rawRecord
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	id := doc.CVEMetadata.CVEID
	if id == "" {
		return nil, &ParseError{Err: fmt.Errorf("missing cveId")}
	}
	if !strings.HasPrefix(id, "CVE-") {
		return nil, &ParseError{ID: id, Err: fmt.Errorf("invalid record identifier")}
	}

	rec := &domain.VulnerabilityRecord{
		ID:     id,
		Status: domain.StatusActive,
	}

	if strings.EqualFold(doc.CVEMetadata.State, "REJECTED") {
		rec.Status = domain.StatusRejected
	}
	for _, tag := range doc.Containers.CNA.Tags {
		if strings.EqualFold(tag, "disputed") && rec.Status == domain.StatusActive {
			rec.Status = domain.StatusDisputed
		}
	}

	var err error
	if rec.Published, err = parseDate(doc.CVEMetadata.DatePublished); err != nil {
		return nil, &ParseError{ID: id, Err: fmt.Errorf("bad datePublished: %w", err)}
	}
	if rec.LastModified, err = parseDate(doc.CVEMetadata.DateUpdated); err != nil {
		return nil, &ParseError{ID: id, Err: fmt.Errorf("bad dateUpdated: %w", err)}
	}
	if rec.LastModified.IsZero() {
		rec.LastModified = rec.Published
	}

	rec.Description = pickDescription(doc)

	for _, m := range doc.Containers.CNA.Metrics {
		if m.CVSSV31 != nil {
			rec.CVSS31Score, rec.CVSS31Severity = bucket(m.CVSSV31)
		}
		if m.CVSSV30 != nil {
			rec.CVSS30Score, rec.CVSS30Severity = bucket(m.CVSSV30)
		}
		if m.CVSSV2 != nil {
			rec.CVSS2Score, rec.CVSS2Severity = bucket(m.CVSSV2)
		}
		if m.Other != nil && strings.EqualFold(m.Other.Type, "exploit-maturity") {
			rec.ExploitMaturity = strings.ToLower(m.Other.Content.Value)
		}
	}
	rec.DerivePrimary()

	rec.Vendors, rec.Products = affectedSets(doc)

	for _, ref := range doc.Containers.CNA.References {
		if ref.URL != "" {
			rec.References = append(rec.References, ref.URL)
		}
	}
	sort.Strings(rec.References)

	if epss, ok := enrich.EPSS[id]; ok {
		v := epss
		rec.EPSS = &v
	}
	rec.KEV = enrich.KEV[id]
	rec.DeriveExploitMaturity()

	return rec, nil
}

// bucket returns the score and severity for one CVSS metric, deriving the
// severity from the score when the source omits it.
func bucket(m *rawCVSS) (float64, string) {
	sev := strings.ToUpper(m.BaseSeverity)
	if sev == "" {
		sev = domain.SeverityFromScore(m.BaseScore)
	}
	return m.BaseScore, sev
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func pickDescription(doc rawRecord) string {
	for _, d := range doc.Containers.CNA.Descriptions {
		if d.Lang == "en" || strings.HasPrefix(d.Lang, "en-") {
			return d.Value
		}
	}
	if len(doc.Containers.CNA.Descriptions) > 0 {
		return doc.Containers.CNA.Descriptions[0].Value
	}
	return ""
}

// affectedSets collects lower-cased, deduped, sorted vendor and product
// names from the affected entries.
func affectedSets(doc rawRecord) (vendors, products []string) {
	vset := make(map[string]bool)
	pset := make(map[string]bool)
	for _, a := range doc.Containers.CNA.Affected {
		if v := strings.ToLower(strings.TrimSpace(a.Vendor)); v != "" && v != "n/a" {
			vset[v] = true
		}
		if p := strings.ToLower(strings.TrimSpace(a.Product)); p != "" && p != "n/a" {
			pset[p] = true
		}
	}
	for v := range vset {
		vendors = append(vendors, v)
	}
	for p := range pset {
		products = append(products, p)
	}
	sort.Strings(vendors)
	sort.Strings(products)
	return vendors, products
}
