package recordstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// buildWhere translates a domain.Query into a SQL WHERE clause. The
// translation must agree with Query.Matches; the watchlist evaluator
// depends on both paths selecting the same records.
func (s *Store) buildWhere(q *domain.Query) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.HideRejectedEffective() {
		conds = append(conds, "status != ?")
		args = append(args, domain.StatusRejected)
	}
	if q.HideDisputedEffective() {
		conds = append(conds, "status != ?")
		args = append(args, domain.StatusDisputed)
	}

	// Free text: every token must prefix some word of the normalized search
	// column. Padding both sides with a space turns word-prefix into a
	// substring test on " token".
	for _, tok := range domain.TextTokens(q.Text) {
		conds = append(conds, "(' ' || search_text || ' ') LIKE '% ' || ? || '%'")
		args = append(args, tok)
	}

	// Primary CVSS bounds apply to every record; 0/10 bounds are valid but
	// select everything.
	if domain.IsConstraining(q.CVSSMinBound, nil) {
		conds = append(conds, "score >= ?")
		args = append(args, *q.CVSSMinBound)
	}
	if domain.IsConstraining(nil, q.CVSSMaxBound) {
		conds = append(conds, "score <= ?")
		args = append(args, *q.CVSSMaxBound)
	}

	// Per-version bounds: a record lacking the version (score 0) passes
	// only when the minimum does not constrain.
	for _, v := range []struct {
		col      string
		min, max *float64
	}{
		{"cvss2_score", q.CVSS2Min, q.CVSS2Max},
		{"cvss30_score", q.CVSS30Min, q.CVSS30Max},
		{"cvss31_score", q.CVSS31Min, q.CVSS31Max},
	} {
		if domain.IsConstraining(v.min, nil) {
			conds = append(conds, v.col+" >= ?")
			args = append(args, *v.min)
		}
		if domain.IsConstraining(nil, v.max) {
			conds = append(conds, "("+v.col+" = 0 OR "+v.col+" <= ?)")
			args = append(args, *v.max)
		}
	}

	now := s.now()
	if w := q.PublishedWindow(now); !w.From.IsZero() || !w.To.IsZero() {
		if !w.From.IsZero() {
			conds = append(conds, "published >= ?")
			args = append(args, w.From.UTC().Format(time.RFC3339))
		}
		if !w.To.IsZero() {
			conds = append(conds, "published <= ?")
			args = append(args, w.To.UTC().Format(time.RFC3339))
		}
	}
	if w := q.ModifiedWindow(now); !w.From.IsZero() || !w.To.IsZero() {
		if !w.From.IsZero() {
			conds = append(conds, "last_modified >= ?")
			args = append(args, w.From.UTC().Format(time.RFC3339))
		}
		if !w.To.IsZero() {
			conds = append(conds, "last_modified <= ?")
			args = append(args, w.To.UTC().Format(time.RFC3339))
		}
	}

	// Vendors/products are stored as lower-cased JSON arrays; match-any via
	// quoted-element containment.
	if len(q.Vendors) > 0 {
		conds = append(conds, jsonAnyClause("vendors", q.Vendors, &args))
	}
	if len(q.Products) > 0 {
		conds = append(conds, jsonAnyClause("products", q.Products, &args))
	}

	if q.KEV != nil {
		conds = append(conds, "kev = ?")
		args = append(args, boolToInt(*q.KEV))
	}
	if q.EPSSMin != nil && *q.EPSSMin > 0 {
		conds = append(conds, "epss IS NOT NULL AND epss >= ?")
		args = append(args, *q.EPSSMin)
	}
	if q.ExploitMaturity != "" {
		conds = append(conds, "exploit_maturity = ?")
		args = append(args, strings.ToLower(q.ExploitMaturity))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func jsonAnyClause(column string, values []string, args *[]interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = column + ` LIKE '%"' || ? || '"%'`
		*args = append(*args, strings.ToLower(v))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// sortColumns whitelists order-by targets. EPSS sorts NULLs as -1 so
// unknown probabilities rank below zero.
var sortColumns = map[string]string{
	domain.SortByPublished: "published",
	domain.SortByModified:  "last_modified",
	domain.SortByCVSS:      "score",
	domain.SortByEPSS:      "COALESCE(epss, -1)",
	domain.SortByID:        "cve_id",
}

// orderClause applies the sort whitelist. Default is publication date
// descending; ties always break by record id ascending for determinism.
func orderClause(q *domain.Query) string {
	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = "published"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, domain.SortAsc) {
		dir = "ASC"
	}
	if col == "cve_id" {
		return fmt.Sprintf(" ORDER BY cve_id %s", dir)
	}
	return fmt.Sprintf(" ORDER BY %s %s, cve_id ASC", col, dir)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*domain.VulnerabilityRecord, error) {
	var rec domain.VulnerabilityRecord
	var published, lastModified, vendors, products, refs string
	var epss sql.NullFloat64
	var kev int

	err := row.Scan(
		&rec.ID, &rec.Description,
		&rec.CVSS2Score, &rec.CVSS2Severity, &rec.CVSS30Score, &rec.CVSS30Severity,
		&rec.CVSS31Score, &rec.CVSS31Severity, &rec.Score, &rec.Severity, &rec.CVSSVersion,
		&published, &lastModified, &epss, &kev, &rec.ExploitMaturity, &rec.Status,
		&vendors, &products, &refs,
	)
	if err != nil {
		return nil, err
	}

	rec.Published, _ = time.Parse(time.RFC3339, published)
	rec.LastModified, _ = time.Parse(time.RFC3339, lastModified)
	if epss.Valid {
		v := epss.Float64
		rec.EPSS = &v
	}
	rec.KEV = kev != 0
	json.Unmarshal([]byte(vendors), &rec.Vendors)
	json.Unmarshal([]byte(products), &rec.Products)
	json.Unmarshal([]byte(refs), &rec.References)

	return &rec, nil
}
