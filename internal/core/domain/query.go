package domain

import (
	"errors"
	"strings"
	"time"
)

// Domain errors for query validation.
var (
	ErrInvalidScoreRange = errors.New("CVSS bounds must be between 0 and 10 with min <= max")
	ErrInvalidEPSS       = errors.New("EPSS minimum must be between 0 and 1")
	ErrInvalidDateRange  = errors.New("date range start cannot be later than its end")
	ErrUnknownPreset     = errors.New("unknown relative date preset")
	ErrUnknownSortField  = errors.New("unknown sort field")
)

// Sort fields accepted by the query engine.
const (
	SortByPublished = "published"
	SortByModified  = "modified"
	SortByCVSS      = "cvss"
	SortByEPSS      = "epss"
	SortByID        = "id"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// CVSS and EPSS domain bounds. Absent minimums default to the domain
// minimum and absent maximums to the domain maximum.
const (
	CVSSMin = 0.0
	CVSSMax = 10.0
	EPSSMax = 1.0
)

// relativePresets maps a named window to its start time. The vocabulary is
// data, not code: adding a preset is one more entry here.
var relativePresets = map[string]func(now time.Time) time.Time{
	"today": func(now time.Time) time.Time {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	},
	"last_7_days":  func(now time.Time) time.Time { return now.AddDate(0, 0, -7) },
	"last_30_days": func(now time.Time) time.Time { return now.AddDate(0, 0, -30) },
	"last_90_days": func(now time.Time) time.Time { return now.AddDate(0, 0, -90) },
	"ytd": func(now time.Time) time.Time {
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	},
}

// RelativePresets returns the known preset names.
func RelativePresets() []string {
	names := make([]string, 0, len(relativePresets))
	for name := range relativePresets {
		names = append(names, name)
	}
	return names
}

// DateRange is a resolved [From, To] window. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (dr DateRange) Contains(t time.Time) bool {
	if !dr.From.IsZero() && t.Before(dr.From) {
		return false
	}
	if !dr.To.IsZero() && t.After(dr.To) {
		return false
	}
	return true
}

// Query defines criteria for filtering and searching vulnerability records.
// It follows the Specification Pattern: Matches encapsulates the predicate so
// the SQL search path and in-memory watchlist evaluation stay consistent.
// A watchlist's stored query leaves SortBy/SortOrder/Limit/Offset empty.
type Query struct {
	Text string `json:"text,omitempty"` // free text over id + description

	// Primary CVSS bounds. nil = unconstrained.
	CVSSMinBound *float64 `json:"cvss_min,omitempty"`
	CVSSMaxBound *float64 `json:"cvss_max,omitempty"`

	// Per-version CVSS bounds.
	CVSS2Min  *float64 `json:"cvss2_min,omitempty"`
	CVSS2Max  *float64 `json:"cvss2_max,omitempty"`
	CVSS30Min *float64 `json:"cvss30_min,omitempty"`
	CVSS30Max *float64 `json:"cvss30_max,omitempty"`
	CVSS31Min *float64 `json:"cvss31_min,omitempty"`
	CVSS31Max *float64 `json:"cvss31_max,omitempty"`

	// Date windows. A relative preset overrides its absolute pair when
	// both are given.
	PublishedFrom     time.Time `json:"published_from,omitempty"`
	PublishedTo       time.Time `json:"published_to,omitempty"`
	PublishedRelative string    `json:"published_relative,omitempty"`
	ModifiedFrom      time.Time `json:"modified_from,omitempty"`
	ModifiedTo        time.Time `json:"modified_to,omitempty"`
	ModifiedRelative  string    `json:"modified_relative,omitempty"`

	Vendors  []string `json:"vendors,omitempty"`  // match-any
	Products []string `json:"products,omitempty"` // match-any

	KEV             *bool    `json:"kev,omitempty"`
	EPSSMin         *float64 `json:"epss_min,omitempty"`
	ExploitMaturity string   `json:"exploit_maturity,omitempty"`

	// Status visibility. nil means the engine default (hide rejected,
	// show disputed).
	HideRejected *bool `json:"hide_rejected,omitempty"`
	HideDisputed *bool `json:"hide_disputed,omitempty"`

	// Live-search ordering and pagination; unused in stored queries.
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// HideRejectedEffective resolves the rejected-visibility default.
func (q *Query) HideRejectedEffective() bool {
	if q.HideRejected == nil {
		return true
	}
	return *q.HideRejected
}

// HideDisputedEffective resolves the disputed-visibility default.
func (q *Query) HideDisputedEffective() bool {
	if q.HideDisputed == nil {
		return false
	}
	return *q.HideDisputed
}

// scoreRange resolves an optional bound pair against domain defaults.
func scoreRange(min, max *float64) (lo, hi float64) {
	lo, hi = CVSSMin, CVSSMax
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	}
	return lo, hi
}

// IsConstraining reports whether a bound pair actually narrows the domain.
// Bounds of exactly 0/10 are valid predicates but constrain nothing; the
// store's SQL translation skips clauses for such bounds, and filter-chip
// display follows the same rule.
func IsConstraining(min, max *float64) bool {
	lo, hi := scoreRange(min, max)
	return lo > CVSSMin || hi < CVSSMax
}

// PublishedWindow resolves the publication date window. The relative preset
// wins over the absolute pair when both are set.
func (q *Query) PublishedWindow(now time.Time) DateRange {
	if q.PublishedRelative != "" {
		if start, ok := relativePresets[q.PublishedRelative]; ok {
			return DateRange{From: start(now)}
		}
	}
	return DateRange{From: q.PublishedFrom, To: q.PublishedTo}
}

// ModifiedWindow resolves the last-modified date window.
func (q *Query) ModifiedWindow(now time.Time) DateRange {
	if q.ModifiedRelative != "" {
		if start, ok := relativePresets[q.ModifiedRelative]; ok {
			return DateRange{From: start(now)}
		}
	}
	return DateRange{From: q.ModifiedFrom, To: q.ModifiedTo}
}

// Validate ensures the query is logically sound before it reaches the store
// or gets persisted inside a watchlist.
func (q *Query) Validate() error {
	for _, pair := range [][2]*float64{
		{q.CVSSMinBound, q.CVSSMaxBound},
		{q.CVSS2Min, q.CVSS2Max},
		{q.CVSS30Min, q.CVSS30Max},
		{q.CVSS31Min, q.CVSS31Max},
	} {
		lo, hi := scoreRange(pair[0], pair[1])
		if lo < CVSSMin || hi > CVSSMax || lo > hi {
			return ErrInvalidScoreRange
		}
	}
	if q.EPSSMin != nil && (*q.EPSSMin < 0 || *q.EPSSMin > EPSSMax) {
		return ErrInvalidEPSS
	}
	for _, preset := range []string{q.PublishedRelative, q.ModifiedRelative} {
		if preset != "" {
			if _, ok := relativePresets[preset]; !ok {
				return ErrUnknownPreset
			}
		}
	}
	if !q.PublishedFrom.IsZero() && !q.PublishedTo.IsZero() && q.PublishedFrom.After(q.PublishedTo) {
		return ErrInvalidDateRange
	}
	if !q.ModifiedFrom.IsZero() && !q.ModifiedTo.IsZero() && q.ModifiedFrom.After(q.ModifiedTo) {
		return ErrInvalidDateRange
	}
	switch q.SortBy {
	case "", SortByPublished, SortByModified, SortByCVSS, SortByEPSS, SortByID:
	default:
		return ErrUnknownSortField
	}
	return nil
}

// Matches implements the Specification Pattern against a single record.
// It must agree with the SQL translation in the record store; the watchlist
// evaluator relies on that equivalence.
func (q *Query) Matches(r *VulnerabilityRecord, now time.Time) bool {
	if r == nil {
		return false
	}

	// Status visibility
	if q.HideRejectedEffective() && r.Status == StatusRejected {
		return false
	}
	if q.HideDisputedEffective() && r.Status == StatusDisputed {
		return false
	}

	// Free text: token prefix match over id and description.
	if q.Text != "" && !textMatches(q.Text, r) {
		return false
	}

	// CVSS bounds
	if lo, hi := scoreRange(q.CVSSMinBound, q.CVSSMaxBound); r.Score < lo || r.Score > hi {
		return false
	}
	if !versionScoreInRange(r.CVSS2Score, q.CVSS2Min, q.CVSS2Max) {
		return false
	}
	if !versionScoreInRange(r.CVSS30Score, q.CVSS30Min, q.CVSS30Max) {
		return false
	}
	if !versionScoreInRange(r.CVSS31Score, q.CVSS31Min, q.CVSS31Max) {
		return false
	}

	// Date windows
	if !q.PublishedWindow(now).Contains(r.Published) {
		return false
	}
	if !q.ModifiedWindow(now).Contains(r.LastModified) {
		return false
	}

	// Vendor / product match-any
	if len(q.Vendors) > 0 && !anyOverlap(q.Vendors, r.Vendors) {
		return false
	}
	if len(q.Products) > 0 && !anyOverlap(q.Products, r.Products) {
		return false
	}

	// Enrichment
	if q.KEV != nil && r.KEV != *q.KEV {
		return false
	}
	if q.EPSSMin != nil && *q.EPSSMin > 0 {
		if r.EPSS == nil || *r.EPSS < *q.EPSSMin {
			return false
		}
	}
	if q.ExploitMaturity != "" && !strings.EqualFold(r.ExploitMaturity, q.ExploitMaturity) {
		return false
	}

	return true
}

// versionScoreInRange applies per-version bounds. A record without the
// version (score 0) only fails when the minimum actually constrains.
func versionScoreInRange(score float64, min, max *float64) bool {
	lo, hi := scoreRange(min, max)
	if score == 0 {
		return lo == CVSSMin
	}
	return score >= lo && score <= hi
}

// TextTokens splits free text into lower-cased search tokens on any
// non-alphanumeric boundary, matching the store's text normalization.
// "CVE-2024" becomes ["cve", "2024"].
func TextTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// textMatches performs token prefix matching against the record id and
// description: every query token must prefix some word of the record.
// Mirrors the prefix-LIKE translation in the record store.
func textMatches(text string, r *VulnerabilityRecord) bool {
	words := TextTokens(r.ID + " " + r.Description)
	for _, token := range TextTokens(text) {
		found := false
		for _, w := range words {
			if strings.HasPrefix(w, token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func anyOverlap(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
