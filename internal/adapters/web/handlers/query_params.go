package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ParseQuery builds a domain query from URL parameters. Every search-style
// endpoint (live search, export, watchlist preview) goes through here so the
// accepted vocabulary stays in one place.
func ParseQuery(r *http.Request) (*domain.Query, error) {
	params := r.URL.Query()
	text := params.Get("search")
	if text == "" {
		text = params.Get("text")
	}
	q := &domain.Query{
		Text: strings.TrimSpace(text),
	}

	var err error
	if q.CVSSMinBound, err = parseFloatParam(params, "cvss_min"); err != nil {
		return nil, err
	}
	if q.CVSSMaxBound, err = parseFloatParam(params, "cvss_max"); err != nil {
		return nil, err
	}
	if q.CVSS2Min, err = parseFloatParam(params, "cvss2_min"); err != nil {
		return nil, err
	}
	if q.CVSS2Max, err = parseFloatParam(params, "cvss2_max"); err != nil {
		return nil, err
	}
	if q.CVSS30Min, err = parseFloatParam(params, "cvss30_min"); err != nil {
		return nil, err
	}
	if q.CVSS30Max, err = parseFloatParam(params, "cvss30_max"); err != nil {
		return nil, err
	}
	if q.CVSS31Min, err = parseFloatParam(params, "cvss31_min"); err != nil {
		return nil, err
	}
	if q.CVSS31Max, err = parseFloatParam(params, "cvss31_max"); err != nil {
		return nil, err
	}
	if q.EPSSMin, err = parseFloatParam(params, "epss_min"); err != nil {
		return nil, err
	}

	if q.PublishedFrom, err = parseDateParam(params, "published_from"); err != nil {
		return nil, err
	}
	if q.PublishedTo, err = parseDateParam(params, "published_to"); err != nil {
		return nil, err
	}
	if q.ModifiedFrom, err = parseDateParam(params, "modified_from"); err != nil {
		return nil, err
	}
	if q.ModifiedTo, err = parseDateParam(params, "modified_to"); err != nil {
		return nil, err
	}
	q.PublishedRelative = params.Get("published_relative")
	q.ModifiedRelative = params.Get("modified_relative")

	q.Vendors = parseListParam(params, "vendors", "vendor")
	q.Products = parseListParam(params, "products", "product")

	if q.KEV, err = parseBoolParam(params, "kev"); err != nil {
		return nil, err
	}
	q.ExploitMaturity = params.Get("exploit_maturity")

	if q.HideRejected, err = parseBoolParam(params, "hide_rejected"); err != nil {
		return nil, err
	}
	if q.HideDisputed, err = parseBoolParam(params, "hide_disputed"); err != nil {
		return nil, err
	}

	q.SortBy = params.Get("sort_by")
	q.SortOrder = params.Get("sort_order")

	if q.Limit, err = parseIntParam(params, "limit", defaultPageSize); err != nil {
		return nil, err
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset, err = parseIntParam(params, "offset", 0); err != nil {
		return nil, err
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseFloatParam(params url.Values, name string) (*float64, error) {
	raw := params.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}

func parseBoolParam(params url.Values, name string) (*bool, error) {
	raw := params.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}

func parseIntParam(params url.Values, name string, def int) (int, error) {
	raw := params.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// parseDateParam accepts RFC3339 or plain dates.
func parseDateParam(params url.Values, name string) (time.Time, error) {
	raw := params.Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s: %q", name, raw)
}

// parseListParam accepts repeated params and comma-separated values under any
// of the given names.
func parseListParam(params url.Values, names ...string) []string {
	var out []string
	for _, name := range names {
		for _, raw := range params[name] {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}
