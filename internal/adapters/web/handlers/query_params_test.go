package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

func parse(t *testing.T, rawQuery string) (*domain.Query, error) {
	t.Helper()
	r := httptest.NewRequest("GET", "/api/cves?"+rawQuery, nil)
	return ParseQuery(r)
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := parse(t, "")
	require.NoError(t, err)
	assert.Empty(t, q.Text)
	assert.Nil(t, q.CVSSMinBound)
	assert.Nil(t, q.KEV)
	assert.Nil(t, q.HideRejected, "engine default applies downstream")
	assert.Equal(t, defaultPageSize, q.Limit)
	assert.Zero(t, q.Offset)
}

func TestParseQueryFull(t *testing.T) {
	q, err := parse(t, "search=xz+backdoor&cvss_min=7&cvss_max=9.9&cvss31_min=8"+
		"&epss_min=0.5&kev=true&exploit_maturity=active"+
		"&published_relative=last_7_days&modified_from=2024-01-01"+
		"&vendors=acme&vendors=globex,initech&products=widget"+
		"&hide_rejected=false&hide_disputed=true"+
		"&sort_by=cvss&sort_order=asc&limit=25&offset=50")
	require.NoError(t, err)

	assert.Equal(t, "xz backdoor", q.Text)
	require.NotNil(t, q.CVSSMinBound)
	assert.Equal(t, 7.0, *q.CVSSMinBound)
	assert.Equal(t, 9.9, *q.CVSSMaxBound)
	assert.Equal(t, 8.0, *q.CVSS31Min)
	assert.Equal(t, 0.5, *q.EPSSMin)
	require.NotNil(t, q.KEV)
	assert.True(t, *q.KEV)
	assert.Equal(t, "active", q.ExploitMaturity)
	assert.Equal(t, "last_7_days", q.PublishedRelative)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.ModifiedFrom)
	assert.Equal(t, []string{"acme", "globex", "initech"}, q.Vendors)
	assert.Equal(t, []string{"widget"}, q.Products)
	assert.False(t, *q.HideRejected)
	assert.True(t, *q.HideDisputed)
	assert.Equal(t, domain.SortByCVSS, q.SortBy)
	assert.Equal(t, domain.SortAsc, q.SortOrder)
	assert.Equal(t, 25, q.Limit)
	assert.Equal(t, 50, q.Offset)
}

func TestParseQueryAliases(t *testing.T) {
	q, err := parse(t, "text=openssl&vendor=acme&product=widget")
	require.NoError(t, err)
	assert.Equal(t, "openssl", q.Text)
	assert.Equal(t, []string{"acme"}, q.Vendors)
	assert.Equal(t, []string{"widget"}, q.Products)
}

func TestParseQueryDates(t *testing.T) {
	q, err := parse(t, "published_from=2024-03-29T17:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 29, 17, 0, 0, 0, time.UTC), q.PublishedFrom)

	_, err = parse(t, "published_from=29/03/2024")
	assert.Error(t, err)
}

func TestParseQueryLimitClamping(t *testing.T) {
	q, err := parse(t, "limit=99999")
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, q.Limit)

	q, err = parse(t, "offset=-5")
	require.NoError(t, err)
	assert.Zero(t, q.Offset)
}

func TestParseQueryRejectsInvalid(t *testing.T) {
	cases := []string{
		"cvss_min=high",
		"cvss_min=8&cvss_max=4",
		"epss_min=2",
		"kev=maybe",
		"published_relative=fortnight",
		"sort_by=severity",
		"limit=ten",
	}
	for _, raw := range cases {
		_, err := parse(t, raw)
		assert.Error(t, err, raw)
	}
}
