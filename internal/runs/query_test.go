package runs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

func seedRun(brand types.Brand, id string, status types.RunStatus, ts time.Time) types.Run {
	return types.Run{RunID: id, Brand: brand, Environment: types.EnvProd, Status: status, Timestamp: ts}
}

func TestList_Defaults(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRun(types.BrandMWeb, "a", types.RunPassed, testNow.Add(-2*time.Hour)),
		seedRun(types.BrandMWeb, "b", types.RunFailed, testNow.Add(-time.Hour)),
		seedRun(types.BrandWebAfrica, "c", types.RunPassed, testNow.Add(-time.Hour)),
	)

	resp, err := env.svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, DefaultListLimit, resp.Limit)
	assert.Equal(t, "b", resp.Items[0].RunID)
	assert.Equal(t, "a", resp.Items[1].RunID)
	require.NotNil(t, resp.Filters.Brand)
	assert.Equal(t, "mweb", *resp.Filters.Brand)
	assert.Nil(t, resp.Filters.Status)
	assert.False(t, resp.Pagination.HasMore)
	assert.Empty(t, resp.Pagination.LastEvaluatedKey)
}

func TestList_EmptyItemsNotNil(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.List(context.Background(), ListParams{Brand: "webafrica"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Items)
	assert.Zero(t, resp.Count)
}

func TestList_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params ListParams
		field  string
	}{
		{"brand", ListParams{Brand: "invalid"}, "brand"},
		{"status", ListParams{Status: "done"}, "status"},
		{"limit", ListParams{Limit: "ten"}, "limit"},
		{"start date", ListParams{StartDate: "03/06/2025"}, "startDate"},
		{"end date", ListParams{EndDate: "yesterday"}, "endDate"},
		{"range", ListParams{StartDate: "2025-06-03", EndDate: "2025-06-01"}, "startDate"},
		{"cursor", ListParams{Cursor: "!!!"}, "lastEvaluatedKey"},
		{"json cursor", ListParams{Cursor: "{not json"}, "lastEvaluatedKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.List(context.Background(), tt.params)
			e := requireKind(t, err, types.KindValidation)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestList_InvalidBrandListsAllowed(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.List(context.Background(), ListParams{Brand: "invalid"})
	e := requireKind(t, err, types.KindValidation)
	assert.Equal(t, []string{"mweb", "webafrica"}, e.Allowed)
	assert.Equal(t, "Invalid brand. Must be one of: mweb, webafrica", e.Message)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 25},
		{"10", 10},
		{"0", 1},
		{"-5", 1},
		{"100", 100},
		{"500", 100},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("startDate", "2025-06-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := parseDate("endDate", "2025-06-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 999999000, time.UTC), end)

	exact, err := parseDate("endDate", "2025-06-01T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), exact)
}

func TestList_DateRangeIncludesWholeEndDay(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRun(types.BrandMWeb, "may31", types.RunPassed, time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC)),
		seedRun(types.BrandMWeb, "jun1", types.RunPassed, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		seedRun(types.BrandMWeb, "jun2-late", types.RunPassed, time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)),
		seedRun(types.BrandMWeb, "jun3", types.RunPassed, time.Date(2025, 6, 3, 0, 0, 1, 0, time.UTC)),
	)

	resp, err := env.svc.List(context.Background(), ListParams{StartDate: "2025-06-01", EndDate: "2025-06-02"})
	require.NoError(t, err)
	var ids []string
	for _, r := range resp.Items {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"jun2-late", "jun1"}, ids)
	assert.Equal(t, "2025-06-01", *resp.Filters.StartDate)
	assert.Equal(t, "2025-06-02", *resp.Filters.EndDate)
}

func TestList_StatusFilterStaysWithinBrand(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRun(types.BrandMWeb, "m-pass", types.RunPassed, testNow.Add(-time.Hour)),
		seedRun(types.BrandMWeb, "m-fail", types.RunFailed, testNow.Add(-time.Hour)),
		seedRun(types.BrandWebAfrica, "w-pass", types.RunPassed, testNow.Add(-time.Hour)),
	)

	resp, err := env.svc.List(context.Background(), ListParams{Brand: "mweb", Status: "passed"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "m-pass", resp.Items[0].RunID)
	assert.Equal(t, "passed", *resp.Filters.Status)
}

func TestList_StatusFilterAcrossBrands(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRun(types.BrandMWeb, "m1", types.RunFailed, testNow.Add(-2*time.Hour)),
		seedRun(types.BrandWebAfrica, "w1", types.RunFailed, testNow.Add(-time.Hour)),
		seedRun(types.BrandWebAfrica, "w2", types.RunPassed, testNow.Add(-time.Hour)),
	)

	resp, err := env.svc.List(context.Background(), ListParams{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "w1", resp.Items[0].RunID)
	assert.Equal(t, "m1", resp.Items[1].RunID)
	assert.Nil(t, resp.Filters.Brand)
	require.NotNil(t, resp.Filters.Status)
	assert.Equal(t, "failed", *resp.Filters.Status)
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := range 5 {
		env.seed(t, seedRun(types.BrandMWeb, fmt.Sprintf("run-%d", i), types.RunPassed, testNow.Add(-time.Duration(i)*time.Minute)))
	}

	first, err := env.svc.List(context.Background(), ListParams{Limit: "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Count)
	assert.True(t, first.Pagination.HasMore)
	require.NotEmpty(t, first.Pagination.LastEvaluatedKey)

	second, err := env.svc.List(context.Background(), ListParams{Limit: "3", Cursor: first.Pagination.LastEvaluatedKey})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.False(t, second.Pagination.HasMore)
	assert.Equal(t, "run-3", second.Items[0].RunID)
	assert.Equal(t, "run-4", second.Items[1].RunID)
}

func TestList_AcceptsRawJSONCursor(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seedRun(types.BrandMWeb, "new", types.RunPassed, testNow),
		seedRun(types.BrandMWeb, "old", types.RunPassed, testNow.Add(-time.Hour)),
	)
	raw := fmt.Sprintf(`{"ts":%q,"runId":"new"}`, types.FormatTimestamp(testNow))

	resp, err := env.svc.List(context.Background(), ListParams{Cursor: raw})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "old", resp.Items[0].RunID)
}

func TestList_StoreErrors(t *testing.T) {
	env := newTestEnv(t)
	env.prov.ListErr = errors.New("unavailable")
	_, err := env.svc.List(context.Background(), ListParams{})
	requireKind(t, err, types.KindUpstream)

	env.prov.ListErr = fmt.Errorf("%w: missing ts", provider.ErrInvalidCursor)
	_, err = env.svc.List(context.Background(), ListParams{})
	requireKind(t, err, types.KindValidation)
}
