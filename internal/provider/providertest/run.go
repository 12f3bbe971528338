package providertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// window returns a base time unique to one conformance test so tests sharing
// a store never see each other's records inside their query range.
// FixtureNow is a clock inside the retention window of every run the suite
// writes. Stores under test should read it as their current time.
func FixtureNow() time.Time {
	return time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)
}

func window(day int) (start, end time.Time) {
	start = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
	return start, start.Add(24*time.Hour - time.Microsecond)
}

func newRun(id string, brand types.Brand, status types.RunStatus, ts time.Time) types.Run {
	return types.Run{
		RunID:       id,
		Brand:       brand,
		Environment: types.EnvProd,
		Status:      status,
		Timestamp:   ts,
		Actor:       "ct",
		Workflow:    "run-tests.yml",
		Repository:  "mwebcode/hgc-frontend-tests",
	}
}

// TestRunPutGet verifies put, get, and not-found behavior.
func TestRunPutGet(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(1)

	run := newRun("ct-run-pg", types.BrandWebAfrica, types.RunTriggered, start.Add(time.Hour))
	run.Tests = &types.TestSummary{Total: 10, Passed: 8, Failed: 2}
	require.NoError(t, prov.PutRun(ctx, run))

	got, err := prov.GetRun(ctx, types.BrandWebAfrica, "ct-run-pg")
	require.NoError(t, err)
	assert.Equal(t, "ct-run-pg", got.RunID)
	assert.Equal(t, types.BrandWebAfrica, got.Brand)
	assert.Equal(t, types.EnvProd, got.Environment)
	assert.Equal(t, types.RunTriggered, got.Status)
	assert.True(t, run.Timestamp.Equal(got.Timestamp))
	require.NotNil(t, got.Tests)
	assert.Equal(t, 8, got.Tests.Passed)

	// Same id under another brand is a different record.
	_, err = prov.GetRun(ctx, types.BrandMWeb, "ct-run-pg")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = prov.GetRun(ctx, types.BrandWebAfrica, "ct-nonexistent-run")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

// TestListByBrand verifies newest-first ordering, limit, and date bounds.
func TestListByBrand(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, end := window(2)

	for i := 0; i < 5; i++ {
		run := newRun(fmt.Sprintf("ct-list-%d", i), types.BrandMWeb, types.RunPassed, start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, prov.PutRun(ctx, run))
	}

	page, err := prov.ListRunsByBrand(ctx, types.BrandMWeb, types.RunQuery{Start: start, End: end, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Runs, 3)
	assert.Equal(t, "ct-list-4", page.Runs[0].RunID)
	assert.Equal(t, "ct-list-3", page.Runs[1].RunID)
	assert.Equal(t, "ct-list-2", page.Runs[2].RunID)

	// Inclusive bounds on both ends.
	page, err = prov.ListRunsByBrand(ctx, types.BrandMWeb, types.RunQuery{
		Start: start.Add(time.Hour),
		End:   start.Add(3 * time.Hour),
		Limit: 10,
	})
	require.NoError(t, err)
	var ids []string
	for _, r := range page.Runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"ct-list-3", "ct-list-2", "ct-list-1"}, ids)
	assert.Empty(t, page.Cursor)
}

// TestListByBrandPagination verifies a cursor resumes where the last page ended.
func TestListByBrandPagination(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, end := window(3)

	for i := 0; i < 5; i++ {
		run := newRun(fmt.Sprintf("ct-page-%d", i), types.BrandMWeb, types.RunFailed, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, prov.PutRun(ctx, run))
	}

	q := types.RunQuery{Start: start, End: end, Limit: 3}
	first, err := prov.ListRunsByBrand(ctx, types.BrandMWeb, q)
	require.NoError(t, err)
	require.Len(t, first.Runs, 3)
	require.NotEmpty(t, first.Cursor)

	q.Cursor = first.Cursor
	second, err := prov.ListRunsByBrand(ctx, types.BrandMWeb, q)
	require.NoError(t, err)
	require.Len(t, second.Runs, 2)
	assert.Equal(t, "ct-page-1", second.Runs[0].RunID)
	assert.Equal(t, "ct-page-0", second.Runs[1].RunID)
	assert.Empty(t, second.Cursor)
}

// TestListByStatus verifies the status index, brand filter, and date bounds.
func TestListByStatus(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, end := window(4)

	require.NoError(t, prov.PutRun(ctx, newRun("ct-status-a", types.BrandMWeb, types.RunRunning, start.Add(1*time.Hour))))
	require.NoError(t, prov.PutRun(ctx, newRun("ct-status-b", types.BrandWebAfrica, types.RunRunning, start.Add(2*time.Hour))))
	require.NoError(t, prov.PutRun(ctx, newRun("ct-status-c", types.BrandMWeb, types.RunRunning, start.Add(3*time.Hour))))
	require.NoError(t, prov.PutRun(ctx, newRun("ct-status-d", types.BrandMWeb, types.RunPassed, start.Add(4*time.Hour))))

	page, err := prov.ListRunsByStatus(ctx, types.RunRunning, types.RunQuery{Start: start, End: end, Limit: 100})
	require.NoError(t, err)
	var ids []string
	for _, r := range page.Runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"ct-status-c", "ct-status-b", "ct-status-a"}, ids)

	page, err = prov.ListRunsByStatus(ctx, types.RunRunning, types.RunQuery{Brand: types.BrandMWeb, Start: start, End: end, Limit: 100})
	require.NoError(t, err)
	ids = nil
	for _, r := range page.Runs {
		assert.Equal(t, types.BrandMWeb, r.Brand)
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"ct-status-c", "ct-status-a"}, ids)

	page, err = prov.ListRunsByStatus(ctx, types.RunRunning, types.RunQuery{Start: start, End: start.Add(90 * time.Minute), Limit: 100})
	require.NoError(t, err)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, "ct-status-a", page.Runs[0].RunID)
}

// TestUpdateStatusFields verifies status, index key and extra fields change together.
func TestUpdateStatusFields(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, end := window(5)

	run := newRun("ct-upd", types.BrandMWeb, types.RunRunning, start.Add(time.Hour))
	require.NoError(t, prov.PutRun(ctx, run))

	dur := int64(125)
	updated, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunPassed, types.RunUpdate{
		GitHubRunID:  98765,
		Conclusion:   "success",
		WorkflowName: "Front-end tests",
		RunNumber:    42,
		Duration:     &dur,
		Commit:       "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, types.RunPassed, updated.Status)
	assert.Equal(t, int64(98765), updated.GitHubRunID)
	require.NotNil(t, updated.Duration)
	assert.Equal(t, int64(125), *updated.Duration)
	assert.False(t, updated.UpdatedAt.IsZero())

	got, err := prov.GetRun(ctx, types.BrandMWeb, "ct-upd")
	require.NoError(t, err)
	assert.Equal(t, types.RunPassed, got.Status)
	assert.Equal(t, "success", got.Conclusion)
	assert.Equal(t, 42, got.RunNumber)
	assert.Equal(t, "abc123", got.Commit)
	assert.True(t, run.Timestamp.Equal(got.Timestamp))

	running, err := prov.ListRunsByStatus(ctx, types.RunRunning, types.RunQuery{Start: start, End: end, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, running.Runs)

	passed, err := prov.ListRunsByStatus(ctx, types.RunPassed, types.RunQuery{Start: start, End: end, Limit: 100})
	require.NoError(t, err)
	require.Len(t, passed.Runs, 1)
	assert.Equal(t, "ct-upd", passed.Runs[0].RunID)
}

// TestUpdateStatusIdempotent verifies applying the same status twice succeeds.
func TestUpdateStatusIdempotent(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(6)

	run := newRun("ct-idem", types.BrandMWeb, types.RunTriggered, start)
	require.NoError(t, prov.PutRun(ctx, run))

	for i := 0; i < 2; i++ {
		got, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunRunning, types.RunUpdate{})
		require.NoError(t, err)
		assert.Equal(t, types.RunRunning, got.Status)
	}
}

// TestUpdateStatusLookup verifies updates addressed without a timestamp.
func TestUpdateStatusLookup(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(7)

	run := newRun("ct-lookup", types.BrandWebAfrica, types.RunRunning, start)
	require.NoError(t, prov.PutRun(ctx, run))

	got, err := prov.UpdateRunStatus(ctx, types.RunKey{Brand: types.BrandWebAfrica, RunID: "ct-lookup"}, types.RunFailed, types.RunUpdate{Conclusion: "failure"})
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, got.Status)
	assert.Equal(t, "ct-lookup", got.RunID)
	assert.True(t, run.Timestamp.Equal(got.Timestamp))
}

// TestUpdateStatusRejected verifies a terminal run cannot regress.
func TestUpdateStatusRejected(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(8)

	run := newRun("ct-reject", types.BrandMWeb, types.RunPassed, start)
	require.NoError(t, prov.PutRun(ctx, run))

	_, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunRunning, types.RunUpdate{})
	assert.ErrorIs(t, err, provider.ErrTransitionRejected)

	_, err = prov.UpdateRunStatus(ctx, types.RunKey{Brand: types.BrandMWeb, RunID: "ct-reject"}, types.RunTriggered, types.RunUpdate{})
	assert.ErrorIs(t, err, provider.ErrTransitionRejected)

	got, err := prov.GetRun(ctx, types.BrandMWeb, "ct-reject")
	require.NoError(t, err)
	assert.Equal(t, types.RunPassed, got.Status)
}

// TestUpdateStatusNotFound verifies updates to missing runs fail with ErrNotFound.
func TestUpdateStatusNotFound(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(9)

	_, err := prov.UpdateRunStatus(ctx, types.RunKey{Brand: types.BrandMWeb, RunID: "ct-missing"}, types.RunPassed, types.RunUpdate{})
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = prov.UpdateRunStatus(ctx, types.RunKey{Brand: types.BrandMWeb, RunID: "ct-missing", Timestamp: start}, types.RunPassed, types.RunUpdate{})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

// TestConcurrentRegression verifies concurrent late "running" confirmations
// never overwrite a terminal status.
func TestConcurrentRegression(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	start, _ := window(10)

	run := newRun("ct-race", types.BrandMWeb, types.RunTriggered, start)
	require.NoError(t, prov.PutRun(ctx, run))

	_, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunPassed, types.RunUpdate{Conclusion: "success"})
	require.NoError(t, err)

	const goroutines = 10
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = prov.UpdateRunStatus(ctx, run.Key(), types.RunRunning, types.RunUpdate{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, provider.ErrTransitionRejected)
	}
	got, err := prov.GetRun(ctx, types.BrandMWeb, "ct-race")
	require.NoError(t, err)
	assert.Equal(t, types.RunPassed, got.Status)
}

// TestInvalidCursor verifies a malformed cursor is rejected before querying.
func TestInvalidCursor(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	_, err := prov.ListRunsByBrand(ctx, types.BrandMWeb, types.RunQuery{Limit: 5, Cursor: "%%%"})
	assert.ErrorIs(t, err, provider.ErrInvalidCursor)

	_, err = prov.ListRunsByStatus(ctx, types.RunPassed, types.RunQuery{Limit: 5, Cursor: "%%%"})
	assert.ErrorIs(t, err, provider.ErrInvalidCursor)
}
