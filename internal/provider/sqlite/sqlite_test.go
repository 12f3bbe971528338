package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/internal/provider/providertest"
	"github.com/dwsmith1983/runledger/pkg/types"
)

func setupTestProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	prov, err := New(&Config{Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	require.NoError(t, prov.Start(context.Background()))
	t.Cleanup(func() { _ = prov.Stop(context.Background()) })
	return prov
}

func TestConformance(t *testing.T) {
	prov := setupTestProvider(t)
	prov.now = providertest.FixtureNow
	providertest.RunAll(t, prov)
}

func TestExpiredRunsHidden(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	written := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prov.now = func() time.Time { return written }
	run := types.Run{RunID: "old", Brand: types.BrandMWeb, Environment: types.EnvDev, Status: types.RunPassed, Timestamp: written}
	require.NoError(t, prov.PutRun(ctx, run))

	prov.now = func() time.Time { return written.Add(91 * 24 * time.Hour) }
	_, err := prov.GetRun(ctx, types.BrandMWeb, "old")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	page, err := prov.ListRunsByBrand(ctx, types.BrandMWeb, types.RunQuery{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Runs)
}

func TestExpiryCountsFromCreation(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	prov.now = func() time.Time { return now }

	stale := types.Run{RunID: "stale", Brand: types.BrandMWeb, Environment: types.EnvProd, Status: types.RunPassed, Timestamp: now.AddDate(0, 0, -100)}
	recent := types.Run{RunID: "recent", Brand: types.BrandMWeb, Environment: types.EnvProd, Status: types.RunPassed, Timestamp: now.AddDate(0, 0, -80)}
	require.NoError(t, prov.PutRun(ctx, stale))
	require.NoError(t, prov.PutRun(ctx, recent))

	_, err := prov.GetRun(ctx, types.BrandMWeb, "stale")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = prov.GetRun(ctx, types.BrandMWeb, "recent")
	require.NoError(t, err)

	prov.now = func() time.Time { return now.AddDate(0, 0, 11) }
	_, err = prov.GetRun(ctx, types.BrandMWeb, "recent")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	ts := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	prov.now = func() time.Time { return ts }
	run := types.Run{
		RunID: "keep", Brand: types.BrandWebAfrica, Environment: types.EnvStaging,
		Status: types.RunTriggered, Timestamp: ts, Actor: "dev", Commit: "abc",
	}
	require.NoError(t, prov.PutRun(ctx, run))

	got, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunRunning, types.RunUpdate{GitHubRunID: 5})
	require.NoError(t, err)
	assert.Equal(t, "dev", got.Actor)
	assert.Equal(t, "abc", got.Commit)
	assert.Equal(t, int64(5), got.GitHubRunID)

	got, err = prov.UpdateRunStatus(ctx, run.Key(), types.RunCancelled, types.RunUpdate{Reason: "abandoned"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.GitHubRunID)
	assert.Equal(t, "abandoned", got.Reason)
	assert.Nil(t, got.Duration)
}

func TestCursorMissingFields(t *testing.T) {
	prov := setupTestProvider(t)
	cursor := provider.EncodeCursor(map[string]string{"pk": "BRAND#mweb"})
	_, err := prov.ListRunsByBrand(context.Background(), types.BrandMWeb, types.RunQuery{Cursor: cursor})
	assert.ErrorIs(t, err, provider.ErrInvalidCursor)
}
