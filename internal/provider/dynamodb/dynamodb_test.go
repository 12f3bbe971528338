//go:build integration

package dynamodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/provider/providertest"
	"github.com/dwsmith1983/runledger/pkg/types"
)

func setupTestProvider(t *testing.T) *DynamoDBProvider {
	t.Helper()
	ctx := context.Background()
	tableName := fmt.Sprintf("runledger-test-%d", time.Now().UnixNano())
	cfg := &Config{
		TableName:   tableName,
		Region:      "us-east-1",
		Endpoint:    "http://localhost:8000",
		CreateTable: true,
	}
	prov, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("DynamoDB Local not available: %v", err)
	}
	if err := prov.Start(ctx); err != nil {
		t.Skipf("DynamoDB Local not available: %v", err)
	}
	t.Cleanup(func() {
		_, _ = prov.client.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{
			TableName: &tableName,
		})
	})
	return prov
}

func TestConformance(t *testing.T) {
	prov := setupTestProvider(t)
	prov.now = providertest.FixtureNow
	providertest.RunAll(t, prov)
}

func TestLegacyTimestampKey(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	// Simulate a record written with a naive, trimmed timestamp in its sort key.
	ts := time.Date(2024, 3, 1, 9, 0, 0, 500000000, time.UTC)
	run := types.Run{RunID: "legacy-1", Brand: types.BrandMWeb, Environment: types.EnvDev, Status: types.RunRunning, Timestamp: ts}
	item := newRunItem(run, ttlEpoch(time.Now(), time.Hour))
	item.SK = prefixRun + "2024-03-01T09:00:00.5#legacy-1"
	item.Timestamp = "2024-03-01T09:00:00.5"
	require.NoError(t, prov.putItem(ctx, item))

	got, err := prov.UpdateRunStatus(ctx, run.Key(), types.RunPassed, types.RunUpdate{Conclusion: "success"})
	require.NoError(t, err)
	assert.Equal(t, types.RunPassed, got.Status)
	assert.True(t, ts.Equal(got.Timestamp))
}
