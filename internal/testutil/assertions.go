package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForRunStatus polls until the run reaches the given status.
func WaitForRunStatus(t *testing.T, prov *MockProvider, brand types.Brand, runID string, status types.RunStatus, timeout time.Duration) types.Run {
	t.Helper()
	var run types.Run
	WaitFor(t, timeout, func() bool {
		got, err := prov.GetRun(context.Background(), brand, runID)
		if err != nil {
			return false
		}
		run = *got
		return run.Status == status
	}, "run "+runID+" with status "+string(status))
	return run
}
