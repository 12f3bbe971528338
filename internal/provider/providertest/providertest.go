// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/runledger/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests. Each test
// writes into its own time window, so the suite can share one store.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("RunPutGet", func(t *testing.T) { TestRunPutGet(t, prov) })
	t.Run("ListByBrand", func(t *testing.T) { TestListByBrand(t, prov) })
	t.Run("ListByBrandPagination", func(t *testing.T) { TestListByBrandPagination(t, prov) })
	t.Run("ListByStatus", func(t *testing.T) { TestListByStatus(t, prov) })
	t.Run("UpdateStatusFields", func(t *testing.T) { TestUpdateStatusFields(t, prov) })
	t.Run("UpdateStatusIdempotent", func(t *testing.T) { TestUpdateStatusIdempotent(t, prov) })
	t.Run("UpdateStatusLookup", func(t *testing.T) { TestUpdateStatusLookup(t, prov) })
	t.Run("UpdateStatusRejected", func(t *testing.T) { TestUpdateStatusRejected(t, prov) })
	t.Run("UpdateStatusNotFound", func(t *testing.T) { TestUpdateStatusNotFound(t, prov) })
	t.Run("ConcurrentRegression", func(t *testing.T) { TestConcurrentRegression(t, prov) })
	t.Run("InvalidCursor", func(t *testing.T) { TestInvalidCursor(t, prov) })
}
