package testutil

import (
	"testing"

	"github.com/dwsmith1983/runledger/internal/provider/providertest"
)

func TestMockProviderConformance(t *testing.T) {
	prov := NewMockProvider()
	prov.Now = providertest.FixtureNow
	providertest.RunAll(t, prov)
}
