package runs

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/pkg/types"
)

func TestTimestampRunID(t *testing.T) {
	ts := time.Date(2025, 6, 3, 16, 4, 5, 0, time.FixedZone("SAST", 2*3600))
	assert.Equal(t, "mweb-prod-20250603-140405", TimestampRunID(types.BrandMWeb, types.EnvProd, ts))
}

func TestULIDRunID(t *testing.T) {
	a := ULIDRunID(types.BrandWebAfrica, types.EnvDev, testNow)
	b := ULIDRunID(types.BrandWebAfrica, types.EnvDev, testNow)
	assert.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "webafrica-dev-"))

	id, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(a, "webafrica-dev-")))
	require.NoError(t, err)
	assert.Equal(t, testNow.UnixMilli(), int64(id.Time()))
	assert.True(t, validRunID.MatchString(a))
}

func TestBrandFromRunID(t *testing.T) {
	assert.Equal(t, types.BrandMWeb, brandFromRunID("mweb-prod-20250603-140000"))
	assert.Equal(t, types.BrandWebAfrica, brandFromRunID("webafrica-dev-x"))
	assert.Equal(t, types.Brand(""), brandFromRunID("manual-1"))
}

func TestContainsRunID(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Frontend tests mweb-prod-1", true},
		{"Frontend tests (mweb-prod-1).", true},
		{"mweb-prod-1", true},
		{"Frontend tests mweb-prod-12", false},
		{"xmweb-prod-1", false},
		{"mweb-prod-12 then mweb-prod-1", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsRunID(tt.text, "mweb-prod-1"), tt.text)
	}
}
