package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2025-06-03T14:00:00Z", "20250603_140000"},
		{"2025-06-03T14:00:00.123456Z", "20250603_140000"},
		{"2025-06-03T14:00:00.123456", "20250603_140000"},
		{"2025-06-03T14:00:00+02:00", "20250603_140000"},
		{"2025-06-03", "20250603"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.in))
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	sast := time.FixedZone("SAST", 2*60*60)
	assert.Equal(t, "20250603_140000", NormalizeTime(time.Date(2025, 6, 3, 16, 0, 0, 999, sast)))
	ts := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, NormalizeTimestamp(ts.Format(time.RFC3339)), NormalizeTime(ts))
}
