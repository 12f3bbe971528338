package artifact

import (
	"strings"
	"time"
)

const pathTimeLayout = "20060102_150405"

// NormalizeTimestamp converts an ISO-8601 timestamp into the compact form
// used in artifact paths: 2025-06-03T14:00:00Z becomes 20250603_140000.
func NormalizeTimestamp(iso string) string {
	s := strings.NewReplacer("-", "", ":", "", "T", "_").Replace(iso)
	s = strings.TrimSuffix(s, "Z")
	if len(s) > len(pathTimeLayout) {
		s = s[:len(pathTimeLayout)]
	}
	return s
}

// NormalizeTime renders t in UTC in the artifact path form.
func NormalizeTime(t time.Time) string {
	return t.UTC().Format(pathTimeLayout)
}
