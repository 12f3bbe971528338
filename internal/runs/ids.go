package runs

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// RunIDFunc generates the id of a new run.
type RunIDFunc func(brand types.Brand, env types.Environment, now time.Time) string

// Run id formats.
const (
	RunIDTimestamp = "timestamp"
	RunIDULID      = "ulid"
)

// TimestampRunID yields {brand}-{env}-{YYYYMMDD-HHMMSS}.
func TimestampRunID(brand types.Brand, env types.Environment, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", brand, env, now.UTC().Format("20060102-150405"))
}

// ULIDRunID yields {brand}-{env}-{ulid}, unique even within one second.
func ULIDRunID(brand types.Brand, env types.Environment, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return fmt.Sprintf("%s-%s-%s", brand, env, strings.ToLower(id.String()))
}

// RunIDGenerator returns the generator for format.
func RunIDGenerator(format string) (RunIDFunc, error) {
	switch format {
	case "", RunIDTimestamp:
		return TimestampRunID, nil
	case RunIDULID:
		return ULIDRunID, nil
	default:
		return nil, fmt.Errorf("unknown run id format %q", format)
	}
}

var validRunID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// brandFromRunID reads the brand prefix of a generated run id.
func brandFromRunID(runID string) types.Brand {
	for _, b := range types.Brands {
		if strings.HasPrefix(runID, string(b)+"-") {
			return b
		}
	}
	return ""
}

// containsRunID reports whether text mentions runID as a whole token.
func containsRunID(text, runID string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], runID)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(runID)
		if (start == 0 || !isIDChar(text[start-1])) && (end == len(text) || !isIDChar(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isIDChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}
