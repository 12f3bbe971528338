package dynamodb

import (
	"strings"
	"time"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// Attribute names.
const (
	attrPK     = "pk"
	attrSK     = "sk"
	attrGSI1PK = "gsi1pk"
	attrGSI1SK = "gsi1sk"
	attrTTL    = "ttl"

	indexStatus = "GSI1"
)

// Key prefix constants.
const (
	prefixBrand     = "BRAND#"
	prefixRun       = "RUN#"
	prefixStatus    = "STATUS#"
	prefixTimestamp = "TIMESTAMP#"
)

func brandPK(b types.Brand) string        { return prefixBrand + string(b) }
func statusPK(s types.RunStatus) string   { return prefixStatus + string(s) }
func timestampSK(ts time.Time) string     { return prefixTimestamp + types.FormatTimestamp(ts) }
func runSK(ts time.Time, id string) string { return prefixRun + types.FormatTimestamp(ts) + "#" + id }

// keyRange returns inclusive BETWEEN bounds over sort keys shaped
// <prefix><timestamp>[#...]. '$' sorts immediately after '#', so the upper
// bound covers every key sharing the end timestamp.
func keyRange(prefix string, start, end time.Time) (lo, hi string) {
	lo = prefix
	if !start.IsZero() {
		lo += types.FormatTimestamp(start)
	}
	if end.IsZero() {
		hi = strings.TrimSuffix(prefix, "#") + "$"
	} else {
		hi = prefix + types.FormatTimestamp(end) + "$"
	}
	return lo, hi
}

func ttlEpoch(from time.Time, d time.Duration) int64 {
	return from.Add(d).Unix()
}

func isExpired(epoch int64, now time.Time) bool {
	return epoch > 0 && now.Unix() > epoch
}
