package tokenguard

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseDuration parses the compact form used by the service environment:
// a decimal count followed by one unit letter, e.g. "15m", "7d" or "2w".
// Anything else, including values that overflow time.Duration, returns an
// error wrapping ErrConfiguration.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, configError("invalid duration %q", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, configError("invalid duration %q: %v", s, err)
	}

	unit := durationUnits[m[2]]
	if n > int64(math.MaxInt64/unit) {
		return 0, configError("duration %q overflows", s)
	}

	return time.Duration(n) * unit, nil
}
