package giveaway

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var unitSeconds = map[string]int64{
	"s": 1, "sec": 1,
	"m": 60, "min": 60,
	"h": 3600, "hour": 3600,
	"d": 86400, "day": 86400,
}

// ParseDuration parses a single-unit token such as "30s", "15min" or "2D"
// into whole seconds.
func ParseDuration(token string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	digits, unit := s[:i], s[i:]
	if digits == "" || unit == "" || !isLetters(unit) {
		return 0, fmt.Errorf("%q: %w", token, ErrInvalidFormat)
	}
	factor, ok := unitSeconds[unit]
	if !ok {
		return 0, fmt.Errorf("%q: %w", token, ErrUnknownUnit)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > (1<<62)/factor {
		return 0, fmt.Errorf("%q: %w", token, ErrInvalidFormat)
	}
	return n * factor, nil
}

// Seconds converts a ParseDuration result to a time.Duration. Values past
// the range of time.Duration are rejected rather than wrapped.
func Seconds(secs int64) (time.Duration, error) {
	if secs <= 0 || secs > math.MaxInt64/int64(time.Second) {
		return 0, fmt.Errorf("%ds: %w", secs, ErrInvalidDuration)
	}
	return time.Duration(secs) * time.Second, nil
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// FormatToken renders seconds as the largest exact single-unit token,
// the inverse of ParseDuration.
func FormatToken(seconds int64) string {
	switch {
	case seconds != 0 && seconds%86400 == 0:
		return strconv.FormatInt(seconds/86400, 10) + "d"
	case seconds != 0 && seconds%3600 == 0:
		return strconv.FormatInt(seconds/3600, 10) + "h"
	case seconds != 0 && seconds%60 == 0:
		return strconv.FormatInt(seconds/60, 10) + "m"
	default:
		return strconv.FormatInt(seconds, 10) + "s"
	}
}

// FormatRemaining renders d as "1d 2h 3m 4s", omitting zero parts.
func FormatRemaining(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0s"
	}
	parts := make([]string, 0, 4)
	for _, u := range []struct {
		secs int64
		tag  string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}} {
		if v := total / u.secs; v > 0 {
			parts = append(parts, strconv.FormatInt(v, 10)+u.tag)
			total %= u.secs
		}
	}
	return strings.Join(parts, " ")
}
