// Package timeparsing turns a CLI-supplied time expression into an
// absolute time.Time, trying progressively more general layers:
// compact durations ("+3d"), natural language ("next monday"),
// date-only ("2025-02-01"), then RFC3339.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// IsCompactDuration reports whether s matches the compact duration
// shape, without parsing it.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseCompactDuration parses a compact duration like "+3d", "-6h" or
// "2w" (sign defaults to positive) relative to now. Units: h (hours),
// d (days), w (weeks), m (months), y (years); month/year arithmetic
// uses time.Time.AddDate and so inherits its overflow normalization.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("timeparsing: %q is not a compact duration", s)
	}

	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: %q: %w", s, err)
	}
	if m[1] == "-" {
		amount = -amount
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("timeparsing: %q: unknown unit %q", s, m[3])
	}
}
