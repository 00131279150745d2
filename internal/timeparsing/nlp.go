package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var nlpParser = buildParser()

func buildParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage resolves an English phrase like "tomorrow",
// "next monday" or "in 3 days" against the reference time now.
func ParseNaturalLanguage(input string, now time.Time) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("timeparsing: empty expression")
	}
	res, err := nlpParser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparsing: parse %q: %w", input, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("timeparsing: could not resolve %q to a time", input)
	}
	return res.Time, nil
}

// ParseRelativeTime tries, in order: compact duration ("+3d"),
// natural language ("next monday"), date-only ("2006-01-02"), then
// RFC3339. The first layer that accepts the input wins, so a string
// that happens to look like more than one shape always resolves the
// same way regardless of which layers would also have matched.
func ParseRelativeTime(input string, now time.Time) (time.Time, error) {
	if IsCompactDuration(input) {
		return ParseCompactDuration(input, now)
	}
	if t, err := ParseNaturalLanguage(input, now); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", input, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("timeparsing: could not parse %q as a time expression", input)
}
