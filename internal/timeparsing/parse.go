// Package timeparsing turns the time expressions accepted on the command
// line into concrete instants. Parse tries, in order: compact durations
// (+6h, -1d, 2w), absolute timestamps (RFC3339, then date-only), and natural
// language ("yesterday", "last friday at 2pm").
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches offsets like +6h, -1d, 2w, 3m, 1y. A missing
// sign means forward in time.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// nlp is shared across calls; when.Parser is stateless after rule setup.
var nlp = newNLPParser()

func newNLPParser() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}

// Parse resolves expr against now. The layers are tried strictly in order,
// so an expression that is a valid compact duration is never handed to the
// natural language parser.
func Parse(expr string, now time.Time) (time.Time, error) {
	if IsCompactDuration(expr) {
		return ParseCompactDuration(expr, now)
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, now.Location()); err == nil {
		return t, nil
	}
	return ParseNaturalLanguage(expr, now)
}

// IsCompactDuration reports whether expr uses the compact duration syntax.
func IsCompactDuration(expr string) bool {
	return compactDurationRe.MatchString(expr)
}

// ParseCompactDuration applies a compact offset to now. Hours use wall-clock
// arithmetic; days and larger use calendar arithmetic so "+1d" across a DST
// change still lands on the next day.
func ParseCompactDuration(expr string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", expr)
	}

	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
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
	}
	return time.Time{}, fmt.Errorf("unknown duration unit: %q", m[3])
}

// ParseNaturalLanguage resolves expressions like "tomorrow at 9am" relative
// to now. Unrecognized input is an error, not a zero time.
func ParseNaturalLanguage(expr string, now time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	r, err := nlp.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time expression: %q", expr)
	}
	return r.Time, nil
}
