// Package period evaluates recurring calendar date ranges used to suspend
// collections outside their season.
package period

import (
	"strings"
	"time"
)

const (
	fullFormat  = "2006-01-02"
	shortFormat = "01-02"
)

// Inside reports whether today falls within the configured active period.
// See InsideAt for the format.
func Inside(activePeriod string) bool {
	return InsideAt(activePeriod, time.Now())
}

// InsideAt reports whether today falls within the period described by
// activePeriod, a string of two comma-separated dates. Each date is either
// YYYY-MM-DD or MM-DD. When the year is omitted the start date resolves to
// its most recent occurrence on or before today, and the end date resolves
// relative to the start date, rolling into the next year when the range wraps
// (e.g. "12-01,02-28"). Malformed input is treated as outside the period,
// never as an error.
func InsideAt(activePeriod string, today time.Time) bool {
	parts := strings.Split(activePeriod, ",")
	if len(parts) != 2 {
		return false
	}

	today = truncateToDay(today)

	start, ok := parseStart(strings.TrimSpace(parts[0]), today)
	if !ok {
		return false
	}
	end, ok := parseEnd(strings.TrimSpace(parts[1]), start)
	if !ok {
		return false
	}

	return !today.Before(start) && !today.After(end)
}

func parseStart(s string, today time.Time) (time.Time, bool) {
	switch len(s) {
	case len(fullFormat):
		d, err := time.Parse(fullFormat, s)
		return d, err == nil
	case len(shortFormat):
		d, err := time.Parse(shortFormat, s)
		if err != nil {
			return time.Time{}, false
		}
		year := appropriateYear(d.Month(), d.Day(), today)
		return time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
	default:
		return time.Time{}, false
	}
}

func parseEnd(s string, start time.Time) (time.Time, bool) {
	switch len(s) {
	case len(fullFormat):
		d, err := time.Parse(fullFormat, s)
		return d, err == nil
	case len(shortFormat):
		d, err := time.Parse(shortFormat, s)
		if err != nil {
			return time.Time{}, false
		}
		year := appropriateYear(d.Month(), d.Day(), start)
		end := time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		// A year-agnostic end must come strictly after the start; same-day or
		// earlier wraps into the following year.
		if !end.After(start) {
			end = time.Date(year+1, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		}
		return end, true
	default:
		return time.Time{}, false
	}
}

// appropriateYear returns the year of the most recent occurrence of
// month/day on or before the reference date.
func appropriateYear(month time.Month, day int, reference time.Time) int {
	test := time.Date(reference.Year(), month, day, 0, 0, 0, 0, time.UTC)
	if test.After(truncateToDay(reference)) {
		return reference.Year() - 1
	}
	return reference.Year()
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
