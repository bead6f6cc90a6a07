// Package timeutil provides calendar-day utilities for progress tracking.
// Progress is recorded at day granularity, so every date that crosses a package
// boundary is normalized to midnight UTC of its calendar date.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire format for calendar dates.
const DateLayout = "2006-01-02"

// DefaultLocation is the timezone used to decide what "today" is when none is configured.
var DefaultLocation = time.UTC

// Day returns midnight UTC of the calendar date t falls on in its own location.
// Two timestamps on the same local date map to the same Day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date creates a normalized day from its components.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day as observed in loc.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultLocation
	}
	return Day(time.Now().In(loc))
}

// AddDays shifts a normalized day by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole calendar days from t1 to t2.
// The result is negative when t2 is before t1.
func DaysBetween(t1, t2 time.Time) int {
	d1 := Day(t1)
	d2 := Day(t2)
	return int(d2.Sub(d1).Hours() / 24)
}

// SpanDays returns the inclusive number of days in [from, to], or 0 if to is before from.
func SpanDays(from, to time.Time) int {
	n := DaysBetween(from, to)
	if n < 0 {
		return 0
	}
	return n + 1
}

// EachDay calls fn for every day in [from, to] in ascending order.
func EachDay(from, to time.Time, fn func(day time.Time)) {
	end := Day(to)
	for d := Day(from); !d.After(end); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

// Days returns every day in [from, to] in ascending order.
func Days(from, to time.Time) []time.Time {
	days := make([]time.Time, 0, SpanDays(from, to))
	EachDay(from, to, func(d time.Time) {
		days = append(days, d)
	})
	return days
}

// FormatDate formats a day using DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a normalized day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return Day(t), nil
}
