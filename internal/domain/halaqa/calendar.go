// Package halaqa contains study circles, their weekly calendars and the student roster.
//
// A halaqa meets on a fixed subset of weekdays. Only those active days are evaluated
// for streak purposes; every other day is neutral.
package halaqa

import (
	"fmt"
	"strings"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKDAY SET
// ══════════════════════════════════════════════════════════════════════════════

// WeekdaySet is a set of weekdays stored as a bitmask, bit i for time.Weekday(i).
type WeekdaySet uint8

// AllDays is the calendar of a student without a halaqa: every day is active.
const AllDays WeekdaySet = 1<<7 - 1

// lookbackDays bounds the search for a previous active day.
const lookbackDays = 7

// NewWeekdaySet builds a set from the given weekdays.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// With returns the set with d added.
func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

// Contains reports whether d is an active day.
func (s WeekdaySet) Contains(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

// IsActive reports whether the calendar date of t is an active day.
func (s WeekdaySet) IsActive(t time.Time) bool {
	return s.Contains(t.Weekday())
}

// IsEmpty reports whether no day is active.
func (s WeekdaySet) IsEmpty() bool {
	return s&AllDays == 0
}

// Len returns the number of active weekdays.
func (s WeekdaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			n++
		}
	}
	return n
}

// Days returns the active weekdays in order starting from Sunday.
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// PreviousActiveDay returns the most recent active day strictly before day, looking
// back at most seven calendar days. It returns false for an empty calendar.
func (s WeekdaySet) PreviousActiveDay(day time.Time) (time.Time, bool) {
	for i := 1; i <= lookbackDays; i++ {
		prev := day.AddDate(0, 0, -i)
		if s.IsActive(prev) {
			return prev, true
		}
	}
	return time.Time{}, false
}

// CountActive returns the number of active days in [from, to], both inclusive.
func (s WeekdaySet) CountActive(from, to time.Time) int {
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if s.IsActive(d) {
			n++
		}
	}
	return n
}

// String returns the set as a comma-separated list of short day names.
func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

// ParseWeekdaySet parses a comma-separated list of day names such as "sun,mon,wed".
// Full English names are accepted too.
func ParseWeekdaySet(value string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		d, ok := parseWeekday(part)
		if !ok {
			return 0, shared.NewDomainError("halaqa", "ParseWeekdaySet", shared.ErrInvalidInput,
				fmt.Sprintf("unknown weekday %q", part))
		}
		s = s.With(d)
	}
	return s, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return 0, false
}
