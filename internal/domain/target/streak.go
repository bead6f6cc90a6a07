package target

import (
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// Streak holds the running counters. LongestStreak is never below CurrentStreak.
type Streak struct {
	CurrentStreak  int
	LongestStreak  int
	LastStreakDate *time.Time
}

// ContinuesStreak reports whether a met day extends a streak whose last met day is
// lastMet: the active day immediately before day must be lastMet.
func ContinuesStreak(cal halaqa.WeekdaySet, day time.Time, lastMet *time.Time) bool {
	if lastMet == nil {
		return false
	}
	prev, ok := cal.PreviousActiveDay(day)
	return ok && prev.Equal(*lastMet)
}

// RecordMetDay counts day as met and reports whether it extended the existing streak.
func (s *Streak) RecordMetDay(day time.Time, cal halaqa.WeekdaySet) bool {
	extended := ContinuesStreak(cal, day, s.LastStreakDate)
	if extended {
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	d := day
	s.LastStreakDate = &d
	return extended
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Outcome is the result of evaluating one day against a target.
type Outcome string

const (
	OutcomeNoTarget       Outcome = "no_target"
	OutcomeAlreadyCounted Outcome = "already_counted"
	OutcomeBackDated      Outcome = "back_dated"
	OutcomeInactiveDay    Outcome = "inactive_day"
	OutcomePending        Outcome = "pending"
	OutcomeNotMet         Outcome = "not_met"
	OutcomeExtended       Outcome = "extended"
	OutcomeRestarted      Outcome = "restarted"
)

// Changed reports whether the outcome modified the streak counters.
func (o Outcome) Changed() bool {
	return o == OutcomeExtended || o == OutcomeRestarted
}

// Precheck returns OutcomePending when day has to be evaluated against the day's
// totals, or the outcome that makes evaluation unnecessary.
func (t *DailyTarget) Precheck(day time.Time, cal halaqa.WeekdaySet) Outcome {
	if last := t.LastStreakDate; last != nil {
		if last.Equal(day) {
			return OutcomeAlreadyCounted
		}
		if day.Before(*last) {
			return OutcomeBackDated
		}
	}
	if !cal.IsActive(day) {
		return OutcomeInactiveDay
	}
	return OutcomePending
}

// Evaluate applies the totals of day to the streak. day must be a normalized calendar day.
func (t *DailyTarget) Evaluate(day time.Time, cal halaqa.WeekdaySet, totals progress.DayTotals, now time.Time) Outcome {
	if o := t.Precheck(day, cal); o != OutcomePending {
		return o
	}
	if !t.Goals.IsMet(totals) {
		return OutcomeNotMet
	}

	t.UpdatedAt = now
	if t.Streak.RecordMetDay(day, cal) {
		return OutcomeExtended
	}
	return OutcomeRestarted
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLAY
// ══════════════════════════════════════════════════════════════════════════════

// DayResult is the evaluation of a single day in a replay.
type DayResult struct {
	Date   time.Time
	Active bool
	Met    bool
	Totals progress.DayTotals
}

// Replay evaluates every day in days (ascending) with goals and cal, feeding met
// active days through the same rule as the write path. Inactive days never affect
// the result; active days before the first met day are ignored.
func Replay(goals Goals, cal halaqa.WeekdaySet, days []time.Time, totals map[time.Time]progress.DayTotals) (Streak, []DayResult) {
	var s Streak
	results := make([]DayResult, 0, len(days))

	for _, day := range days {
		r := DayResult{
			Date:   day,
			Active: cal.IsActive(day),
			Totals: totals[day],
		}
		if r.Active && goals.IsMet(r.Totals) {
			r.Met = true
			s.RecordMetDay(day, cal)
		}
		results = append(results, r)
	}

	return s, results
}
