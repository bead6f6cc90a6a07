package target

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

var (
	sunMonWedThu = halaqa.NewWeekdaySet(time.Sunday, time.Monday, time.Wednesday, time.Thursday)

	// Week of 2024-05-12 (Sunday).
	sun = timeutil.Date(2024, time.May, 12)
	mon = timeutil.Date(2024, time.May, 13)
	tue = timeutil.Date(2024, time.May, 14)
	wed = timeutil.Date(2024, time.May, 15)
	thu = timeutil.Date(2024, time.May, 16)
)

func memorization(lines float64) progress.DayTotals {
	return progress.DayTotals{MemorizationLines: lines}
}

func newTarget(t *testing.T, goals Goals) *DailyTarget {
	t.Helper()
	dt, err := NewDailyTarget("s-1", goals, sun)
	require.NoError(t, err)
	return dt
}

func TestGoals_Validate(t *testing.T) {
	assert.ErrorIs(t, Goals{}.Validate(), shared.ErrEmptyTarget)
	assert.ErrorIs(t, Goals{MemorizationLines: Int(0)}.Validate(), shared.ErrEmptyTarget)
	assert.ErrorIs(t, Goals{RevisionPages: Int(-1), MemorizationLines: Int(5)}.Validate(), shared.ErrNegativeTarget)
	assert.NoError(t, Goals{ConsolidationPages: Int(2)}.Validate())
}

func TestGoals_IsMet(t *testing.T) {
	goals := Goals{MemorizationLines: Int(10), RevisionPages: Int(2)}

	assert.False(t, goals.IsMet(progress.DayTotals{}))
	assert.False(t, goals.IsMet(memorization(10)))
	assert.False(t, goals.IsMet(progress.DayTotals{MemorizationLines: 10, RevisionLines: 29.9}))
	assert.True(t, goals.IsMet(progress.DayTotals{MemorizationLines: 10, RevisionLines: 30}))

	// Consolidation has no goal, so it never blocks.
	assert.True(t, goals.IsMet(progress.DayTotals{MemorizationLines: 12, RevisionLines: 45, ConsolidationLines: 0}))
}

func TestGoals_EmptyDefinitionNeverMet(t *testing.T) {
	assert.False(t, Goals{}.IsMet(progress.DayTotals{MemorizationLines: 1000, RevisionLines: 1000}))
	assert.False(t, Goals{MemorizationLines: Int(0)}.IsMet(memorization(1000)))
}

func TestEvaluate_InactiveDayIsNeutral(t *testing.T) {
	dt := newTarget(t, Goals{MemorizationLines: Int(10)})

	assert.Equal(t, OutcomeRestarted, dt.Evaluate(mon, sunMonWedThu, memorization(10), mon))
	assert.Equal(t, OutcomeInactiveDay, dt.Evaluate(tue, sunMonWedThu, memorization(10), tue))
	assert.Equal(t, 1, dt.CurrentStreak)

	assert.Equal(t, OutcomeExtended, dt.Evaluate(wed, sunMonWedThu, memorization(10), wed))
	assert.Equal(t, 2, dt.CurrentStreak)
	assert.Equal(t, 2, dt.LongestStreak)
	require.NotNil(t, dt.LastStreakDate)
	assert.Equal(t, wed, *dt.LastStreakDate)
}

func TestEvaluate_SameDayCountsOnce(t *testing.T) {
	dt := newTarget(t, Goals{MemorizationLines: Int(10)})

	assert.Equal(t, OutcomeNotMet, dt.Evaluate(mon, sunMonWedThu, memorization(5), mon))
	assert.Nil(t, dt.LastStreakDate)

	assert.Equal(t, OutcomeRestarted, dt.Evaluate(mon, sunMonWedThu, memorization(10), mon))
	assert.Equal(t, OutcomeAlreadyCounted, dt.Evaluate(mon, sunMonWedThu, memorization(20), mon))
	assert.Equal(t, 1, dt.CurrentStreak)
}

func TestEvaluate_MissedActiveDayResets(t *testing.T) {
	dt := newTarget(t, Goals{MemorizationLines: Int(10)})

	dt.Evaluate(sun, sunMonWedThu, memorization(10), sun)
	dt.Evaluate(mon, sunMonWedThu, memorization(10), mon)
	require.Equal(t, 2, dt.CurrentStreak)

	// Wednesday is skipped entirely.
	assert.Equal(t, OutcomeRestarted, dt.Evaluate(thu, sunMonWedThu, memorization(10), thu))
	assert.Equal(t, 1, dt.CurrentStreak)
	assert.Equal(t, 2, dt.LongestStreak)
}

func TestEvaluate_BackDated(t *testing.T) {
	dt := newTarget(t, Goals{MemorizationLines: Int(10)})
	dt.Evaluate(wed, sunMonWedThu, memorization(10), wed)

	assert.Equal(t, OutcomeBackDated, dt.Evaluate(mon, sunMonWedThu, memorization(10), wed))
	assert.Equal(t, 1, dt.CurrentStreak)
}

func TestUpdateGoals_KeepsStreak(t *testing.T) {
	dt := newTarget(t, Goals{MemorizationLines: Int(10)})
	dt.Evaluate(mon, sunMonWedThu, memorization(10), mon)

	require.NoError(t, dt.UpdateGoals(Goals{RevisionPages: Int(1)}, tue))
	assert.Equal(t, 1, dt.CurrentStreak)
	assert.ErrorIs(t, dt.UpdateGoals(Goals{}, tue), shared.ErrEmptyTarget)
}

func TestReplay_MatchesIncrementalEvaluation(t *testing.T) {
	goals := Goals{MemorizationLines: Int(10)}
	days := timeutil.Days(timeutil.Date(2024, time.May, 1), timeutil.Date(2024, time.May, 31))

	// Deterministic pattern of met and missed days, including inactive ones.
	totals := make(map[time.Time]progress.DayTotals)
	for i, d := range days {
		if i%5 != 3 {
			totals[d] = memorization(10)
		}
	}

	incremental := newTarget(t, goals)
	for _, d := range days {
		if _, ok := totals[d]; ok {
			incremental.Evaluate(d, sunMonWedThu, totals[d], d)
		}
	}

	replayed, results := Replay(goals, sunMonWedThu, days, totals)
	require.Len(t, results, len(days))

	assert.Equal(t, incremental.CurrentStreak, replayed.CurrentStreak)
	assert.Equal(t, incremental.LongestStreak, replayed.LongestStreak)
	assert.Equal(t, incremental.LastStreakDate, replayed.LastStreakDate)
}

func TestContinuesStreak(t *testing.T) {
	assert.False(t, ContinuesStreak(sunMonWedThu, wed, nil))
	assert.True(t, ContinuesStreak(sunMonWedThu, wed, &mon))
	assert.False(t, ContinuesStreak(sunMonWedThu, thu, &mon))
	assert.True(t, ContinuesStreak(halaqa.AllDays, tue, &mon))
}
