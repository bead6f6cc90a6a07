package query

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqa-hub/hifz-core/internal/application/command"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/persistence/memory"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

var (
	sunMonWedThu = halaqa.NewWeekdaySet(time.Sunday, time.Monday, time.Wednesday, time.Thursday)
	sunToThu     = halaqa.NewWeekdaySet(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday)

	// 2024-05-05 is a Sunday.
	weekStart = timeutil.Date(2024, time.May, 5)
)

type fixture struct {
	entries   *memory.ProgressRepository
	targets   *memory.TargetRepository
	positions *memory.PositionRepository
	directory *memory.Directory
	cache     *memory.AggregateCache
	logger    *slog.Logger

	record   *command.RecordProgressHandler
	setGoals *command.SetDailyTargetHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		entries:   memory.NewProgressRepository(),
		targets:   memory.NewTargetRepository(),
		positions: memory.NewPositionRepository(),
		directory: memory.NewDirectory(),
		cache:     memory.NewAggregateCache(time.Minute),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	f.directory.AddHalaqa(&halaqa.Halaqa{ID: "h-1", Name: "Fajr", TeacherID: "t-1", ActiveDays: sunMonWedThu})
	f.directory.AddHalaqa(&halaqa.Halaqa{ID: "h-2", Name: "Asr", TeacherID: "t-2", ActiveDays: sunToThu})
	f.directory.AddHalaqa(&halaqa.Halaqa{ID: "h-3", Name: "Isha", TeacherID: "t-2", ActiveDays: sunToThu})

	codec := linetable.NewCodec(nil, f.logger)
	streaks := command.NewUpdateStreakHandler(f.targets, f.entries, f.directory, f.logger)
	f.record = command.NewRecordProgressHandler(f.entries, f.positions, f.directory, codec, streaks, f.cache, time.UTC, f.logger)
	f.setGoals = command.NewSetDailyTargetHandler(f.targets, f.directory, f.cache, f.logger)

	return f
}

func (f *fixture) addStudent(id, name string, halaqat ...string) {
	f.directory.AddStudent(&halaqa.Student{ID: id, Name: name, HalaqaIDs: halaqat})
}

func (f *fixture) setGoalsFor(t *testing.T, cmd command.SetDailyTargetCommand) {
	t.Helper()
	_, err := f.setGoals.Handle(context.Background(), cmd)
	require.NoError(t, err)
}

// recordLines records n verses (one line each) of chapter 2.
func (f *fixture) recordLines(t *testing.T, studentID string, day time.Time, c progress.Category, n int) {
	t.Helper()
	_, err := f.record.Handle(context.Background(), command.RecordProgressCommand{
		StudentID: studentID,
		Date:      day,
		Category:  c,
		Chapter:   2,
		VerseFrom: 1,
		VerseTo:   n,
	})
	require.NoError(t, err)
}

func (f *fixture) storeStreak(t *testing.T, studentID string, current, longest int) {
	t.Helper()
	_, err := f.targets.UpdateStreak(context.Background(), studentID, func(dt *target.DailyTarget) (bool, error) {
		dt.CurrentStreak = current
		dt.LongestStreak = longest
		return true, nil
	})
	require.NoError(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT HISTORY
// ══════════════════════════════════════════════════════════════════════════════

func TestAchievementHistory_MatchesIncrementalStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addStudent("s-1", "Amina", "h-1")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(10), RevisionPages: target.Int(1)})

	days := timeutil.Days(weekStart, timeutil.AddDays(weekStart, 41))
	for i, day := range days {
		switch {
		case i%6 == 4:
			// Missed: only part of the memorization goal.
			f.recordLines(t, "s-1", day, progress.Memorization, 4)
		case i%9 == 7:
			// Nothing recorded.
		default:
			f.recordLines(t, "s-1", day, progress.Memorization, 6)
			f.recordLines(t, "s-1", day, progress.Revision, 15)
			f.recordLines(t, "s-1", day, progress.Memorization, 4)
		}
	}

	stored, err := f.targets.GetByStudent(ctx, "s-1")
	require.NoError(t, err)

	h := NewGetAchievementHistoryHandler(f.targets, f.entries, f.directory, time.UTC, f.logger)
	res, err := h.Handle(ctx, GetAchievementHistoryQuery{StudentID: "s-1", From: days[0], To: days[len(days)-1]})
	require.NoError(t, err)

	assert.Equal(t, stored.CurrentStreak, res.CurrentStreak)
	assert.Equal(t, stored.LongestStreak, res.LongestStreak)
	require.NotNil(t, res.LastMetDate)
	assert.Equal(t, timeutil.FormatDate(*stored.LastStreakDate), *res.LastMetDate)
	assert.Len(t, res.Days, len(days))
	assert.Equal(t, 24, res.ActiveDays)
}

func TestAchievementHistory_InactiveDaysAreNeutral(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "Amina", "h-1")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(10)})

	mon := timeutil.AddDays(weekStart, 1)
	wed := timeutil.AddDays(weekStart, 3)
	f.recordLines(t, "s-1", mon, progress.Memorization, 10)
	f.recordLines(t, "s-1", wed, progress.Memorization, 10)

	h := NewGetAchievementHistoryHandler(f.targets, f.entries, f.directory, time.UTC, f.logger)
	res, err := h.Handle(context.Background(), GetAchievementHistoryQuery{StudentID: "s-1", From: weekStart, To: wed})
	require.NoError(t, err)

	// Sunday is active and unmet, but it precedes the first met day.
	assert.Equal(t, 2, res.CurrentStreak)
	assert.Equal(t, 2, res.MetDays)
	assert.False(t, res.Days[2].Active)
}

func TestAchievementHistory_RangeValidation(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "Amina", "h-1")
	h := NewGetAchievementHistoryHandler(f.targets, f.entries, f.directory, time.UTC, f.logger)
	ctx := context.Background()

	_, err := h.Handle(ctx, GetAchievementHistoryQuery{StudentID: "s-1", From: weekStart, To: timeutil.AddDays(weekStart, 90)})
	assert.ErrorIs(t, err, shared.ErrHistoryRangeTooLarge)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, GetAchievementHistoryQuery{StudentID: "s-1", From: weekStart, To: timeutil.AddDays(weekStart, 89)})
	assert.NoError(t, err)

	_, err = h.Handle(ctx, GetAchievementHistoryQuery{StudentID: "s-1", From: weekStart, To: timeutil.AddDays(weekStart, -1)})
	assert.ErrorIs(t, err, shared.ErrInvalidDateRange)

	_, err = h.Handle(ctx, GetAchievementHistoryQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestAchievementHistory_WithoutTarget(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "Amina", "h-1")
	f.recordLines(t, "s-1", weekStart, progress.Memorization, 50)

	h := NewGetAchievementHistoryHandler(f.targets, f.entries, f.directory, time.UTC, f.logger)
	res, err := h.Handle(context.Background(), GetAchievementHistoryQuery{StudentID: "s-1", From: weekStart, To: weekStart})
	require.NoError(t, err)

	assert.False(t, res.HasTarget)
	assert.Equal(t, 0, res.MetDays)
	assert.Equal(t, 50.0, res.Days[0].MemorizationLines)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestStreakLeaderboard_RanksAndExcludesZeroStreaks(t *testing.T) {
	f := newFixture(t)
	for _, st := range []struct{ id, name string }{
		{"s-1", "Yusuf"}, {"s-2", "Amina"}, {"s-3", "Bilal"}, {"s-4", "Zaid"}, {"s-5", "Huda"},
	} {
		f.addStudent(st.id, st.name, "h-1")
	}
	for _, id := range []string{"s-1", "s-2", "s-3", "s-4"} {
		f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: id, MemorizationLines: target.Int(5)})
	}
	f.storeStreak(t, "s-1", 4, 9)
	f.storeStreak(t, "s-2", 4, 9)
	f.storeStreak(t, "s-3", 7, 7)
	f.storeStreak(t, "s-4", 0, 12)

	h := NewGetStreakLeaderboardHandler(f.targets, f.directory, nil, f.logger)
	res, err := h.Handle(context.Background(), GetStreakLeaderboardQuery{})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalStudentsInScope)
	assert.Equal(t, 3, res.StudentsWithStreak)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "s-3", res.Entries[0].StudentID)
	assert.Equal(t, "Amina", res.Entries[1].Name)
	assert.Equal(t, "Yusuf", res.Entries[2].Name)
	assert.Equal(t, 3, res.Entries[2].Rank)

	for _, e := range res.Entries {
		assert.NotEqual(t, "s-4", e.StudentID)
	}
}

func TestStreakLeaderboard_LimitAndScope(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	f.addStudent("s-2", "B", "h-2")
	f.addStudent("s-3", "C", "h-3")
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: id, MemorizationLines: target.Int(5)})
		f.storeStreak(t, id, 1, 1)
	}

	h := NewGetStreakLeaderboardHandler(f.targets, f.directory, f.cache, f.logger)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetStreakLeaderboardQuery{Scope: halaqa.Scope{TeacherID: "t-2"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalStudentsInScope)
	assert.Len(t, res.Entries, 1)

	q := GetStreakLeaderboardQuery{Limit: 1000}
	require.NoError(t, q.Validate())
	assert.Equal(t, 100, q.Limit)

	q = GetStreakLeaderboardQuery{Limit: -1}
	assert.Error(t, q.Validate())
}

func TestStreakLeaderboard_ServesFromCacheUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(5)})
	f.storeStreak(t, "s-1", 2, 2)

	h := NewGetStreakLeaderboardHandler(f.targets, f.directory, f.cache, f.logger)
	ctx := context.Background()

	first, err := h.Handle(ctx, GetStreakLeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	f.storeStreak(t, "s-1", 0, 2)
	cached, err := h.Handle(ctx, GetStreakLeaderboardQuery{})
	require.NoError(t, err)
	assert.Len(t, cached.Entries, 1)

	require.NoError(t, f.cache.Invalidate(ctx))
	fresh, err := h.Handle(ctx, GetStreakLeaderboardQuery{})
	require.NoError(t, err)
	assert.Empty(t, fresh.Entries)
}

// invalidatingCache invalidates right after every miss, as a write landing while
// the query computes would.
type invalidatingCache struct {
	*memory.AggregateCache
}

func (c invalidatingCache) Get(ctx context.Context, key string, dest interface{}) (int64, bool, error) {
	gen, found, err := c.AggregateCache.Get(ctx, key, dest)
	if err == nil && !found {
		err = c.AggregateCache.Invalidate(ctx)
	}
	return gen, found, err
}

func TestStreakLeaderboard_ResultRacingInvalidationIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(5)})
	f.storeStreak(t, "s-1", 2, 2)

	h := NewGetStreakLeaderboardHandler(f.targets, f.directory, invalidatingCache{f.cache}, f.logger)
	ctx := context.Background()

	_, err := h.Handle(ctx, GetStreakLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.Len())

	f.storeStreak(t, "s-1", 0, 2)
	fresh, err := NewGetStreakLeaderboardHandler(f.targets, f.directory, f.cache, f.logger).
		Handle(ctx, GetStreakLeaderboardQuery{})
	require.NoError(t, err)
	assert.Empty(t, fresh.Entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// TARGET OVERVIEW
// ══════════════════════════════════════════════════════════════════════════════

func TestTargetOverview_EmptyScope(t *testing.T) {
	f := newFixture(t)
	h := NewGetTargetOverviewHandler(f.targets, f.entries, f.directory, nil, time.UTC, f.logger)

	res, err := h.Handle(context.Background(), GetTargetOverviewQuery{Scope: halaqa.Scope{HalaqaID: "h-1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalStudents)
	assert.Equal(t, 0.0, res.CoveragePercent)
	assert.Equal(t, 0.0, res.ActivationRatePercent)
}

func TestTargetOverview_Coverage(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	f.addStudent("s-2", "B", "h-1")
	f.addStudent("s-3", "C", "h-2")
	f.addStudent("s-4", "D", "h-3")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(5)})
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-3", RevisionPages: target.Int(1)})

	asOf := timeutil.AddDays(weekStart, 10)
	f.recordLines(t, "s-1", timeutil.AddDays(asOf, -6), progress.Memorization, 5)
	f.recordLines(t, "s-3", timeutil.AddDays(asOf, -7), progress.Revision, 5)

	h := NewGetTargetOverviewHandler(f.targets, f.entries, f.directory, nil, time.UTC, f.logger)
	res, err := h.Handle(context.Background(), GetTargetOverviewQuery{AsOf: asOf})
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalStudents)
	assert.Equal(t, 2, res.StudentsWithTarget)
	assert.Equal(t, 50.0, res.CoveragePercent)
	assert.Equal(t, 3, res.TotalHalaqat)
	assert.Equal(t, 2, res.HalaqatWithTarget)
	assert.Equal(t, 2, res.TotalTeachers)
	assert.Equal(t, 2, res.TeachersWithTarget)
	assert.Equal(t, 1, res.ActiveTargetedStudents)
	assert.Equal(t, 50.0, res.ActivationRatePercent)
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ACHIEVEMENT STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestDailyAchievementStats_UsesEachCalendar(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1") // 4 active days a week
	f.addStudent("s-2", "B", "h-2") // 5 active days a week
	f.addStudent("s-3", "C", "h-2") // no target
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(10)})
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-2", MemorizationLines: target.Int(10), RevisionPages: target.Int(2)})

	tue := timeutil.AddDays(weekStart, 2)
	f.recordLines(t, "s-1", weekStart, progress.Memorization, 10)
	f.recordLines(t, "s-2", tue, progress.Memorization, 20)
	f.recordLines(t, "s-2", tue, progress.Revision, 30)

	h := NewGetDailyAchievementStatsHandler(f.targets, f.entries, f.directory, nil, time.UTC, 2, f.logger)
	res, err := h.Handle(context.Background(), GetDailyAchievementStatsQuery{
		From: weekStart,
		To:   timeutil.AddDays(weekStart, 6),
	})
	require.NoError(t, err)

	assert.Equal(t, 7, res.Days)
	assert.Equal(t, 3, res.TotalStudents)
	assert.Equal(t, 2, res.StudentsWithTarget)

	mem := res.Categories[0]
	assert.Equal(t, progress.Memorization, mem.Category)
	assert.Equal(t, 2, mem.Students)
	assert.Equal(t, 90.0, mem.Target) // 10×4 + 10×5
	assert.Equal(t, 30.0, mem.Achieved)
	assert.InDelta(t, 33.33, mem.Percent, 0.01)

	rev := res.Categories[1]
	assert.Equal(t, 10.0, rev.Target) // 2×5
	assert.Equal(t, 2.0, rev.Achieved)
	assert.Equal(t, 20.0, rev.Percent)

	require.Len(t, res.Daily, 7)

	// Tuesday: only s-2's halaqa meets, and s-2 met both goals.
	tuesday := res.Daily[2]
	assert.Equal(t, 1, tuesday.ActiveStudents)
	assert.True(t, tuesday.Met)
	assert.Equal(t, 100.0, tuesday.AveragePercent)

	// Sunday: both meet; memorization 10 of 20, revision 0 of 2.
	sunday := res.Daily[0]
	assert.Equal(t, 2, sunday.ActiveStudents)
	assert.False(t, sunday.Met)
	assert.Equal(t, 25.0, sunday.AveragePercent)

	// Saturday: nobody meets.
	saturday := res.Daily[6]
	assert.Equal(t, 0, saturday.ActiveStudents)
	assert.False(t, saturday.Met)
}

func TestDailyAchievementStats_PercentCapped(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	f.setGoalsFor(t, command.SetDailyTargetCommand{StudentID: "s-1", MemorizationLines: target.Int(1)})
	f.recordLines(t, "s-1", weekStart, progress.Memorization, 100)

	h := NewGetDailyAchievementStatsHandler(f.targets, f.entries, f.directory, nil, time.UTC, 0, f.logger)
	res, err := h.Handle(context.Background(), GetDailyAchievementStatsQuery{From: weekStart, To: weekStart})
	require.NoError(t, err)

	assert.Equal(t, 100.0, res.Categories[0].Percent)
	assert.Equal(t, 100.0, res.Daily[0].AveragePercent)
}

func TestDailyAchievementStats_RangeBound(t *testing.T) {
	f := newFixture(t)
	h := NewGetDailyAchievementStatsHandler(f.targets, f.entries, f.directory, nil, time.UTC, 0, f.logger)

	_, err := h.Handle(context.Background(), GetDailyAchievementStatsQuery{From: weekStart, To: timeutil.AddDays(weekStart, 120)})
	assert.ErrorIs(t, err, shared.ErrHistoryRangeTooLarge)
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestCurriculumProgress(t *testing.T) {
	f := newFixture(t)
	f.addStudent("s-1", "A", "h-1")
	h := NewGetCurriculumProgressHandler(f.positions, f.entries, f.logger)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetCurriculumProgressQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Equal(t, 0.0, res.Percent)

	_, err = f.record.Handle(ctx, command.RecordProgressCommand{
		StudentID: "s-1", Date: weekStart, Category: progress.Memorization, Chapter: 1, VerseFrom: 1, VerseTo: 7,
	})
	require.NoError(t, err)

	res, err = h.Handle(ctx, GetCurriculumProgressQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, 2, res.Chapter)
	assert.Equal(t, 0, res.Verse)
	assert.Equal(t, 7.0, res.MemorizedLines)
	assert.InDelta(t, 7.0/6236*100, res.Percent, 0.01)
}
