package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func entry(id, student string, date time.Time, c progress.Category, lines float64) *progress.Entry {
	return &progress.Entry{ID: id, StudentID: student, Date: date, Category: c, Lines: lines, CreatedAt: date}
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()

	require.NoError(t, repo.Create(ctx, entry("e1", "s1", day(1), progress.Memorization, 7)))
	require.NoError(t, repo.Create(ctx, entry("e2", "s1", day(1), progress.Revision, 30)))
	require.NoError(t, repo.Create(ctx, entry("e3", "s1", day(3), progress.Memorization, 5)))
	require.NoError(t, repo.Create(ctx, entry("e4", "s2", day(2), progress.Consolidation, 15)))

	err := repo.Create(ctx, entry("e1", "s1", day(1), progress.Memorization, 1))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	totals, err := repo.DayTotals(ctx, "s1", day(1))
	require.NoError(t, err)
	assert.Equal(t, 7.0, totals.MemorizationLines)
	assert.Equal(t, 30.0, totals.RevisionLines)

	list, err := repo.ListByStudent(ctx, "s1", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "e3", list[2].ID)

	byStudent, err := repo.TotalsByStudent(ctx, []string{"s1", "s2", "s3"}, day(2), day(3))
	require.NoError(t, err)
	assert.Equal(t, 5.0, byStudent["s1"].MemorizationLines)
	assert.Equal(t, 15.0, byStudent["s2"].ConsolidationLines)
	assert.NotContains(t, byStudent, "s3")

	active, err := repo.ActiveStudents(ctx, []string{"s1", "s2"}, day(3), day(4))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s1": true}, active)

	total, err := repo.TotalMemorizedLines(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, total)

	require.NoError(t, repo.Delete(ctx, "e3"))
	assert.ErrorIs(t, repo.Delete(ctx, "e3"), shared.ErrEntryNotFound)
	_, err = repo.GetByID(ctx, "e3")
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
}

func TestTargetRepository_SaveKeepsStreak(t *testing.T) {
	ctx := context.Background()
	repo := NewTargetRepository()

	tgt, err := target.NewDailyTarget("s1", target.Goals{MemorizationLines: target.Int(5)}, day(1))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, tgt))

	_, err = repo.UpdateStreak(ctx, "s1", func(t *target.DailyTarget) (bool, error) {
		t.CurrentStreak = 4
		t.LongestStreak = 6
		return true, nil
	})
	require.NoError(t, err)

	replaced, err := target.NewDailyTarget("s1", target.Goals{RevisionPages: target.Int(2)}, day(2))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, replaced))

	got, err := repo.GetByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got.MemorizationLines)
	assert.Equal(t, 2, *got.RevisionPages)
	assert.Equal(t, 4, got.CurrentStreak)
	assert.Equal(t, 6, got.LongestStreak)
}

func TestTargetRepository_UpdateStreak(t *testing.T) {
	ctx := context.Background()
	repo := NewTargetRepository()

	_, err := repo.UpdateStreak(ctx, "missing", func(*target.DailyTarget) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, shared.ErrTargetNotFound)

	tgt, err := target.NewDailyTarget("s1", target.Goals{MemorizationLines: target.Int(5)}, day(1))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, tgt))

	// Unchanged and failed updates are not written.
	_, err = repo.UpdateStreak(ctx, "s1", func(t *target.DailyTarget) (bool, error) {
		t.CurrentStreak = 99
		return false, nil
	})
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = repo.UpdateStreak(ctx, "s1", func(t *target.DailyTarget) (bool, error) {
		t.CurrentStreak = 99
		return true, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStreak)

	// Concurrent increments of one student are serialized.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.UpdateStreak(ctx, "s1", func(t *target.DailyTarget) (bool, error) {
				t.CurrentStreak++
				return true, nil
			})
		}()
	}
	wg.Wait()

	got, err = repo.GetByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.CurrentStreak)

	byStudent, err := repo.ListByStudents(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, byStudent, 1)
}

func TestDirectory_Scope(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory()
	dir.AddHalaqa(&halaqa.Halaqa{ID: "h-1", TeacherID: "t-1"})
	dir.AddHalaqa(&halaqa.Halaqa{ID: "h-2", TeacherID: "t-2"})
	dir.AddStudent(&halaqa.Student{ID: "s1", HalaqaIDs: []string{"h-1"}})
	dir.AddStudent(&halaqa.Student{ID: "s2", HalaqaIDs: []string{"h-2", "h-1"}})
	dir.AddStudent(&halaqa.Student{ID: "s3", HalaqaIDs: []string{"h-2"}})
	dir.AddStudent(&halaqa.Student{ID: "s4"})

	all, err := dir.ListStudents(ctx, halaqa.Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byHalaqa, err := dir.ListStudents(ctx, halaqa.Scope{HalaqaID: "h-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, studentIDs(byHalaqa))

	byTeacher, err := dir.ListStudents(ctx, halaqa.Scope{TeacherID: "t-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, studentIDs(byTeacher))

	none, err := dir.ListHalaqat(ctx, halaqa.Scope{TeacherID: "t-1", HalaqaID: "h-2"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = dir.GetStudent(ctx, "s9")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	// Returned students are copies.
	s, err := dir.GetStudent(ctx, "s1")
	require.NoError(t, err)
	s.HalaqaIDs[0] = "h-2"
	again, err := dir.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "h-1", again.PrimaryHalaqaID())
}

func studentIDs(students []*halaqa.Student) []string {
	out := make([]string, 0, len(students))
	for _, s := range students {
		out = append(out, s.ID)
	}
	return out
}

func TestAggregateCache(t *testing.T) {
	ctx := context.Background()
	now := day(1)
	cache := NewAggregateCache(time.Minute)
	cache.now = func() time.Time { return now }

	gen, found, err := cache.Get(ctx, "leaderboard", new([]string))
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, cache.Set(ctx, gen, "leaderboard", []string{"s1", "s2"}))

	var got []string
	_, found, err = cache.Get(ctx, "leaderboard", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"s1", "s2"}, got)

	now = now.Add(time.Minute)
	_, found, err = cache.Get(ctx, "leaderboard", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Set(ctx, gen, "overview", 3))
	require.NoError(t, cache.Invalidate(ctx))
	_, found, err = cache.Get(ctx, "overview", new(int))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAggregateCache_DropsWritesFromRetiredGeneration(t *testing.T) {
	ctx := context.Background()
	cache := NewAggregateCache(time.Minute)

	// A query misses, then a write invalidates before the query stores its result.
	gen, found, err := cache.Get(ctx, "overview", new(int))
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Set(ctx, gen, "overview", 1))

	next, found, err := cache.Get(ctx, "overview", new(int))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, gen+1, next)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Set(ctx, next, "overview", 2))
	var got int
	_, found, err = cache.Get(ctx, "overview", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, got)
}
