package command

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD STREAK COMMAND
// Back-fill: recomputes stored streak counters from recorded history. Covers the
// cases the incremental engine leaves alone: back-dated and deleted entries.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRebuildWindowDays is how far back history is replayed.
const DefaultRebuildWindowDays = 90

// RebuildStreakCommand rebuilds one student's streak.
type RebuildStreakCommand struct {
	StudentID string
}

// RebuildStreaksCommand rebuilds every targeted student inside Scope.
type RebuildStreaksCommand struct {
	Scope halaqa.Scope
}

// RebuildStreakResult describes one rebuilt student.
type RebuildStreakResult struct {
	StudentID string
	Before    target.Streak
	After     target.Streak
	Changed   bool
}

// RebuildStreaksResult summarizes a bulk rebuild.
type RebuildStreaksResult struct {
	Students int
	Changed  int
	Failed   int
	Duration time.Duration
}

// RebuildStreakHandlerConfig contains configuration for the handler.
type RebuildStreakHandlerConfig struct {
	WindowDays  int
	Parallelism int
	Location    *time.Location
}

// RebuildStreakHandler handles streak back-fill commands.
type RebuildStreakHandler struct {
	targets   target.Repository
	entries   progress.Repository
	directory halaqa.Directory
	cache     CacheInvalidator
	config    RebuildStreakHandlerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRebuildStreakHandler creates a new RebuildStreakHandler. cache may be nil.
func NewRebuildStreakHandler(
	targets target.Repository,
	entries progress.Repository,
	directory halaqa.Directory,
	cache CacheInvalidator,
	config RebuildStreakHandlerConfig,
	logger *slog.Logger,
) *RebuildStreakHandler {
	if config.WindowDays <= 0 || config.WindowDays > DefaultRebuildWindowDays {
		config.WindowDays = DefaultRebuildWindowDays
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 8
	}
	if config.Location == nil {
		config.Location = timeutil.DefaultLocation
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RebuildStreakHandler{
		targets:   targets,
		entries:   entries,
		directory: directory,
		cache:     cache,
		config:    config,
		logger:    logger.With("handler", "rebuild_streak"),
		now:       time.Now,
	}
}

// Handle rebuilds the streak of a single student.
func (h *RebuildStreakHandler) Handle(ctx context.Context, cmd RebuildStreakCommand) (*RebuildStreakResult, error) {
	if cmd.StudentID == "" {
		return nil, shared.NewDomainError("command", "RebuildStreak", shared.ErrValidation, "student_id is required")
	}

	res, err := h.rebuild(ctx, cmd.StudentID, "")
	if err != nil {
		return nil, err
	}
	if res.Changed {
		invalidate(ctx, h.cache, h.logger)
	}
	return res, nil
}

// HandleAll rebuilds every targeted student in scope concurrently. Failures of
// individual students are logged and counted, not returned.
func (h *RebuildStreakHandler) HandleAll(ctx context.Context, cmd RebuildStreaksCommand) (*RebuildStreaksResult, error) {
	started := time.Now()

	students, err := h.directory.ListStudents(ctx, cmd.Scope)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	targets, err := h.targets.ListByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}

	var changed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)

	for _, st := range students {
		if _, ok := targets[st.ID]; !ok {
			continue
		}
		g.Go(func() error {
			res, err := h.rebuild(gctx, st.ID, cmd.Scope.HalaqaID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				h.logger.Warn("failed to rebuild streak", "student_id", st.ID, "error", err)
				return nil
			}
			if res.Changed {
				changed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &RebuildStreaksResult{
		Students: len(targets),
		Changed:  int(changed.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(started),
	}
	if result.Changed > 0 {
		invalidate(ctx, h.cache, h.logger)
	}

	h.logger.Info("streaks rebuilt",
		"students", result.Students,
		"changed", result.Changed,
		"failed", result.Failed,
		"duration", result.Duration,
	)

	return result, nil
}

func (h *RebuildStreakHandler) rebuild(ctx context.Context, studentID, halaqaID string) (*RebuildStreakResult, error) {
	cal, err := halaqa.CalendarFor(ctx, h.directory, studentID, halaqaID)
	if err != nil {
		return nil, err
	}

	to := timeutil.Today(h.config.Location)
	from := timeutil.AddDays(to, -(h.config.WindowDays - 1))

	entries, err := h.entries.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	totals := progress.SumByDay(entries)
	days := timeutil.Days(from, to)

	res := &RebuildStreakResult{StudentID: studentID}
	_, err = h.targets.UpdateStreak(ctx, studentID, func(t *target.DailyTarget) (bool, error) {
		res.Before = t.Streak

		replayed, _ := target.Replay(t.Goals, cal, days, totals)
		res.After = mergeRebuilt(t.Streak, replayed, cal, from)
		res.Changed = !sameStreak(res.Before, res.After)

		if res.Changed {
			t.Streak = res.After
			t.UpdatedAt = h.now().UTC()
		}
		return res.Changed, nil
	})
	if errors.Is(err, shared.ErrTargetNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Changed {
		h.logger.Info("streak corrected",
			"student_id", studentID,
			"before", res.Before.CurrentStreak,
			"after", res.After.CurrentStreak,
		)
	}
	return res, nil
}

// mergeRebuilt combines a replay of the window with the stored counters. History
// before the window is unknown: a run reaching back to the first active day of the
// window may be longer than the replay shows, and the longest streak never shrinks.
func mergeRebuilt(stored, replayed target.Streak, cal halaqa.WeekdaySet, windowStart time.Time) target.Streak {
	// Nothing in the window to check the stored counters against.
	if replayed.LastStreakDate == nil && stored.LastStreakDate != nil && stored.LastStreakDate.Before(windowStart) {
		return stored
	}

	out := replayed

	if replayed.LastStreakDate != nil && stored.LastStreakDate != nil &&
		replayed.LastStreakDate.Equal(*stored.LastStreakDate) &&
		cal.CountActive(windowStart, *replayed.LastStreakDate) == replayed.CurrentStreak &&
		stored.CurrentStreak > replayed.CurrentStreak {
		out.CurrentStreak = stored.CurrentStreak
	}

	if stored.LongestStreak > out.LongestStreak {
		out.LongestStreak = stored.LongestStreak
	}
	if out.CurrentStreak > out.LongestStreak {
		out.LongestStreak = out.CurrentStreak
	}
	return out
}

func sameStreak(a, b target.Streak) bool {
	if a.CurrentStreak != b.CurrentStreak || a.LongestStreak != b.LongestStreak {
		return false
	}
	if a.LastStreakDate == nil || b.LastStreakDate == nil {
		return a.LastStreakDate == nil && b.LastStreakDate == nil
	}
	return a.LastStreakDate.Equal(*b.LastStreakDate)
}
