// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/pkg/retry"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STREAK COMMAND
// Incremental streak engine. Runs after every recorded entry and evaluates the
// entry's day against the student's target under a per-student lock.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreakCommand asks the engine to evaluate one day of one student.
type UpdateStreakCommand struct {
	// StudentID is the student whose streak is evaluated.
	StudentID string

	// Date is the day progress was recorded for.
	Date time.Time

	// HalaqaID selects the calendar. Empty means the student's primary halaqa.
	HalaqaID string
}

// Validate validates the command.
func (c UpdateStreakCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("update_streak: student_id is required")
	}
	if c.Date.IsZero() {
		return errors.New("update_streak: date is required")
	}
	return nil
}

// UpdateStreakResult describes what the engine did.
type UpdateStreakResult struct {
	StudentID      string
	Date           time.Time
	Outcome        target.Outcome
	CurrentStreak  int
	LongestStreak  int
	LastStreakDate *time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreakHandler handles the UpdateStreakCommand.
type UpdateStreakHandler struct {
	targets   target.Repository
	entries   progress.Repository
	directory halaqa.Directory
	retrier   *retry.Retrier
	logger    *slog.Logger
	now       func() time.Time
}

// NewUpdateStreakHandler creates a new UpdateStreakHandler.
func NewUpdateStreakHandler(
	targets target.Repository,
	entries progress.Repository,
	directory halaqa.Directory,
	logger *slog.Logger,
) *UpdateStreakHandler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("handler", "update_streak")

	return &UpdateStreakHandler{
		targets:   targets,
		entries:   entries,
		directory: directory,
		retrier: retry.StreakRetrier(
			func(err error) bool { return errors.Is(err, shared.ErrConcurrentModification) },
			func(attempt int, err error, delay time.Duration) {
				logger.Debug("retrying streak update", "attempt", attempt, "delay", delay, "error", err)
			},
		),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the update streak command. A student without a target is a
// silent no-op reported as target.OutcomeNoTarget.
func (h *UpdateStreakHandler) Handle(ctx context.Context, cmd UpdateStreakCommand) (*UpdateStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "UpdateStreak", shared.ErrValidation, err.Error(), err)
	}

	day := timeutil.Day(cmd.Date)
	result := &UpdateStreakResult{
		StudentID: cmd.StudentID,
		Date:      day,
		Outcome:   target.OutcomeNoTarget,
	}

	cal, err := halaqa.CalendarFor(ctx, h.directory, cmd.StudentID, cmd.HalaqaID)
	if err != nil {
		return nil, err
	}

	var updated *target.DailyTarget
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var opErr error
		updated, opErr = h.targets.UpdateStreak(ctx, cmd.StudentID, func(t *target.DailyTarget) (bool, error) {
			if o := t.Precheck(day, cal); o != target.OutcomePending {
				result.Outcome = o
				return false, nil
			}

			totals, err := h.entries.DayTotals(ctx, cmd.StudentID, day)
			if err != nil {
				return false, err
			}

			result.Outcome = t.Evaluate(day, cal, totals, h.now())
			return result.Outcome.Changed(), nil
		})
		return opErr
	})
	if errors.Is(err, shared.ErrTargetNotFound) {
		result.Outcome = target.OutcomeNoTarget
		return result, nil
	}
	if err != nil {
		return nil, shared.WrapError("command", "UpdateStreak", shared.ErrInvalidState, "failed to update streak", err)
	}

	result.CurrentStreak = updated.CurrentStreak
	result.LongestStreak = updated.LongestStreak
	result.LastStreakDate = updated.LastStreakDate

	if result.Outcome.Changed() {
		h.logger.Info("streak updated",
			"student_id", cmd.StudentID,
			"date", timeutil.FormatDate(day),
			"outcome", result.Outcome,
			"current_streak", updated.CurrentStreak,
			"longest_streak", updated.LongestStreak,
		)
	}

	return result, nil
}
