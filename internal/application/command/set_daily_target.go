package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET DAILY TARGET COMMAND
// Creates the student's target on first assignment and edits it afterwards.
// Streak counters survive edits.
// ══════════════════════════════════════════════════════════════════════════════

// SetDailyTargetCommand contains the new goals of a student.
type SetDailyTargetCommand struct {
	StudentID string

	// Nil leaves a category without a goal.
	MemorizationLines  *int
	RevisionPages      *int
	ConsolidationPages *int
}

// Validate validates the command.
func (c SetDailyTargetCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("set_daily_target: student_id is required")
	}
	return nil
}

func (c SetDailyTargetCommand) goals() target.Goals {
	return target.Goals{
		MemorizationLines:  c.MemorizationLines,
		RevisionPages:      c.RevisionPages,
		ConsolidationPages: c.ConsolidationPages,
	}
}

// SetDailyTargetResult contains the stored target.
type SetDailyTargetResult struct {
	Target  *target.DailyTarget
	Created bool
}

// SetDailyTargetHandler handles the SetDailyTargetCommand.
type SetDailyTargetHandler struct {
	targets   target.Repository
	directory halaqa.Directory
	cache     CacheInvalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewSetDailyTargetHandler creates a new SetDailyTargetHandler. cache may be nil.
func NewSetDailyTargetHandler(
	targets target.Repository,
	directory halaqa.Directory,
	cache CacheInvalidator,
	logger *slog.Logger,
) *SetDailyTargetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetDailyTargetHandler{
		targets:   targets,
		directory: directory,
		cache:     cache,
		logger:    logger.With("handler", "set_daily_target"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the set daily target command.
func (h *SetDailyTargetHandler) Handle(ctx context.Context, cmd SetDailyTargetCommand) (*SetDailyTargetResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "SetDailyTarget", shared.ErrValidation, err.Error(), err)
	}

	if _, err := h.directory.GetStudent(ctx, cmd.StudentID); err != nil {
		return nil, err
	}

	now := h.now()
	goals := cmd.goals()
	result := &SetDailyTargetResult{}

	existing, err := h.targets.GetByStudent(ctx, cmd.StudentID)
	switch {
	case errors.Is(err, shared.ErrTargetNotFound):
		created, err := target.NewDailyTarget(cmd.StudentID, goals, now)
		if err != nil {
			return nil, err
		}
		result.Target = created
		result.Created = true
	case err != nil:
		return nil, shared.WrapError("command", "SetDailyTarget", shared.ErrInvalidState, "failed to load target", err)
	default:
		if err := existing.UpdateGoals(goals, now); err != nil {
			return nil, err
		}
		result.Target = existing
	}

	if err := h.targets.Save(ctx, result.Target); err != nil {
		return nil, shared.WrapError("command", "SetDailyTarget", shared.ErrInvalidState, "failed to save target", err)
	}

	invalidate(ctx, h.cache, h.logger)

	h.logger.Info("daily target set",
		"student_id", cmd.StudentID,
		"created", result.Created,
		"categories", result.Target.Defined(),
	)

	return result, nil
}
