package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE PROGRESS COMMAND
// Removes a mistaken entry. The curriculum position and the stored streak are not
// rewound; RebuildStreak reconciles the streak from the remaining history.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteProgressCommand identifies the entry to delete.
type DeleteProgressCommand struct {
	EntryID   string
	DeletedBy string
}

// Validate validates the command.
func (c DeleteProgressCommand) Validate() error {
	if c.EntryID == "" {
		return errors.New("delete_progress: entry_id is required")
	}
	return nil
}

// DeleteProgressHandler handles the DeleteProgressCommand.
type DeleteProgressHandler struct {
	entries progress.Repository
	cache   CacheInvalidator
	logger  *slog.Logger
}

// NewDeleteProgressHandler creates a new DeleteProgressHandler. cache may be nil.
func NewDeleteProgressHandler(entries progress.Repository, cache CacheInvalidator, logger *slog.Logger) *DeleteProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteProgressHandler{
		entries: entries,
		cache:   cache,
		logger:  logger.With("handler", "delete_progress"),
	}
}

// Handle executes the delete progress command and returns the removed entry.
func (h *DeleteProgressHandler) Handle(ctx context.Context, cmd DeleteProgressCommand) (*progress.Entry, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "DeleteProgress", shared.ErrValidation, err.Error(), err)
	}

	entry, err := h.entries.GetByID(ctx, cmd.EntryID)
	if err != nil {
		return nil, err
	}

	if err := h.entries.Delete(ctx, cmd.EntryID); err != nil {
		return nil, err
	}

	invalidate(ctx, h.cache, h.logger)

	h.logger.Info("progress deleted",
		"entry_id", entry.ID,
		"student_id", entry.StudentID,
		"date", timeutil.FormatDate(entry.Date),
		"deleted_by", cmd.DeletedBy,
	)

	return entry, nil
}
