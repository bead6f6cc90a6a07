package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD PROGRESS COMMAND
// Records a verse range a student recited. The range is valued in lines once,
// memorization moves the curriculum position, and the streak engine evaluates
// the entry's day.
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressCommand contains the data to record a progress entry.
type RecordProgressCommand struct {
	// StudentID is the student who recited.
	StudentID string

	// HalaqaID is the circle the entry was recorded in (optional).
	HalaqaID string

	// Date is the day of the recitation (defaults to today in the handler's
	// timezone if zero).
	Date time.Time

	// Category is memorization, revision or consolidation.
	Category progress.Category

	// Chapter is the chapter number. When zero, ChapterName is resolved instead.
	Chapter int

	// ChapterName is an alternative to Chapter.
	ChapterName string

	// VerseFrom and VerseTo bound the recited range, both inclusive.
	VerseFrom int
	VerseTo   int

	// Quality is the teacher's rating (optional).
	Quality progress.Quality

	// Notes is free text from the teacher.
	Notes string

	// RecordedBy identifies who entered the record.
	RecordedBy string

	// Direction is used when the student has no position yet. Defaults to forward.
	Direction curriculum.Direction
}

// Validate validates the command.
func (c RecordProgressCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("record_progress: student_id is required")
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("record_progress: unknown category: %s", c.Category)
	}
	if c.Chapter == 0 && c.ChapterName == "" {
		return errors.New("record_progress: chapter or chapter_name is required")
	}
	if c.VerseFrom < 1 || c.VerseTo < c.VerseFrom {
		return fmt.Errorf("record_progress: invalid verse range %d-%d", c.VerseFrom, c.VerseTo)
	}
	if c.Quality != "" && !c.Quality.IsValid() {
		return fmt.Errorf("record_progress: unknown quality: %s", c.Quality)
	}
	if c.Direction != "" && !c.Direction.IsValid() {
		return fmt.Errorf("record_progress: unknown direction: %s", c.Direction)
	}
	return nil
}

// RecordProgressResult contains the result of recording an entry.
type RecordProgressResult struct {
	// Entry is the stored entry.
	Entry *progress.Entry

	// Position is the curriculum position after the entry; nil unless the entry
	// is memorization.
	Position *curriculum.Position

	// PositionAdvanced is true when the position moved.
	PositionAdvanced bool

	// Streak is the engine's evaluation of the entry's day. It is nil when the
	// evaluation failed; the entry is stored regardless and the nightly rebuild
	// settles the streak.
	Streak *UpdateStreakResult
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressHandler handles the RecordProgressCommand.
type RecordProgressHandler struct {
	entries   progress.Repository
	positions curriculum.PositionRepository
	directory halaqa.Directory
	codec     *linetable.Codec
	streaks   *UpdateStreakHandler
	cache     CacheInvalidator
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecordProgressHandler creates a new RecordProgressHandler. cache may be nil.
// loc decides which calendar day an undated entry belongs to; nil means UTC.
func NewRecordProgressHandler(
	entries progress.Repository,
	positions curriculum.PositionRepository,
	directory halaqa.Directory,
	codec *linetable.Codec,
	streaks *UpdateStreakHandler,
	cache CacheInvalidator,
	loc *time.Location,
	logger *slog.Logger,
) *RecordProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = timeutil.DefaultLocation
	}

	return &RecordProgressHandler{
		entries:   entries,
		positions: positions,
		directory: directory,
		codec:     codec,
		streaks:   streaks,
		cache:     cache,
		location:  loc,
		logger:    logger.With("handler", "record_progress"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the record progress command.
func (h *RecordProgressHandler) Handle(ctx context.Context, cmd RecordProgressCommand) (*RecordProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "RecordProgress", shared.ErrValidation, err.Error(), err)
	}

	now := h.now()
	date := cmd.Date
	if date.IsZero() {
		date = timeutil.Day(now.In(h.location))
	}

	stud, err := h.directory.GetStudent(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}
	if cmd.HalaqaID != "" && !stud.BelongsTo(cmd.HalaqaID) {
		return nil, shared.NewDomainError("command", "RecordProgress", shared.ErrValidation,
			fmt.Sprintf("student %s is not a member of halaqa %s", cmd.StudentID, cmd.HalaqaID))
	}

	chapter := cmd.Chapter
	if chapter == 0 {
		ch, err := curriculum.ChapterByName(cmd.ChapterName)
		if err != nil {
			return nil, err
		}
		chapter = ch.Number
	}

	entry, err := progress.NewEntry(progress.NewEntryParams{
		ID:         uuid.New().String(),
		StudentID:  cmd.StudentID,
		HalaqaID:   cmd.HalaqaID,
		Date:       date,
		Category:   cmd.Category,
		Chapter:    chapter,
		VerseFrom:  cmd.VerseFrom,
		VerseTo:    cmd.VerseTo,
		Quality:    cmd.Quality,
		Notes:      cmd.Notes,
		RecordedBy: cmd.RecordedBy,
		CreatedAt:  now,
	}, h.codec)
	if err != nil {
		return nil, err
	}

	if err := h.entries.Create(ctx, entry); err != nil {
		return nil, shared.WrapError("command", "RecordProgress", shared.ErrInvalidState, "failed to store entry", err)
	}

	result := &RecordProgressResult{Entry: entry}

	if entry.Category == progress.Memorization {
		pos, advanced, err := h.advancePosition(ctx, cmd, entry, now)
		if err != nil {
			return nil, err
		}
		result.Position = pos
		result.PositionAdvanced = advanced
	}

	// The entry is already stored, so a failed evaluation must not fail the
	// command: a retry would record the recitation twice.
	streak, err := h.streaks.Handle(ctx, UpdateStreakCommand{
		StudentID: entry.StudentID,
		Date:      entry.Date,
		HalaqaID:  entry.HalaqaID,
	})
	outcome := "unevaluated"
	if err != nil {
		h.logger.Error("streak evaluation failed, left to rebuild",
			"student_id", entry.StudentID,
			"entry_id", entry.ID,
			"date", timeutil.FormatDate(entry.Date),
			"error", err,
		)
	} else {
		result.Streak = streak
		outcome = string(streak.Outcome)
	}

	invalidate(ctx, h.cache, h.logger)

	h.logger.Info("progress recorded",
		"student_id", entry.StudentID,
		"entry_id", entry.ID,
		"date", timeutil.FormatDate(entry.Date),
		"category", entry.Category,
		"chapter", entry.Chapter,
		"verses", fmt.Sprintf("%d-%d", entry.VerseFrom, entry.VerseTo),
		"lines", entry.Lines,
		"streak_outcome", outcome,
	)

	return result, nil
}

// advancePosition moves the student's curriculum position, creating it on first use.
func (h *RecordProgressHandler) advancePosition(
	ctx context.Context,
	cmd RecordProgressCommand,
	entry *progress.Entry,
	now time.Time,
) (*curriculum.Position, bool, error) {
	pos, err := h.positions.GetByStudent(ctx, entry.StudentID)
	if errors.Is(err, shared.ErrPositionNotFound) {
		dir := cmd.Direction
		if dir == "" {
			dir = curriculum.Forward
		}
		pos = curriculum.StartingPosition(entry.StudentID, dir, now)
		err = nil
	}
	if err != nil {
		return nil, false, shared.WrapError("command", "RecordProgress", shared.ErrInvalidState, "failed to load position", err)
	}

	before := *pos
	if err := pos.Apply(entry.Chapter, entry.VerseTo, now); err != nil {
		return nil, false, err
	}

	if err := h.positions.Save(ctx, pos); err != nil {
		return nil, false, shared.WrapError("command", "RecordProgress", shared.ErrInvalidState, "failed to save position", err)
	}

	return pos, pos.Chapter != before.Chapter || pos.Verse != before.Verse, nil
}
