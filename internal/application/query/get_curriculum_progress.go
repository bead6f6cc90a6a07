package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CURRICULUM PROGRESS QUERY
// Where a student stands in the curriculum and how much of it is covered.
// ══════════════════════════════════════════════════════════════════════════════

// GetCurriculumProgressQuery identifies the student.
type GetCurriculumProgressQuery struct {
	StudentID string
}

// GetCurriculumProgressResult describes the student's position.
type GetCurriculumProgressResult struct {
	StudentID string `json:"student_id"`

	// Started is false until the first memorization entry.
	Started bool `json:"started"`

	Direction   curriculum.Direction `json:"direction"`
	Chapter     int                  `json:"chapter"`
	ChapterName string               `json:"chapter_name"`
	Verse       int                  `json:"verse"`
	Verses      int                  `json:"verses"`

	// Percent is the covered share of the curriculum, 0..100.
	Percent float64 `json:"percent"`

	// MemorizedLines is the sum of all memorization entries.
	MemorizedLines float64 `json:"memorized_lines"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// GetCurriculumProgressHandler handles the curriculum progress query.
type GetCurriculumProgressHandler struct {
	positions curriculum.PositionRepository
	entries   progress.Repository
	logger    *slog.Logger
}

// NewGetCurriculumProgressHandler creates a new handler.
func NewGetCurriculumProgressHandler(
	positions curriculum.PositionRepository,
	entries progress.Repository,
	logger *slog.Logger,
) *GetCurriculumProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetCurriculumProgressHandler{
		positions: positions,
		entries:   entries,
		logger:    logger.With("handler", "get_curriculum_progress"),
	}
}

// Handle executes the curriculum progress query.
func (h *GetCurriculumProgressHandler) Handle(ctx context.Context, query GetCurriculumProgressQuery) (*GetCurriculumProgressResult, error) {
	if query.StudentID == "" {
		return nil, shared.NewDomainError("query", "GetCurriculumProgress", shared.ErrValidation, "student_id is required")
	}

	result := &GetCurriculumProgressResult{StudentID: query.StudentID}

	pos, err := h.positions.GetByStudent(ctx, query.StudentID)
	switch {
	case errors.Is(err, shared.ErrPositionNotFound):
		pos = curriculum.StartingPosition(query.StudentID, curriculum.Forward, time.Time{})
	case err != nil:
		return nil, shared.WrapError("query", "GetCurriculumProgress", shared.ErrInvalidState, "failed to load position", err)
	default:
		result.Started = true
		updated := pos.UpdatedAt
		result.UpdatedAt = &updated
	}

	ch, err := curriculum.ChapterByNumber(pos.Chapter)
	if err != nil {
		h.logger.Error("stored position has unknown chapter", "student_id", query.StudentID, "chapter", pos.Chapter)
		return nil, err
	}
	result.Direction = pos.Direction
	result.Chapter = ch.Number
	result.ChapterName = ch.Name
	result.Verse = pos.Verse
	result.Verses = ch.Verses
	result.Percent = round2(pos.Fraction() * 100)

	lines, err := h.entries.TotalMemorizedLines(ctx, query.StudentID)
	if err != nil {
		return nil, shared.WrapError("query", "GetCurriculumProgress", shared.ErrInvalidState, "failed to sum lines", err)
	}
	result.MemorizedLines = round2(lines)

	return result, nil
}
