package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENT HISTORY QUERY
// Recomputes day-by-day achievement and streaks from raw entries. Uses the
// student's current target for every day of the range.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxHistoryDays bounds the length of any reporting range.
	MaxHistoryDays = 90

	// defaultHistoryDays is used when From is not set.
	defaultHistoryDays = 30
)

// GetAchievementHistoryQuery contains the parameters of the history query.
type GetAchievementHistoryQuery struct {
	// StudentID is required.
	StudentID string

	// HalaqaID selects the calendar. Empty means the student's primary halaqa.
	HalaqaID string

	// From and To bound the range, both inclusive. To defaults to today and From
	// to 30 days before To.
	From time.Time
	To   time.Time
}

// Validate normalizes the range and rejects invalid parameters.
func (q *GetAchievementHistoryQuery) Validate(today time.Time) error {
	if q.StudentID == "" {
		return shared.NewDomainError("query", "GetAchievementHistory", shared.ErrValidation, "student_id is required")
	}
	return normalizeRange(&q.From, &q.To, today, defaultHistoryDays)
}

// normalizeRange fills defaults and enforces the MaxHistoryDays bound.
func normalizeRange(from, to *time.Time, today time.Time, defaultDays int) error {
	if to.IsZero() {
		*to = today
	}
	*to = timeutil.Day(*to)
	if from.IsZero() {
		*from = timeutil.AddDays(*to, -(defaultDays - 1))
	}
	*from = timeutil.Day(*from)

	if to.Before(*from) {
		return shared.ErrInvalidDateRange
	}
	if timeutil.SpanDays(*from, *to) > MaxHistoryDays {
		return shared.ErrHistoryRangeTooLarge
	}
	return nil
}

// GoalsDTO is a target definition; nil means no goal for the category.
type GoalsDTO struct {
	MemorizationLines  *int `json:"memorization_lines,omitempty"`
	RevisionPages      *int `json:"revision_pages,omitempty"`
	ConsolidationPages *int `json:"consolidation_pages,omitempty"`
}

func toGoalsDTO(g target.Goals) GoalsDTO {
	return GoalsDTO{
		MemorizationLines:  g.MemorizationLines,
		RevisionPages:      g.RevisionPages,
		ConsolidationPages: g.ConsolidationPages,
	}
}

// DayAchievementDTO is the evaluation of one day.
type DayAchievementDTO struct {
	Date               string  `json:"date"`
	Active             bool    `json:"active"`
	Met                bool    `json:"met"`
	MemorizationLines  float64 `json:"memorization_lines"`
	RevisionPages      float64 `json:"revision_pages"`
	ConsolidationPages float64 `json:"consolidation_pages"`
}

// GetAchievementHistoryResult is the recomputed history.
type GetAchievementHistoryResult struct {
	StudentID string `json:"student_id"`
	From      string `json:"from"`
	To        string `json:"to"`

	// HasTarget is false when the student has no target; no day is met then.
	HasTarget bool     `json:"has_target"`
	Goals     GoalsDTO `json:"goals"`

	Days []DayAchievementDTO `json:"days"`

	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	LastMetDate   *string `json:"last_met_date,omitempty"`

	ActiveDays int `json:"active_days"`
	MetDays    int `json:"met_days"`
}

// GetAchievementHistoryHandler handles the history query.
type GetAchievementHistoryHandler struct {
	targets   target.Repository
	entries   progress.Repository
	directory halaqa.Directory
	location  *time.Location
	logger    *slog.Logger
}

// NewGetAchievementHistoryHandler creates a new handler. loc decides what "today" is.
func NewGetAchievementHistoryHandler(
	targets target.Repository,
	entries progress.Repository,
	directory halaqa.Directory,
	loc *time.Location,
	logger *slog.Logger,
) *GetAchievementHistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetAchievementHistoryHandler{
		targets:   targets,
		entries:   entries,
		directory: directory,
		location:  loc,
		logger:    logger.With("handler", "get_achievement_history"),
	}
}

// Handle executes the history query.
func (h *GetAchievementHistoryHandler) Handle(ctx context.Context, query GetAchievementHistoryQuery) (*GetAchievementHistoryResult, error) {
	if err := query.Validate(timeutil.Today(h.location)); err != nil {
		return nil, err
	}

	cal, err := halaqa.CalendarFor(ctx, h.directory, query.StudentID, query.HalaqaID)
	if err != nil {
		return nil, err
	}

	var goals target.Goals
	hasTarget := true
	t, err := h.targets.GetByStudent(ctx, query.StudentID)
	switch {
	case errors.Is(err, shared.ErrTargetNotFound):
		hasTarget = false
	case err != nil:
		return nil, shared.WrapError("query", "GetAchievementHistory", shared.ErrInvalidState, "failed to load target", err)
	default:
		goals = t.Goals
	}

	entries, err := h.entries.ListByStudent(ctx, query.StudentID, query.From, query.To)
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievementHistory", shared.ErrInvalidState, "failed to load entries", err)
	}

	streak, days := target.Replay(goals, cal, timeutil.Days(query.From, query.To), progress.SumByDay(entries))

	result := &GetAchievementHistoryResult{
		StudentID:     query.StudentID,
		From:          dateKey(query.From),
		To:            dateKey(query.To),
		HasTarget:     hasTarget,
		Goals:         toGoalsDTO(goals),
		Days:          make([]DayAchievementDTO, len(days)),
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
	}
	if streak.LastStreakDate != nil {
		last := dateKey(*streak.LastStreakDate)
		result.LastMetDate = &last
	}

	for i, d := range days {
		result.Days[i] = DayAchievementDTO{
			Date:               dateKey(d.Date),
			Active:             d.Active,
			Met:                d.Met,
			MemorizationLines:  round2(d.Totals.MemorizationLines),
			RevisionPages:      round2(d.Totals.RevisionPages()),
			ConsolidationPages: round2(d.Totals.ConsolidationPages()),
		}
		if d.Active {
			result.ActiveDays++
		}
		if d.Met {
			result.MetDays++
		}
	}

	h.logger.Debug("achievement history computed",
		"student_id", query.StudentID,
		"from", result.From,
		"to", result.To,
		"current_streak", result.CurrentStreak,
	)

	return result, nil
}
