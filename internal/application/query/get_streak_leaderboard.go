package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK LEADERBOARD QUERY
// Ranks the students of a scope by their stored streaks. Students without an
// active streak are counted in the scope but never ranked.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GetStreakLeaderboardQuery contains the parameters of the leaderboard query.
type GetStreakLeaderboardQuery struct {
	// Scope restricts the cohort; the zero value ranks everyone.
	Scope halaqa.Scope

	// Limit is the number of ranked rows (default 10, max 100).
	Limit int
}

// Validate validates and normalizes the query.
func (q *GetStreakLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
	return nil
}

// StreakLeaderboardEntryDTO is one ranked student.
type StreakLeaderboardEntryDTO struct {
	Rank           int     `json:"rank"`
	StudentID      string  `json:"student_id"`
	Name           string  `json:"name"`
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"`
	LastStreakDate *string `json:"last_streak_date,omitempty"`
}

// GetStreakLeaderboardResult contains the ranked students.
type GetStreakLeaderboardResult struct {
	Entries []StreakLeaderboardEntryDTO `json:"entries"`

	// TotalStudentsInScope includes students without a target or streak.
	TotalStudentsInScope int `json:"total_students_in_scope"`

	// StudentsWithStreak is the number of rankable students before the limit.
	StudentsWithStreak int `json:"students_with_streak"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetStreakLeaderboardHandler handles the leaderboard query.
type GetStreakLeaderboardHandler struct {
	targets   target.Repository
	directory halaqa.Directory
	cache     AggregateCache
	logger    *slog.Logger
}

// NewGetStreakLeaderboardHandler creates a new handler. cache may be nil.
func NewGetStreakLeaderboardHandler(
	targets target.Repository,
	directory halaqa.Directory,
	cache AggregateCache,
	logger *slog.Logger,
) *GetStreakLeaderboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStreakLeaderboardHandler{
		targets:   targets,
		directory: directory,
		cache:     cache,
		logger:    logger.With("handler", "get_streak_leaderboard"),
	}
}

// Handle executes the leaderboard query.
func (h *GetStreakLeaderboardHandler) Handle(ctx context.Context, query GetStreakLeaderboardQuery) (*GetStreakLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStreakLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	key := cacheKey("leaderboard", query.Scope, strconv.Itoa(query.Limit))
	var cached GetStreakLeaderboardResult
	slot, hit := tryGetFromCache(ctx, h.cache, key, &cached, h.logger)
	if hit {
		return &cached, nil
	}

	students, err := h.directory.ListStudents(ctx, query.Scope)
	if err != nil {
		return nil, shared.WrapError("query", "GetStreakLeaderboard", shared.ErrInvalidState, "failed to list students", err)
	}

	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	targets, err := h.targets.ListByStudents(ctx, ids)
	if err != nil {
		return nil, shared.WrapError("query", "GetStreakLeaderboard", shared.ErrInvalidState, "failed to load targets", err)
	}

	ranked := rankByStreak(students, targets)

	result := &GetStreakLeaderboardResult{
		Entries:              make([]StreakLeaderboardEntryDTO, 0, min(len(ranked), query.Limit)),
		TotalStudentsInScope: len(students),
		StudentsWithStreak:   len(ranked),
		GeneratedAt:          time.Now().UTC(),
	}
	for i, r := range ranked {
		if i == query.Limit {
			break
		}
		dto := StreakLeaderboardEntryDTO{
			Rank:          i + 1,
			StudentID:     r.student.ID,
			Name:          r.student.Name,
			CurrentStreak: r.target.CurrentStreak,
			LongestStreak: r.target.LongestStreak,
		}
		if last := r.target.LastStreakDate; last != nil {
			s := dateKey(*last)
			dto.LastStreakDate = &s
		}
		result.Entries = append(result.Entries, dto)
	}

	storeInCache(ctx, h.cache, slot, result, h.logger)
	return result, nil
}

type rankedStudent struct {
	student *halaqa.Student
	target  *target.DailyTarget
}

// rankByStreak orders students with a positive current streak by
// (current desc, longest desc, name asc).
func rankByStreak(students []*halaqa.Student, targets map[string]*target.DailyTarget) []rankedStudent {
	ranked := make([]rankedStudent, 0, len(targets))
	for _, st := range students {
		t, ok := targets[st.ID]
		if !ok || t.CurrentStreak <= 0 {
			continue
		}
		ranked = append(ranked, rankedStudent{student: st, target: t})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.target.CurrentStreak != b.target.CurrentStreak {
			return a.target.CurrentStreak > b.target.CurrentStreak
		}
		if a.target.LongestStreak != b.target.LongestStreak {
			return a.target.LongestStreak > b.target.LongestStreak
		}
		if a.student.Name != b.student.Name {
			return a.student.Name < b.student.Name
		}
		return a.student.ID < b.student.ID
	})

	return ranked
}
