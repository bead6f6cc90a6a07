package query

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY ACHIEVEMENT STATS QUERY
// Cohort rollup over a date range. Halaqat meet on different weekdays, so each
// student's cumulative target is the daily goal times the number of that
// student's active days in the range.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultStatsDays        = 7
	defaultStatsParallelism = 8
)

// GetDailyAchievementStatsQuery contains the parameters of the rollup.
type GetDailyAchievementStatsQuery struct {
	Scope halaqa.Scope

	// From and To bound the range, both inclusive; at most 90 days. To defaults to
	// today and From to 7 days before To.
	From time.Time
	To   time.Time
}

// CategoryStatsDTO is the cumulative rollup of one category.
type CategoryStatsDTO struct {
	Category progress.Category `json:"category"`
	Unit     string            `json:"unit"`

	// Students is the number of students with a goal in this category.
	Students int     `json:"students"`
	Target   float64 `json:"target"`
	Achieved float64 `json:"achieved"`
	Percent  float64 `json:"percent"`
}

// DaySummaryDTO is the cohort-wide evaluation of one day.
type DaySummaryDTO struct {
	Date string `json:"date"`

	// ActiveStudents is the number of targeted students whose halaqa meets that day.
	ActiveStudents int `json:"active_students"`

	Categories []CategoryStatsDTO `json:"categories"`

	// Met is true when every category with a target reached it.
	Met bool `json:"met"`

	// AveragePercent is the mean capped percentage over categories with a target.
	AveragePercent float64 `json:"average_percent"`
}

// GetDailyAchievementStatsResult is the rollup.
type GetDailyAchievementStatsResult struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days"`

	TotalStudents      int `json:"total_students"`
	StudentsWithTarget int `json:"students_with_target"`

	Categories []CategoryStatsDTO `json:"categories"`
	Daily      []DaySummaryDTO    `json:"daily"`
}

// GetDailyAchievementStatsHandler handles the rollup query.
type GetDailyAchievementStatsHandler struct {
	targets     target.Repository
	entries     progress.Repository
	directory   halaqa.Directory
	cache       AggregateCache
	location    *time.Location
	parallelism int
	logger      *slog.Logger
}

// NewGetDailyAchievementStatsHandler creates a new handler. cache may be nil.
func NewGetDailyAchievementStatsHandler(
	targets target.Repository,
	entries progress.Repository,
	directory halaqa.Directory,
	cache AggregateCache,
	loc *time.Location,
	parallelism int,
	logger *slog.Logger,
) *GetDailyAchievementStatsHandler {
	if parallelism <= 0 {
		parallelism = defaultStatsParallelism
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetDailyAchievementStatsHandler{
		targets:     targets,
		entries:     entries,
		directory:   directory,
		cache:       cache,
		location:    loc,
		parallelism: parallelism,
		logger:      logger.With("handler", "get_daily_achievement_stats"),
	}
}

// studentRollup is the contribution of one targeted student.
type studentRollup struct {
	goals      target.Goals
	cal        halaqa.WeekdaySet
	activeDays int
	byDay      map[time.Time]progress.DayTotals
}

// Handle executes the rollup query.
func (h *GetDailyAchievementStatsHandler) Handle(ctx context.Context, query GetDailyAchievementStatsQuery) (*GetDailyAchievementStatsResult, error) {
	if err := normalizeRange(&query.From, &query.To, timeutil.Today(h.location), defaultStatsDays); err != nil {
		return nil, err
	}

	key := cacheKey("daily_stats", query.Scope, dateKey(query.From), dateKey(query.To))
	var cached GetDailyAchievementStatsResult
	slot, hit := tryGetFromCache(ctx, h.cache, key, &cached, h.logger)
	if hit {
		return &cached, nil
	}

	students, err := h.directory.ListStudents(ctx, query.Scope)
	if err != nil {
		return nil, shared.WrapError("query", "GetDailyAchievementStats", shared.ErrInvalidState, "failed to list students", err)
	}
	halaqat, err := h.directory.ListHalaqat(ctx, query.Scope)
	if err != nil {
		return nil, shared.WrapError("query", "GetDailyAchievementStats", shared.ErrInvalidState, "failed to list halaqat", err)
	}
	calendars := halaqa.NewCalendars(halaqat)

	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	targets, err := h.targets.ListByStudents(ctx, ids)
	if err != nil {
		return nil, shared.WrapError("query", "GetDailyAchievementStats", shared.ErrInvalidState, "failed to load targets", err)
	}

	targeted := make([]*halaqa.Student, 0, len(targets))
	for _, st := range students {
		if t, ok := targets[st.ID]; ok && t.IsDefined() {
			targeted = append(targeted, st)
		}
	}

	// Each goroutine writes only its own slot.
	rollups := make([]studentRollup, len(targeted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, st := range targeted {
		g.Go(func() error {
			entries, err := h.entries.ListByStudent(gctx, st.ID, query.From, query.To)
			if err != nil {
				return err
			}
			cal := calendars.ForStudent(st)
			rollups[i] = studentRollup{
				goals:      targets[st.ID].Goals,
				cal:        cal,
				activeDays: cal.CountActive(query.From, query.To),
				byDay:      progress.SumByDay(entries),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "GetDailyAchievementStats", shared.ErrInvalidState, "failed to load entries", err)
	}

	days := timeutil.Days(query.From, query.To)
	result := &GetDailyAchievementStatsResult{
		From:               dateKey(query.From),
		To:                 dateKey(query.To),
		Days:               len(days),
		TotalStudents:      len(students),
		StudentsWithTarget: len(targeted),
		Categories:         cumulativeStats(rollups),
		Daily:              make([]DaySummaryDTO, 0, len(days)),
	}
	for _, day := range days {
		result.Daily = append(result.Daily, daySummary(day, rollups))
	}

	storeInCache(ctx, h.cache, slot, result, h.logger)

	h.logger.Debug("daily achievement stats computed",
		"from", result.From,
		"to", result.To,
		"students", result.TotalStudents,
		"targeted", result.StudentsWithTarget,
	)

	return result, nil
}

type categoryAccumulator struct {
	students int
	target   float64
	achieved float64
}

func newAccumulators() map[progress.Category]*categoryAccumulator {
	acc := make(map[progress.Category]*categoryAccumulator, len(progress.Categories))
	for _, c := range progress.Categories {
		acc[c] = &categoryAccumulator{}
	}
	return acc
}

func toCategoryDTOs(acc map[progress.Category]*categoryAccumulator) []CategoryStatsDTO {
	out := make([]CategoryStatsDTO, 0, len(progress.Categories))
	for _, c := range progress.Categories {
		a := acc[c]
		out = append(out, CategoryStatsDTO{
			Category: c,
			Unit:     unitOf(c),
			Students: a.students,
			Target:   round2(a.target),
			Achieved: round2(a.achieved),
			Percent:  percent(a.achieved, a.target),
		})
	}
	return out
}

// cumulativeStats sums every student's range target and achievement per category.
func cumulativeStats(rollups []studentRollup) []CategoryStatsDTO {
	acc := newAccumulators()
	for _, r := range rollups {
		var total progress.DayTotals
		for _, t := range r.byDay {
			total.MemorizationLines += t.MemorizationLines
			total.RevisionLines += t.RevisionLines
			total.ConsolidationLines += t.ConsolidationLines
		}
		for _, c := range progress.Categories {
			goal, ok := r.goals.For(c)
			if !ok {
				continue
			}
			a := acc[c]
			a.students++
			a.target += goal * float64(r.activeDays)
			a.achieved += target.Achieved(total, c)
		}
	}
	return toCategoryDTOs(acc)
}

// daySummary evaluates the cohort on a single day using only students whose
// calendar makes that day active.
func daySummary(day time.Time, rollups []studentRollup) DaySummaryDTO {
	acc := newAccumulators()
	summary := DaySummaryDTO{Date: dateKey(day)}

	for _, r := range rollups {
		if !r.cal.IsActive(day) {
			continue
		}
		summary.ActiveStudents++
		totals := r.byDay[day]
		for _, c := range progress.Categories {
			goal, ok := r.goals.For(c)
			if !ok {
				continue
			}
			a := acc[c]
			a.students++
			a.target += goal
			a.achieved += target.Achieved(totals, c)
		}
	}

	summary.Categories = toCategoryDTOs(acc)

	defined := 0
	met := true
	sum := 0.0
	for _, c := range progress.Categories {
		a := acc[c]
		if a.target <= 0 {
			continue
		}
		defined++
		sum += percent(a.achieved, a.target)
		if a.achieved+1e-9 < a.target {
			met = false
		}
	}
	if defined > 0 {
		summary.Met = met
		summary.AveragePercent = round2(sum / float64(defined))
	}
	return summary
}

func unitOf(c progress.Category) string {
	if c == progress.Memorization {
		return "lines"
	}
	return "pages"
}
