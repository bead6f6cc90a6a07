package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TARGET OVERVIEW QUERY
// Target adoption across a scope: how many students, halaqat and teachers use
// daily targets, and how many targeted students recorded anything lately.
// ══════════════════════════════════════════════════════════════════════════════

// activationWindowDays is the trailing window of the activation rate.
const activationWindowDays = 7

// GetTargetOverviewQuery contains the parameters of the overview query.
type GetTargetOverviewQuery struct {
	Scope halaqa.Scope

	// AsOf is the last day of the activation window (defaults to today).
	AsOf time.Time
}

// GetTargetOverviewResult is the adoption summary.
type GetTargetOverviewResult struct {
	TotalStudents      int     `json:"total_students"`
	StudentsWithTarget int     `json:"students_with_target"`
	CoveragePercent    float64 `json:"coverage_percent"`

	TotalHalaqat      int `json:"total_halaqat"`
	HalaqatWithTarget int `json:"halaqat_with_target"`

	TotalTeachers      int `json:"total_teachers"`
	TeachersWithTarget int `json:"teachers_with_target"`

	// ActiveTargetedStudents recorded progress in the trailing 7 days.
	ActiveTargetedStudents int     `json:"active_targeted_students"`
	ActivationRatePercent  float64 `json:"activation_rate_percent"`

	AsOf string `json:"as_of"`
}

// GetTargetOverviewHandler handles the overview query.
type GetTargetOverviewHandler struct {
	targets   target.Repository
	entries   progress.Repository
	directory halaqa.Directory
	cache     AggregateCache
	location  *time.Location
	logger    *slog.Logger
}

// NewGetTargetOverviewHandler creates a new handler. cache may be nil.
func NewGetTargetOverviewHandler(
	targets target.Repository,
	entries progress.Repository,
	directory halaqa.Directory,
	cache AggregateCache,
	loc *time.Location,
	logger *slog.Logger,
) *GetTargetOverviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetTargetOverviewHandler{
		targets:   targets,
		entries:   entries,
		directory: directory,
		cache:     cache,
		location:  loc,
		logger:    logger.With("handler", "get_target_overview"),
	}
}

// Handle executes the overview query.
func (h *GetTargetOverviewHandler) Handle(ctx context.Context, query GetTargetOverviewQuery) (*GetTargetOverviewResult, error) {
	asOf := query.AsOf
	if asOf.IsZero() {
		asOf = timeutil.Today(h.location)
	}
	asOf = timeutil.Day(asOf)

	key := cacheKey("target_overview", query.Scope, dateKey(asOf))
	var cached GetTargetOverviewResult
	slot, hit := tryGetFromCache(ctx, h.cache, key, &cached, h.logger)
	if hit {
		return &cached, nil
	}

	students, err := h.directory.ListStudents(ctx, query.Scope)
	if err != nil {
		return nil, shared.WrapError("query", "GetTargetOverview", shared.ErrInvalidState, "failed to list students", err)
	}
	halaqat, err := h.directory.ListHalaqat(ctx, query.Scope)
	if err != nil {
		return nil, shared.WrapError("query", "GetTargetOverview", shared.ErrInvalidState, "failed to list halaqat", err)
	}

	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	targets, err := h.targets.ListByStudents(ctx, ids)
	if err != nil {
		return nil, shared.WrapError("query", "GetTargetOverview", shared.ErrInvalidState, "failed to load targets", err)
	}

	targeted := make([]string, 0, len(targets))
	targetedHalaqat := make(map[string]bool)
	for _, st := range students {
		if _, ok := targets[st.ID]; !ok {
			continue
		}
		targeted = append(targeted, st.ID)
		for _, hid := range st.HalaqaIDs {
			targetedHalaqat[hid] = true
		}
	}

	result := &GetTargetOverviewResult{
		TotalStudents:      len(students),
		StudentsWithTarget: len(targeted),
		CoveragePercent:    percent(float64(len(targeted)), float64(len(students))),
		TotalHalaqat:       len(halaqat),
		AsOf:               dateKey(asOf),
	}

	teachers := make(map[string]bool)
	teachersWithTarget := make(map[string]bool)
	for _, hq := range halaqat {
		if hq.TeacherID != "" {
			teachers[hq.TeacherID] = true
		}
		if !targetedHalaqat[hq.ID] {
			continue
		}
		result.HalaqatWithTarget++
		if hq.TeacherID != "" {
			teachersWithTarget[hq.TeacherID] = true
		}
	}
	result.TotalTeachers = len(teachers)
	result.TeachersWithTarget = len(teachersWithTarget)

	if len(targeted) > 0 {
		from := timeutil.AddDays(asOf, -(activationWindowDays - 1))
		active, err := h.entries.ActiveStudents(ctx, targeted, from, asOf)
		if err != nil {
			return nil, shared.WrapError("query", "GetTargetOverview", shared.ErrInvalidState, "failed to load activity", err)
		}
		for _, id := range targeted {
			if active[id] {
				result.ActiveTargetedStudents++
			}
		}
	}
	result.ActivationRatePercent = percent(float64(result.ActiveTargetedStudents), float64(len(targeted)))

	storeInCache(ctx, h.cache, slot, result, h.logger)
	return result, nil
}
