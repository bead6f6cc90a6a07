// Package target contains a student's daily target and the streak rules built on it.
//
// The day-met predicate (Goals.IsMet) and the continuation rule (ContinuesStreak) are
// the only implementations of those rules. Both the write-time engine and the
// historical recomputation replay days through Streak.RecordMetDay, so the two paths
// cannot disagree.
package target

import (
	"context"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

// epsilon absorbs rounding of stored line counts when comparing against a goal.
const epsilon = 1e-9

// Goals holds the three independently optional daily goals. A nil or non-positive
// value means the category has no goal.
type Goals struct {
	// MemorizationLines is the daily memorization goal in lines.
	MemorizationLines *int

	// RevisionPages is the daily revision goal in pages.
	RevisionPages *int

	// ConsolidationPages is the daily consolidation goal in pages.
	ConsolidationPages *int
}

// Int returns a pointer to v, for building Goals literals.
func Int(v int) *int {
	return &v
}

// Validate rejects negative goals and a definition without any goal.
func (g Goals) Validate() error {
	for _, v := range []*int{g.MemorizationLines, g.RevisionPages, g.ConsolidationPages} {
		if v != nil && *v < 0 {
			return shared.ErrNegativeTarget
		}
	}
	if !g.IsDefined() {
		return shared.ErrEmptyTarget
	}
	return nil
}

// IsDefined reports whether at least one category has a goal.
func (g Goals) IsDefined() bool {
	for _, c := range progress.Categories {
		if _, ok := g.For(c); ok {
			return true
		}
	}
	return false
}

// For returns the goal of category c in its native unit.
func (g Goals) For(c progress.Category) (float64, bool) {
	var v *int
	switch c {
	case progress.Memorization:
		v = g.MemorizationLines
	case progress.Revision:
		v = g.RevisionPages
	case progress.Consolidation:
		v = g.ConsolidationPages
	}
	if v == nil || *v <= 0 {
		return 0, false
	}
	return float64(*v), true
}

// Defined returns the categories that have a goal, in reporting order.
func (g Goals) Defined() []progress.Category {
	out := make([]progress.Category, 0, len(progress.Categories))
	for _, c := range progress.Categories {
		if _, ok := g.For(c); ok {
			out = append(out, c)
		}
	}
	return out
}

// IsMet reports whether totals reach every defined goal. A definition without any
// goal is never met.
func (g Goals) IsMet(totals progress.DayTotals) bool {
	defined := false
	for _, c := range progress.Categories {
		goal, ok := g.For(c)
		if !ok {
			continue
		}
		defined = true
		if Achieved(totals, c)+epsilon < goal {
			return false
		}
	}
	return defined
}

// Achieved returns the amount of category c in totals, in the unit its goal uses:
// lines for memorization, pages otherwise.
func Achieved(totals progress.DayTotals, c progress.Category) float64 {
	switch c {
	case progress.Memorization:
		return totals.MemorizationLines
	case progress.Revision:
		return totals.RevisionPages()
	case progress.Consolidation:
		return totals.ConsolidationPages()
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY TARGET
// ══════════════════════════════════════════════════════════════════════════════

// DailyTarget is the single target record of a student together with the running
// streak counters.
type DailyTarget struct {
	StudentID string
	Goals
	Streak

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDailyTarget creates a target with empty streak counters.
func NewDailyTarget(studentID string, goals Goals, now time.Time) (*DailyTarget, error) {
	if studentID == "" {
		return nil, shared.NewDomainError("target", "New", shared.ErrInvalidID, "student id is required")
	}
	if err := goals.Validate(); err != nil {
		return nil, err
	}
	return &DailyTarget{
		StudentID: studentID,
		Goals:     goals,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateGoals replaces the goals. Streak counters are kept.
func (t *DailyTarget) UpdateGoals(goals Goals, now time.Time) error {
	if err := goals.Validate(); err != nil {
		return err
	}
	t.Goals = goals
	t.UpdatedAt = now
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdate is run by Repository.UpdateStreak while the target row is locked.
// It mutates t in place and reports whether the change must be written.
type StreakUpdate func(t *DailyTarget) (changed bool, err error)

// Repository stores at most one DailyTarget per student.
type Repository interface {
	// GetByStudent returns ErrTargetNotFound if the student has no target.
	GetByStudent(ctx context.Context, studentID string) (*DailyTarget, error)

	// Save creates the target or replaces its goals. Streak counters of an existing
	// row are left untouched.
	Save(ctx context.Context, t *DailyTarget) error

	// UpdateStreak runs fn on the current row under a per-student lock and persists
	// the streak counters when fn reports a change. Returns ErrTargetNotFound when
	// the student has no target.
	UpdateStreak(ctx context.Context, studentID string, fn StreakUpdate) (*DailyTarget, error)

	// ListByStudents returns the targets of the given students keyed by student id.
	// Students without a target are absent from the map.
	ListByStudents(ctx context.Context, studentIDs []string) (map[string]*DailyTarget, error)
}
