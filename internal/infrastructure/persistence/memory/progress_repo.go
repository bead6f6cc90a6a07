// Package memory provides in-process repository implementations. They back the
// application tests and single-process deployments without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ProgressRepository implements progress.Repository.
type ProgressRepository struct {
	mu      sync.RWMutex
	entries map[string]*progress.Entry
}

// NewProgressRepository creates an empty repository.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{entries: make(map[string]*progress.Entry)}
}

// Create implements progress.Repository.
func (r *ProgressRepository) Create(ctx context.Context, e *progress.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; ok {
		return shared.NewDomainError("progress", "Create", shared.ErrAlreadyExists, "entry already exists")
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

// GetByID implements progress.Repository.
func (r *ProgressRepository) GetByID(ctx context.Context, id string) (*progress.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, shared.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// Delete implements progress.Repository.
func (r *ProgressRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return shared.ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

// ListByStudent implements progress.Repository.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]*progress.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*progress.Entry, 0)
	for _, e := range r.entries {
		if e.StudentID == studentID && inRange(e.Date, from, to) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DayTotals implements progress.Repository.
func (r *ProgressRepository) DayTotals(ctx context.Context, studentID string, day time.Time) (progress.DayTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var t progress.DayTotals
	for _, e := range r.entries {
		if e.StudentID == studentID && e.Date.Equal(day) {
			t.AddEntry(e)
		}
	}
	return t, nil
}

// TotalsByStudent implements progress.Repository.
func (r *ProgressRepository) TotalsByStudent(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]progress.DayTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := toSet(studentIDs)
	out := make(map[string]progress.DayTotals, len(studentIDs))
	for _, e := range r.entries {
		if !wanted[e.StudentID] || !inRange(e.Date, from, to) {
			continue
		}
		t := out[e.StudentID]
		t.AddEntry(e)
		out[e.StudentID] = t
	}
	return out, nil
}

// ActiveStudents implements progress.Repository.
func (r *ProgressRepository) ActiveStudents(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := toSet(studentIDs)
	out := make(map[string]bool)
	for _, e := range r.entries {
		if wanted[e.StudentID] && inRange(e.Date, from, to) {
			out[e.StudentID] = true
		}
	}
	return out, nil
}

// TotalMemorizedLines implements progress.Repository.
func (r *ProgressRepository) TotalMemorizedLines(ctx context.Context, studentID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0.0
	for _, e := range r.entries {
		if e.StudentID == studentID && e.Category == progress.Memorization {
			total += e.Lines
		}
	}
	return total, nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
