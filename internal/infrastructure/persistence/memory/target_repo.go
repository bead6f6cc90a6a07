package memory

import (
	"context"
	"sync"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
)

// TargetRepository implements target.Repository. Streak updates of one student are
// serialized by a per-student mutex; different students never block each other.
type TargetRepository struct {
	mu      sync.RWMutex
	targets map[string]*target.DailyTarget
	locks   map[string]*sync.Mutex
}

// NewTargetRepository creates an empty repository.
func NewTargetRepository() *TargetRepository {
	return &TargetRepository{
		targets: make(map[string]*target.DailyTarget),
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetByStudent implements target.Repository.
func (r *TargetRepository) GetByStudent(ctx context.Context, studentID string) (*target.DailyTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[studentID]
	if !ok {
		return nil, shared.ErrTargetNotFound
	}
	return copyTarget(t), nil
}

// Save implements target.Repository.
func (r *TargetRepository) Save(ctx context.Context, t *target.DailyTarget) error {
	lock := r.lockFor(t.StudentID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.targets[t.StudentID]; ok {
		updated := copyTarget(existing)
		updated.Goals = t.Goals
		updated.UpdatedAt = t.UpdatedAt
		r.targets[t.StudentID] = updated
		return nil
	}
	r.targets[t.StudentID] = copyTarget(t)
	return nil
}

// UpdateStreak implements target.Repository.
func (r *TargetRepository) UpdateStreak(ctx context.Context, studentID string, fn target.StreakUpdate) (*target.DailyTarget, error) {
	lock := r.lockFor(studentID)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.GetByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	changed, err := fn(current)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}

	r.mu.Lock()
	stored := r.targets[studentID]
	updated := copyTarget(stored)
	updated.Streak = current.Streak
	updated.UpdatedAt = current.UpdatedAt
	r.targets[studentID] = updated
	r.mu.Unlock()

	return copyTarget(updated), nil
}

// ListByStudents implements target.Repository.
func (r *TargetRepository) ListByStudents(ctx context.Context, studentIDs []string) (map[string]*target.DailyTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*target.DailyTarget)
	for _, id := range studentIDs {
		if t, ok := r.targets[id]; ok {
			out[id] = copyTarget(t)
		}
	}
	return out, nil
}

func (r *TargetRepository) lockFor(studentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[studentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[studentID] = l
	}
	return l
}

func copyTarget(t *target.DailyTarget) *target.DailyTarget {
	cp := *t
	cp.MemorizationLines = copyInt(t.MemorizationLines)
	cp.RevisionPages = copyInt(t.RevisionPages)
	cp.ConsolidationPages = copyInt(t.ConsolidationPages)
	if t.LastStreakDate != nil {
		d := *t.LastStreakDate
		cp.LastStreakDate = &d
	}
	return &cp
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
