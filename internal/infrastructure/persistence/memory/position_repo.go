package memory

import (
	"context"
	"sync"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// PositionRepository implements curriculum.PositionRepository.
type PositionRepository struct {
	mu        sync.RWMutex
	positions map[string]curriculum.Position
}

// NewPositionRepository creates an empty repository.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{positions: make(map[string]curriculum.Position)}
}

// GetByStudent implements curriculum.PositionRepository.
func (r *PositionRepository) GetByStudent(ctx context.Context, studentID string) (*curriculum.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.positions[studentID]
	if !ok {
		return nil, shared.ErrPositionNotFound
	}
	return &p, nil
}

// Save implements curriculum.PositionRepository.
func (r *PositionRepository) Save(ctx context.Context, pos *curriculum.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[pos.StudentID] = *pos
	return nil
}
