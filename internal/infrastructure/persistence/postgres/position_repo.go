package postgres

import (
	"context"
	"fmt"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// PositionRepository implements curriculum.PositionRepository for PostgreSQL.
type PositionRepository struct {
	conn *Connection
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(conn *Connection) *PositionRepository {
	return &PositionRepository{conn: conn}
}

// GetByStudent returns the student's position.
func (r *PositionRepository) GetByStudent(ctx context.Context, studentID string) (*curriculum.Position, error) {
	var (
		pos       curriculum.Position
		direction string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT student_id, direction, chapter, verse, updated_at
		FROM positions
		WHERE student_id = $1
	`, studentID).Scan(&pos.StudentID, &direction, &pos.Chapter, &pos.Verse, &pos.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	pos.Direction = curriculum.Direction(direction)
	return &pos, nil
}

// Save creates or replaces the student's position.
func (r *PositionRepository) Save(ctx context.Context, pos *curriculum.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO positions (student_id, direction, chapter, verse, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			direction = EXCLUDED.direction,
			chapter = EXCLUDED.chapter,
			verse = EXCLUDED.verse,
			updated_at = EXCLUDED.updated_at
	`, pos.StudentID, string(pos.Direction), pos.Chapter, pos.Verse, pos.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}
