package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/internal/domain/target"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY TARGET REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TargetRepository implements target.Repository for PostgreSQL. Streak updates
// lock the student's row with SELECT ... FOR UPDATE so concurrent entries for
// one student are applied one after another.
type TargetRepository struct {
	conn *Connection
}

// NewTargetRepository creates a new TargetRepository.
func NewTargetRepository(conn *Connection) *TargetRepository {
	return &TargetRepository{conn: conn}
}

const targetColumns = `
	student_id, memorization_lines, revision_pages, consolidation_pages,
	current_streak, longest_streak, last_streak_date, created_at, updated_at
`

// GetByStudent returns the student's target.
func (r *TargetRepository) GetByStudent(ctx context.Context, studentID string) (*target.DailyTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM daily_targets WHERE student_id = $1`

	t, err := scanTarget(r.conn.QueryRow(ctx, query, studentID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to get daily target: %w", err)
	}
	return t, nil
}

// Save creates the target or replaces its goals, keeping the streak counters.
func (r *TargetRepository) Save(ctx context.Context, t *target.DailyTarget) error {
	query := `
		INSERT INTO daily_targets (
			student_id, memorization_lines, revision_pages, consolidation_pages,
			current_streak, longest_streak, last_streak_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id) DO UPDATE SET
			memorization_lines = EXCLUDED.memorization_lines,
			revision_pages = EXCLUDED.revision_pages,
			consolidation_pages = EXCLUDED.consolidation_pages,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		t.StudentID,
		t.MemorizationLines,
		t.RevisionPages,
		t.ConsolidationPages,
		t.CurrentStreak,
		t.LongestStreak,
		t.LastStreakDate,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to save daily target: %w", err)
	}
	return nil
}

// UpdateStreak runs fn on the locked row and writes the streak counters back when
// fn reports a change. Lock timeouts, deadlocks and serialization failures are
// reported as shared.ErrConcurrentModification so callers can retry.
func (r *TargetRepository) UpdateStreak(ctx context.Context, studentID string, fn target.StreakUpdate) (*target.DailyTarget, error) {
	var result *target.DailyTarget

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `SELECT ` + targetColumns + ` FROM daily_targets WHERE student_id = $1 FOR UPDATE`

		current, err := scanTarget(tx.QueryRow(ctx, query, studentID))
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrTargetNotFound
			}
			return err
		}

		changed, err := fn(current)
		if err != nil {
			return err
		}
		result = current
		if !changed {
			return nil
		}

		if current.UpdatedAt.IsZero() {
			current.UpdatedAt = time.Now().UTC()
		}
		_, err = tx.Exec(ctx, `
			UPDATE daily_targets SET
				current_streak = $1,
				longest_streak = $2,
				last_streak_date = $3,
				updated_at = $4
			WHERE student_id = $5
		`,
			current.CurrentStreak,
			current.LongestStreak,
			current.LastStreakDate,
			current.UpdatedAt,
			studentID,
		)
		return err
	})
	if err != nil {
		if IsContention(err) {
			return nil, shared.WrapError("target", "UpdateStreak", shared.ErrConcurrentModification, "target row is busy", err)
		}
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}

	return result, nil
}

// ListByStudents returns the targets of the given students keyed by student id.
func (r *TargetRepository) ListByStudents(ctx context.Context, studentIDs []string) (map[string]*target.DailyTarget, error) {
	out := make(map[string]*target.DailyTarget)
	if len(studentIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + targetColumns + ` FROM daily_targets WHERE student_id = ANY($1)`

	rows, err := r.conn.Query(ctx, query, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily target: %w", err)
		}
		out[t.StudentID] = t
	}
	return out, rows.Err()
}

func scanTarget(row pgx.Row) (*target.DailyTarget, error) {
	var t target.DailyTarget
	err := row.Scan(
		&t.StudentID,
		&t.MemorizationLines,
		&t.RevisionPages,
		&t.ConsolidationPages,
		&t.CurrentStreak,
		&t.LongestStreak,
		&t.LastStreakDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
