package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halaqa-hub/hifz-core/internal/domain/progress"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const entryColumns = `
	id, student_id, halaqa_id, entry_date, category, chapter, verse_from, verse_to,
	lines::float8, quality, notes, recorded_by, created_at
`

// Create appends an entry.
func (r *ProgressRepository) Create(ctx context.Context, e *progress.Entry) error {
	query := `
		INSERT INTO progress_entries (
			id, student_id, halaqa_id, entry_date, category, chapter, verse_from, verse_to,
			lines, quality, notes, recorded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID,
		e.StudentID,
		e.HalaqaID,
		e.Date,
		string(e.Category),
		e.Chapter,
		e.VerseFrom,
		e.VerseTo,
		e.Lines,
		string(e.Quality),
		e.Notes,
		e.RecordedBy,
		e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("progress", "Create", shared.ErrAlreadyExists, "progress entry already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to create progress entry: %w", err)
	}

	return nil
}

// GetByID returns an entry by id.
func (r *ProgressRepository) GetByID(ctx context.Context, id string) (*progress.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM progress_entries WHERE id = $1`

	e, err := scanEntry(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get progress entry: %w", err)
	}
	return e, nil
}

// Delete removes an entry.
func (r *ProgressRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM progress_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete progress entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

// ListByStudent returns the student's entries within [from, to] ordered by date.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]*progress.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM progress_entries
		WHERE student_id = $1 AND entry_date BETWEEN $2 AND $3
		ORDER BY entry_date, created_at, id
	`

	rows, err := r.conn.Query(ctx, query, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress entries: %w", err)
	}
	defer rows.Close()

	var out []*progress.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DayTotals sums the student's lines per category on day.
func (r *ProgressRepository) DayTotals(ctx context.Context, studentID string, day time.Time) (progress.DayTotals, error) {
	totals, err := r.TotalsByStudent(ctx, []string{studentID}, day, day)
	if err != nil {
		return progress.DayTotals{}, err
	}
	return totals[studentID], nil
}

// TotalsByStudent sums lines per category per student over [from, to].
func (r *ProgressRepository) TotalsByStudent(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]progress.DayTotals, error) {
	out := make(map[string]progress.DayTotals, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT student_id, category, COALESCE(SUM(lines), 0)::float8
		FROM progress_entries
		WHERE student_id = ANY($1) AND entry_date BETWEEN $2 AND $3
		GROUP BY student_id, category
	`

	rows, err := r.conn.Query(ctx, query, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			studentID string
			category  string
			lines     float64
		)
		if err := rows.Scan(&studentID, &category, &lines); err != nil {
			return nil, fmt.Errorf("failed to scan progress totals: %w", err)
		}
		t := out[studentID]
		t.Add(progress.Category(category), lines)
		out[studentID] = t
	}
	return out, rows.Err()
}

// ActiveStudents returns which of studentIDs have an entry within [from, to].
func (r *ProgressRepository) ActiveStudents(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(studentIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT DISTINCT student_id
		FROM progress_entries
		WHERE student_id = ANY($1) AND entry_date BETWEEN $2 AND $3
	`

	rows, err := r.conn.Query(ctx, query, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query active students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// TotalMemorizedLines sums the student's memorization lines over all time.
func (r *ProgressRepository) TotalMemorizedLines(ctx context.Context, studentID string) (float64, error) {
	var total float64
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(lines), 0)::float8
		FROM progress_entries
		WHERE student_id = $1 AND category = $2
	`, studentID, string(progress.Memorization)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum memorized lines: %w", err)
	}
	return total, nil
}

func scanEntry(row pgx.Row) (*progress.Entry, error) {
	var (
		e        progress.Entry
		category string
		quality  string
	)
	err := row.Scan(
		&e.ID,
		&e.StudentID,
		&e.HalaqaID,
		&e.Date,
		&category,
		&e.Chapter,
		&e.VerseFrom,
		&e.VerseTo,
		&e.Lines,
		&quality,
		&e.Notes,
		&e.RecordedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Category = progress.Category(category)
	e.Quality = progress.Quality(quality)
	return &e, nil
}
