package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY (ROSTER) IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Directory implements halaqa.Directory for PostgreSQL.
type Directory struct {
	conn *Connection
}

// NewDirectory creates a new Directory.
func NewDirectory(conn *Connection) *Directory {
	return &Directory{conn: conn}
}

const studentSelect = `
	SELECT s.id, s.name,
		COALESCE(array_agg(sh.halaqa_id ORDER BY sh.position, sh.halaqa_id)
			FILTER (WHERE sh.halaqa_id IS NOT NULL), '{}')
	FROM students s
	LEFT JOIN student_halaqat sh ON sh.student_id = s.id
`

// GetHalaqa returns a halaqa by id.
func (d *Directory) GetHalaqa(ctx context.Context, id string) (*halaqa.Halaqa, error) {
	h, err := scanHalaqa(d.conn.QueryRow(ctx, `
		SELECT id, name, teacher_id, active_days, created_at
		FROM halaqat
		WHERE id = $1
	`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHalaqaNotFound
		}
		return nil, fmt.Errorf("failed to get halaqa: %w", err)
	}
	return h, nil
}

// GetStudent returns a student with their halaqat, primary first.
func (d *Directory) GetStudent(ctx context.Context, id string) (*halaqa.Student, error) {
	query := studentSelect + ` WHERE s.id = $1 GROUP BY s.id, s.name`

	s, err := scanStudent(d.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return s, nil
}

// ListHalaqat returns the halaqat inside scope.
func (d *Directory) ListHalaqat(ctx context.Context, scope halaqa.Scope) ([]*halaqa.Halaqa, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT id, name, teacher_id, active_days, created_at
		FROM halaqat
		WHERE ($1::text = '' OR teacher_id = $1) AND ($2::text = '' OR id = $2)
		ORDER BY id
	`, scope.TeacherID, scope.HalaqaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list halaqat: %w", err)
	}
	defer rows.Close()

	var out []*halaqa.Halaqa
	for rows.Next() {
		h, err := scanHalaqa(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan halaqa: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListStudents returns the students of at least one halaqa inside scope. An
// unrestricted scope returns every student.
func (d *Directory) ListStudents(ctx context.Context, scope halaqa.Scope) ([]*halaqa.Student, error) {
	query := studentSelect + `
		WHERE ($1::text = '' AND $2::text = '') OR EXISTS (
			SELECT 1
			FROM student_halaqat m
			JOIN halaqat h ON h.id = m.halaqa_id
			WHERE m.student_id = s.id
				AND ($1::text = '' OR h.teacher_id = $1)
				AND ($2::text = '' OR h.id = $2)
		)
		GROUP BY s.id, s.name
		ORDER BY s.id
	`

	rows, err := d.conn.Query(ctx, query, scope.TeacherID, scope.HalaqaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []*halaqa.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanHalaqa(row pgx.Row) (*halaqa.Halaqa, error) {
	var (
		h    halaqa.Halaqa
		days int16
	)
	if err := row.Scan(&h.ID, &h.Name, &h.TeacherID, &days, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.ActiveDays = halaqa.WeekdaySet(days)
	return &h, nil
}

func scanStudent(row pgx.Row) (*halaqa.Student, error) {
	var s halaqa.Student
	if err := row.Scan(&s.ID, &s.Name, &s.HalaqaIDs); err != nil {
		return nil, err
	}
	return &s, nil
}
