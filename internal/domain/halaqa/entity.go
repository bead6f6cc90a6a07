package halaqa

import (
	"context"
	"errors"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Halaqa is a study circle led by one teacher.
type Halaqa struct {
	ID         string
	Name       string
	TeacherID  string
	ActiveDays WeekdaySet
	CreatedAt  time.Time
}

// Calendar returns the halaqa's active days, treating an unset calendar as every day.
func (h *Halaqa) Calendar() WeekdaySet {
	if h == nil || h.ActiveDays.IsEmpty() {
		return AllDays
	}
	return h.ActiveDays
}

// Student is a member of one or more halaqat.
type Student struct {
	ID   string
	Name string

	// HalaqaIDs lists the student's circles; the first one is the primary halaqa.
	HalaqaIDs []string
}

// PrimaryHalaqaID returns the first halaqa of the student, or "".
func (s *Student) PrimaryHalaqaID() string {
	if len(s.HalaqaIDs) == 0 {
		return ""
	}
	return s.HalaqaIDs[0]
}

// BelongsTo reports whether the student is a member of halaqaID.
func (s *Student) BelongsTo(halaqaID string) bool {
	for _, id := range s.HalaqaIDs {
		if id == halaqaID {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// Scope restricts cohort queries. The zero value selects everyone.
type Scope struct {
	TeacherID string
	HalaqaID  string
}

// IsUnrestricted reports whether the scope selects everyone.
func (s Scope) IsUnrestricted() bool {
	return s.TeacherID == "" && s.HalaqaID == ""
}

// Matches reports whether h falls inside the scope.
func (s Scope) Matches(h *Halaqa) bool {
	if s.HalaqaID != "" && h.ID != s.HalaqaID {
		return false
	}
	if s.TeacherID != "" && h.TeacherID != s.TeacherID {
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// Directory is the read side of the roster.
type Directory interface {
	// GetHalaqa returns ErrHalaqaNotFound if the halaqa does not exist.
	GetHalaqa(ctx context.Context, id string) (*Halaqa, error)

	// GetStudent returns ErrStudentNotFound if the student does not exist.
	GetStudent(ctx context.Context, id string) (*Student, error)

	// ListHalaqat returns the halaqat inside scope.
	ListHalaqat(ctx context.Context, scope Scope) ([]*Halaqa, error)

	// ListStudents returns the students belonging to at least one halaqa inside scope.
	// An unrestricted scope also includes students without a halaqa.
	ListStudents(ctx context.Context, scope Scope) ([]*Student, error)
}

// CalendarFor resolves the calendar used to evaluate a student's day: the given halaqa
// when set, otherwise the student's primary halaqa, otherwise every day.
func CalendarFor(ctx context.Context, dir Directory, studentID, halaqaID string) (WeekdaySet, error) {
	if halaqaID == "" {
		st, err := dir.GetStudent(ctx, studentID)
		if err != nil {
			return 0, err
		}
		halaqaID = st.PrimaryHalaqaID()
	}
	if halaqaID == "" {
		return AllDays, nil
	}

	h, err := dir.GetHalaqa(ctx, halaqaID)
	if err != nil {
		return 0, err
	}
	return h.Calendar(), nil
}

// Calendars maps halaqa ids to their calendars for bulk evaluation.
type Calendars map[string]WeekdaySet

// NewCalendars indexes the given halaqat.
func NewCalendars(halaqat []*Halaqa) Calendars {
	c := make(Calendars, len(halaqat))
	for _, h := range halaqat {
		c[h.ID] = h.Calendar()
	}
	return c
}

// ForStudent picks the calendar of the student's first halaqa present in c.
func (c Calendars) ForStudent(st *Student) WeekdaySet {
	for _, id := range st.HalaqaIDs {
		if cal, ok := c[id]; ok {
			return cal
		}
	}
	return AllDays
}

// IsNotFound reports whether err means a halaqa or student is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrHalaqaNotFound) || errors.Is(err, shared.ErrStudentNotFound)
}
