// Package progress contains the append-only log of recorded memorization work.
package progress

import (
	"context"
	"strings"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Category is the kind of work an entry records.
type Category string

const (
	// Memorization is new material; measured in lines and moves the curriculum position.
	Memorization Category = "memorization"

	// Revision is review of older material; measured in pages.
	Revision Category = "revision"

	// Consolidation is review of recent material; measured in pages.
	Consolidation Category = "consolidation"
)

// Categories lists every category in reporting order.
var Categories = []Category{Memorization, Revision, Consolidation}

// IsValid checks if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case Memorization, Revision, Consolidation:
		return true
	}
	return false
}

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.ErrInvalidCategory
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUALITY
// ══════════════════════════════════════════════════════════════════════════════

// Quality is the teacher's rating of a recitation.
type Quality string

const (
	QualityExcellent  Quality = "excellent"
	QualityVeryGood   Quality = "very_good"
	QualityGood       Quality = "good"
	QualityAcceptable Quality = "acceptable"
	QualityWeak       Quality = "weak"
)

// IsValid checks if the quality is known.
func (q Quality) IsValid() bool {
	switch q {
	case QualityExcellent, QualityVeryGood, QualityGood, QualityAcceptable, QualityWeak:
		return true
	}
	return false
}

// Score maps the rating onto 1 (weak) .. 5 (excellent).
func (q Quality) Score() int {
	switch q {
	case QualityExcellent:
		return 5
	case QualityVeryGood:
		return 4
	case QualityGood:
		return 3
	case QualityAcceptable:
		return 2
	case QualityWeak:
		return 1
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one recorded piece of work. Entries are never edited; Lines is computed
// once when the entry is created.
type Entry struct {
	ID         string
	StudentID  string
	HalaqaID   string
	Date       time.Time
	Category   Category
	Chapter    int
	VerseFrom  int
	VerseTo    int
	Lines      float64
	Quality    Quality
	Notes      string
	RecordedBy string
	CreatedAt  time.Time
}

// NewEntryParams holds the input of NewEntry.
type NewEntryParams struct {
	ID         string
	StudentID  string
	HalaqaID   string
	Date       time.Time
	Category   Category
	Chapter    int
	VerseFrom  int
	VerseTo    int
	Quality    Quality
	Notes      string
	RecordedBy string
	CreatedAt  time.Time
}

// NewEntry validates the range against the curriculum and values it with codec.
func NewEntry(p NewEntryParams, codec *linetable.Codec) (*Entry, error) {
	if p.ID == "" || p.StudentID == "" {
		return nil, shared.NewDomainError("progress", "NewEntry", shared.ErrInvalidID, "entry and student ids are required")
	}
	if !p.Category.IsValid() {
		return nil, shared.ErrInvalidCategory
	}
	if p.Quality != "" && !p.Quality.IsValid() {
		return nil, shared.ErrInvalidQuality
	}
	if p.Date.IsZero() {
		return nil, shared.NewDomainError("progress", "NewEntry", shared.ErrEmptyValue, "date is required")
	}

	ch, err := curriculum.ChapterByNumber(p.Chapter)
	if err != nil {
		return nil, err
	}
	if !ch.HasVerse(p.VerseFrom) || !ch.HasVerse(p.VerseTo) || p.VerseFrom > p.VerseTo {
		return nil, shared.ErrInvalidRange
	}

	return &Entry{
		ID:         p.ID,
		StudentID:  p.StudentID,
		HalaqaID:   p.HalaqaID,
		Date:       timeutil.Day(p.Date),
		Category:   p.Category,
		Chapter:    p.Chapter,
		VerseFrom:  p.VerseFrom,
		VerseTo:    p.VerseTo,
		Lines:      linetable.Round(codec.Lines(p.Chapter, p.VerseFrom, p.VerseTo)),
		Quality:    p.Quality,
		Notes:      p.Notes,
		RecordedBy: p.RecordedBy,
		CreatedAt:  p.CreatedAt,
	}, nil
}

// Verses returns the number of verses covered.
func (e *Entry) Verses() int {
	return e.VerseTo - e.VerseFrom + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY TOTALS
// ══════════════════════════════════════════════════════════════════════════════

// DayTotals is the summed work of one student on one day, in lines per category.
type DayTotals struct {
	MemorizationLines  float64
	RevisionLines      float64
	ConsolidationLines float64
}

// Add accumulates lines into the category's bucket.
func (t *DayTotals) Add(c Category, lines float64) {
	switch c {
	case Memorization:
		t.MemorizationLines += lines
	case Revision:
		t.RevisionLines += lines
	case Consolidation:
		t.ConsolidationLines += lines
	}
}

// AddEntry accumulates an entry.
func (t *DayTotals) AddEntry(e *Entry) {
	t.Add(e.Category, e.Lines)
}

// RevisionPages returns revision work in pages.
func (t DayTotals) RevisionPages() float64 {
	return linetable.ToPages(t.RevisionLines)
}

// ConsolidationPages returns consolidation work in pages.
func (t DayTotals) ConsolidationPages() float64 {
	return linetable.ToPages(t.ConsolidationLines)
}

// IsZero reports whether nothing was recorded.
func (t DayTotals) IsZero() bool {
	return t.MemorizationLines == 0 && t.RevisionLines == 0 && t.ConsolidationLines == 0
}

// SumByDay groups entries into per-day totals keyed by the entry date.
func SumByDay(entries []*Entry) map[time.Time]DayTotals {
	out := make(map[time.Time]DayTotals)
	for _, e := range entries {
		t := out[e.Date]
		t.AddEntry(e)
		out[e.Date] = t
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores progress entries.
type Repository interface {
	// Create appends an entry.
	Create(ctx context.Context, e *Entry) error

	// GetByID returns ErrEntryNotFound if the entry does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// Delete removes an entry; ErrEntryNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// ListByStudent returns the student's entries dated within [from, to] ordered by date.
	ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]*Entry, error)

	// DayTotals sums the student's lines per category on day.
	DayTotals(ctx context.Context, studentID string, day time.Time) (DayTotals, error)

	// TotalsByStudent sums lines per category per student over [from, to].
	TotalsByStudent(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]DayTotals, error)

	// ActiveStudents returns which of studentIDs have any entry dated within [from, to].
	ActiveStudents(ctx context.Context, studentIDs []string, from, to time.Time) (map[string]bool, error)

	// TotalMemorizedLines sums the student's memorization lines over all time.
	TotalMemorizedLines(ctx context.Context, studentID string) (float64, error)
}
