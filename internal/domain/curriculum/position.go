package curriculum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTION
// ══════════════════════════════════════════════════════════════════════════════

// Direction is the order in which a student traverses the chapters.
type Direction string

const (
	// Forward starts at chapter 1 and moves toward chapter 114.
	Forward Direction = "forward"

	// Backward starts at chapter 114 and moves toward chapter 1.
	Backward Direction = "backward"
)

// IsValid checks if the direction is one of the known values.
func (d Direction) IsValid() bool {
	return d == Forward || d == Backward
}

// String returns the string representation.
func (d Direction) String() string {
	return string(d)
}

// ParseDirection converts user input into a Direction. Empty input means Forward.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", Forward:
		return Forward, nil
	case Backward:
		return Backward, nil
	default:
		return "", shared.ErrInvalidDirection
	}
}

// StartChapter returns the chapter a traversal begins with.
func (d Direction) StartChapter() int {
	if d == Backward {
		return LastChapter
	}
	return FirstChapter
}

// ══════════════════════════════════════════════════════════════════════════════
// POSITION
// ══════════════════════════════════════════════════════════════════════════════

// Position is a student's furthest point in their chosen traversal.
// Verse 0 means the chapter has not been started yet.
type Position struct {
	StudentID string
	Direction Direction
	Chapter   int
	Verse     int
	UpdatedAt time.Time
}

// StartingPosition returns the position of a student who has memorized nothing yet.
func StartingPosition(studentID string, dir Direction, now time.Time) *Position {
	return &Position{
		StudentID: studentID,
		Direction: dir,
		Chapter:   dir.StartChapter(),
		Verse:     0,
		UpdatedAt: now,
	}
}

// Validate checks the position invariants.
func (p *Position) Validate() error {
	if p.StudentID == "" {
		return shared.NewDomainError("curriculum", "Validate", shared.ErrEmptyValue, "student id is required")
	}
	if !p.Direction.IsValid() {
		return shared.ErrInvalidDirection
	}
	if !IsValidChapter(p.Chapter) {
		return shared.ErrChapterNotFound
	}
	if p.Verse < 0 || p.Verse > chapters[p.Chapter].Verses {
		return shared.ErrInvalidVerse
	}
	return nil
}

// Apply moves the position after a memorization range ending at toVerse of chapter.
func (p *Position) Apply(chapter, toVerse int, now time.Time) error {
	next, verse, err := Advance(p.Direction, chapter, toVerse)
	if err != nil {
		return err
	}
	p.Chapter = next
	p.Verse = verse
	p.UpdatedAt = now
	return nil
}

// Fraction returns the share of the curriculum covered at this position.
func (p *Position) Fraction() float64 {
	return Fraction(p.Direction, p.Chapter, p.Verse)
}

// String returns a short representation for logging.
func (p *Position) String() string {
	return fmt.Sprintf("%s %d:%d", p.Direction, p.Chapter, p.Verse)
}

// Advance computes the next position after a student memorized up to toVerse of chapter.
//
// An unfinished chapter leaves the student mid-chapter. A completed chapter moves the
// student to verse 0 of the adjacent chapter in the traversal direction. Past the last
// chapter of the traversal the position stays on it, fully completed.
func Advance(dir Direction, chapter, toVerse int) (nextChapter, nextVerse int, err error) {
	if !dir.IsValid() {
		return 0, 0, shared.ErrInvalidDirection
	}
	if !IsValidChapter(chapter) {
		return 0, 0, shared.ErrChapterNotFound
	}

	verses := chapters[chapter].Verses
	toVerse = clamp(toVerse, 0, verses)

	if toVerse < verses {
		return chapter, toVerse, nil
	}

	switch dir {
	case Forward:
		if chapter == LastChapter {
			return chapter, verses, nil
		}
		return chapter + 1, 0, nil
	default:
		if chapter == FirstChapter {
			return chapter, verses, nil
		}
		return chapter - 1, 0, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PositionRepository persists curriculum positions, one per student.
type PositionRepository interface {
	// GetByStudent returns the student's position or ErrPositionNotFound.
	GetByStudent(ctx context.Context, studentID string) (*Position, error)

	// Save creates or replaces the student's position.
	Save(ctx context.Context, pos *Position) error
}
