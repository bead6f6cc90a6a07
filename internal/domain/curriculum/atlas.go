// Package curriculum contains the static memorization curriculum: the 114 chapters,
// their verse counts and relative weights, name resolution, and the position
// tracker that moves a student through the chapters in either direction.
//
// All reference data is built once at package initialization and never mutated,
// so every function here is safe for concurrent use without synchronization.
package curriculum

import (
	"fmt"

	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// ChapterCount is the number of chapters in the curriculum.
	ChapterCount = 114

	// FirstChapter is the lowest chapter number.
	FirstChapter = 1

	// LastChapter is the highest chapter number.
	LastChapter = ChapterCount

	// TotalVerses is the number of verses across the whole curriculum.
	TotalVerses = 6236
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAPTER
// ══════════════════════════════════════════════════════════════════════════════

// Chapter is one unit of the curriculum.
type Chapter struct {
	// Number is the 1-based position in curriculum order.
	Number int

	// Name is the transliterated name, e.g. "Al-Baqarah".
	Name string

	// ArabicName is the name in Arabic script.
	ArabicName string

	// Verses is the number of verses in the chapter.
	Verses int

	// Weight is the chapter's share of the whole curriculum. Weights sum to 1.0.
	Weight float64
}

// String returns a short representation for logging.
func (c Chapter) String() string {
	return fmt.Sprintf("%d:%s", c.Number, c.Name)
}

// HasVerse reports whether v is a valid verse number of the chapter.
func (c Chapter) HasVerse(v int) bool {
	return v >= 1 && v <= c.Verses
}

// ══════════════════════════════════════════════════════════════════════════════
// INDEXED TABLES
// ══════════════════════════════════════════════════════════════════════════════

var (
	// chapters is indexed by chapter number; index 0 is unused.
	chapters [ChapterCount + 1]Chapter

	// versesBefore[n] is the number of verses in chapters 1..n-1.
	versesBefore [ChapterCount + 2]int
)

func init() {
	running := 0
	for i, raw := range chapterTable {
		n := i + 1
		chapters[n] = Chapter{
			Number:     n,
			Name:       raw.name,
			ArabicName: raw.arabic,
			Verses:     raw.verses,
			Weight:     float64(raw.verses) / TotalVerses,
		}
		versesBefore[n] = running
		running += raw.verses
	}
	versesBefore[ChapterCount+1] = running

	if running != TotalVerses {
		panic(fmt.Sprintf("curriculum: verse table sums to %d, want %d", running, TotalVerses))
	}

	buildNameIndex()
}

// IsValidChapter reports whether n is a chapter number.
func IsValidChapter(n int) bool {
	return n >= FirstChapter && n <= LastChapter
}

// ChapterByNumber returns the chapter with the given number.
func ChapterByNumber(n int) (Chapter, error) {
	if !IsValidChapter(n) {
		return Chapter{}, shared.ErrChapterNotFound
	}
	return chapters[n], nil
}

// MustChapter returns the chapter with the given number and panics if it does not exist.
// Intended for constants known at compile time.
func MustChapter(n int) Chapter {
	c, err := ChapterByNumber(n)
	if err != nil {
		panic(err)
	}
	return c
}

// VerseCount returns the number of verses in chapter n, or 0 for an unknown chapter.
func VerseCount(n int) int {
	if !IsValidChapter(n) {
		return 0
	}
	return chapters[n].Verses
}

// All returns a copy of every chapter in curriculum order.
func All() []Chapter {
	out := make([]Chapter, ChapterCount)
	copy(out, chapters[1:])
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM FRACTION
// ══════════════════════════════════════════════════════════════════════════════

// Fraction returns how much of the curriculum is covered when a student traversing
// in direction dir has reached verse of chapter.
//
// Chapters already passed in the traversal direction contribute their full weight,
// the current chapter contributes verse/verses of its weight, the rest contribute 0.
// The result is in [0, 1] and reaches 1.0 only when the final chapter of the
// traversal is complete. Unknown chapters and directions yield 0.
func Fraction(dir Direction, chapter, verse int) float64 {
	if !IsValidChapter(chapter) || !dir.IsValid() {
		return 0
	}

	c := chapters[chapter]
	verse = clamp(verse, 0, c.Verses)

	var passed int
	switch dir {
	case Forward:
		passed = versesBefore[chapter]
	case Backward:
		passed = TotalVerses - versesBefore[chapter+1]
	}

	// Counted in verses so a full traversal is exactly 1.0.
	return float64(passed+verse) / TotalVerses
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
