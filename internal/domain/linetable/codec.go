// Package linetable converts verse ranges into lines, the normalized unit used to
// measure memorization and revision volume.
//
// A Codec is built once from an external verse→line density table. It precomputes
// cumulative sums per chapter so that any range total is answered in O(1), and it is
// safe for concurrent use because nothing is mutated after NewCodec returns.
package linetable

import (
	"log/slog"
	"math"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultDensity is the number of lines assumed for a verse missing from the table.
	DefaultDensity = 1.0

	// LinesPerPage converts lines into pages for revision and consolidation.
	LinesPerPage = 15
)

// ══════════════════════════════════════════════════════════════════════════════
// RAW TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table is the raw density data keyed by chapter, then verse.
type Table map[int]map[int]float64

// Set stores the line count of a single verse.
func (t Table) Set(chapter, verse int, lines float64) {
	verses, ok := t[chapter]
	if !ok {
		verses = make(map[int]float64)
		t[chapter] = verses
	}
	verses[verse] = lines
}

// Get returns the stored line count of a verse.
func (t Table) Get(chapter, verse int) (float64, bool) {
	lines, ok := t[chapter][verse]
	return lines, ok
}

// Len returns the number of verses in the table.
func (t Table) Len() int {
	n := 0
	for _, verses := range t {
		n += len(verses)
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// CODEC
// ══════════════════════════════════════════════════════════════════════════════

// Stats describes the quality of the data a Codec was built from.
type Stats struct {
	// Verses is the number of verses known to the curriculum.
	Verses int

	// Missing is the number of verses that fell back to DefaultDensity.
	Missing int

	// ChaptersWithGaps is the number of chapters with at least one missing verse.
	ChaptersWithGaps int

	// TotalLines is the line count of the whole curriculum.
	TotalLines float64
}

// Codec answers line queries over verse ranges.
type Codec struct {
	// density[ch][v] is the line count of verse v; index 0 is unused.
	density [curriculum.ChapterCount + 1][]float64

	// cumulative[ch][v] is the sum of density[ch][1..v]; cumulative[ch][0] is 0.
	cumulative [curriculum.ChapterCount + 1][]float64

	stats  Stats
	logger *slog.Logger
}

// NewCodec builds a codec from table. A nil or partial table is accepted: every verse
// without a positive density uses DefaultDensity and is reported once per chapter.
func NewCodec(table Table, logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Codec{logger: logger.With("component", "line_codec")}

	for _, ch := range curriculum.All() {
		density := make([]float64, ch.Verses+1)
		cumulative := make([]float64, ch.Verses+1)

		missing := 0
		for v := 1; v <= ch.Verses; v++ {
			lines, ok := table.Get(ch.Number, v)
			if !ok || !(lines > 0) || math.IsInf(lines, 0) {
				lines = DefaultDensity
				missing++
			}
			density[v] = lines
			cumulative[v] = cumulative[v-1] + lines
		}

		c.density[ch.Number] = density
		c.cumulative[ch.Number] = cumulative

		c.stats.Verses += ch.Verses
		c.stats.TotalLines += cumulative[ch.Verses]
		if missing > 0 {
			c.stats.Missing += missing
			c.stats.ChaptersWithGaps++
			c.logger.Warn("line data missing, using default density",
				"chapter", ch.Number,
				"missing_verses", missing,
				"verses", ch.Verses,
				"default_density", DefaultDensity,
			)
		}
	}

	c.logger.Info("line codec ready",
		"verses", c.stats.Verses,
		"missing", c.stats.Missing,
		"chapters_with_gaps", c.stats.ChaptersWithGaps,
		"total_lines", c.stats.TotalLines,
	)

	return c
}

// Stats returns data-quality information gathered at construction.
func (c *Codec) Stats() Stats {
	return c.stats
}

// Lines returns the line count of verses from..to of chapter, both inclusive.
//
// Malformed input never fails. An unknown chapter is estimated at DefaultDensity per
// verse of the requested span. Bounds are clamped to the chapter, and an empty range
// (to < from) is worth 0.
func (c *Codec) Lines(chapter, from, to int) float64 {
	if !curriculum.IsValidChapter(chapter) {
		return estimate(from, to)
	}

	verses := len(c.density[chapter]) - 1
	if from < 1 {
		from = 1
	}
	if to > verses {
		to = verses
	}
	if to < from {
		return 0
	}

	cum := c.cumulative[chapter]
	if total := cum[to] - cum[from-1]; total > 0 {
		return total
	}

	// The cumulative table has no usable data for this range.
	total := 0.0
	for v := from; v <= to; v++ {
		total += c.density[chapter][v]
	}
	return total
}

// LinesByName is Lines with the chapter resolved by name. An unresolvable name is
// estimated at DefaultDensity per verse.
func (c *Codec) LinesByName(name string, from, to int) float64 {
	ch, err := curriculum.ChapterByName(name)
	if err != nil {
		c.logger.Debug("unknown chapter name, estimating lines", "name", name)
		return estimate(from, to)
	}
	return c.Lines(ch.Number, from, to)
}

// VerseLine returns the line count of a single verse, or 0 when the verse does not
// exist in a known chapter.
func (c *Codec) VerseLine(chapter, verse int) float64 {
	if !curriculum.IsValidChapter(chapter) {
		return DefaultDensity
	}
	density := c.density[chapter]
	if verse < 1 || verse >= len(density) {
		return 0
	}
	return density[verse]
}

// ChapterLines returns the line count of a whole chapter.
func (c *Codec) ChapterLines(chapter int) float64 {
	if !curriculum.IsValidChapter(chapter) {
		return 0
	}
	cum := c.cumulative[chapter]
	return cum[len(cum)-1]
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Round rounds a line count to two decimals, the precision stored on entries.
func Round(lines float64) float64 {
	return math.Round(lines*100) / 100
}

// ToPages converts lines to pages.
func ToPages(lines float64) float64 {
	return lines / LinesPerPage
}

func estimate(from, to int) float64 {
	if from < 1 {
		from = 1
	}
	if to < from {
		return 0
	}
	return float64(to-from+1) * DefaultDensity
}
