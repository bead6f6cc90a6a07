package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

func params() NewEntryParams {
	return NewEntryParams{
		ID:        "e-1",
		StudentID: "s-1",
		Date:      time.Date(2024, time.March, 6, 17, 45, 0, 0, time.UTC),
		Category:  Memorization,
		Chapter:   1,
		VerseFrom: 1,
		VerseTo:   7,
		Quality:   QualityVeryGood,
	}
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry(params(), linetable.NewCodec(nil, nil))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC), e.Date)
	assert.Equal(t, 7.0, e.Lines)
	assert.Equal(t, 7, e.Verses())
}

func TestNewEntry_Validation(t *testing.T) {
	codec := linetable.NewCodec(nil, nil)

	tests := []struct {
		name   string
		modify func(p *NewEntryParams)
		want   error
	}{
		{"unknown category", func(p *NewEntryParams) { p.Category = "tajweed" }, shared.ErrInvalidCategory},
		{"unknown quality", func(p *NewEntryParams) { p.Quality = "perfect" }, shared.ErrInvalidQuality},
		{"unknown chapter", func(p *NewEntryParams) { p.Chapter = 115 }, shared.ErrChapterNotFound},
		{"verse past chapter end", func(p *NewEntryParams) { p.VerseTo = 8 }, shared.ErrInvalidRange},
		{"reversed range", func(p *NewEntryParams) { p.VerseFrom, p.VerseTo = 5, 2 }, shared.ErrInvalidRange},
		{"missing student", func(p *NewEntryParams) { p.StudentID = "" }, shared.ErrInvalidID},
		{"missing date", func(p *NewEntryParams) { p.Date = time.Time{} }, shared.ErrEmptyValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params()
			tt.modify(&p)
			_, err := NewEntry(p, codec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("  Revision ")
	require.NoError(t, err)
	assert.Equal(t, Revision, c)

	_, err = ParseCategory("reading")
	assert.ErrorIs(t, err, shared.ErrInvalidCategory)
}

func TestQuality_Score(t *testing.T) {
	assert.Equal(t, 5, QualityExcellent.Score())
	assert.Equal(t, 1, QualityWeak.Score())
	assert.Equal(t, 0, Quality("").Score())
}

func TestSumByDay(t *testing.T) {
	d1 := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	totals := SumByDay([]*Entry{
		{Date: d1, Category: Memorization, Lines: 4},
		{Date: d1, Category: Memorization, Lines: 6},
		{Date: d1, Category: Revision, Lines: 30},
		{Date: d2, Category: Consolidation, Lines: 15},
	})

	require.Len(t, totals, 2)
	assert.Equal(t, 10.0, totals[d1].MemorizationLines)
	assert.InDelta(t, 2.0, totals[d1].RevisionPages(), 1e-9)
	assert.InDelta(t, 1.0, totals[d2].ConsolidationPages(), 1e-9)
	assert.False(t, totals[d2].IsZero())
	assert.True(t, DayTotals{}.IsZero())
}
