package linetable

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halaqa-hub/hifz-core/internal/domain/curriculum"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syntheticTable gives every verse a distinct density so range errors show up.
func syntheticTable() Table {
	t := Table{}
	for _, ch := range curriculum.All() {
		for v := 1; v <= ch.Verses; v++ {
			t.Set(ch.Number, v, 0.5+float64((ch.Number*7+v*3)%11)/4)
		}
	}
	return t
}

func TestCodec_SingleVerseEqualsVerseLine(t *testing.T) {
	codec := NewCodec(syntheticTable(), quietLogger())

	for _, ch := range curriculum.All() {
		for v := 1; v <= ch.Verses; v++ {
			assert.InDelta(t, codec.VerseLine(ch.Number, v), codec.Lines(ch.Number, v, v), 1e-9,
				"chapter %d verse %d", ch.Number, v)
		}
	}
}

func TestCodec_Additivity(t *testing.T) {
	codec := NewCodec(syntheticTable(), quietLogger())

	for _, n := range []int{1, 2, 18, 55, 114} {
		verses := curriculum.VerseCount(n)
		for a := 1; a <= verses; a += 3 {
			for b := a; b < verses; b += 5 {
				c := verses
				whole := codec.Lines(n, a, c)
				split := codec.Lines(n, a, b) + codec.Lines(n, b+1, c)
				assert.InDelta(t, whole, split, 1e-9, "chapter %d: %d..%d..%d", n, a, b, c)
			}
		}
	}
}

func TestCodec_FallbackDensity(t *testing.T) {
	table := Table{}
	table.Set(1, 1, 2.5)
	table.Set(1, 2, -1) // non-positive counts as missing

	codec := NewCodec(table, quietLogger())

	assert.Equal(t, 2.5, codec.VerseLine(1, 1))
	assert.Equal(t, DefaultDensity, codec.VerseLine(1, 2))
	assert.InDelta(t, 2.5+6*DefaultDensity, codec.Lines(1, 1, 7), 1e-9)
	assert.InDelta(t, 286*DefaultDensity, codec.ChapterLines(2), 1e-9)

	stats := codec.Stats()
	assert.Equal(t, curriculum.TotalVerses, stats.Verses)
	assert.Equal(t, curriculum.TotalVerses-1, stats.Missing)
	assert.Equal(t, curriculum.ChapterCount, stats.ChaptersWithGaps)
}

func TestCodec_NilTable(t *testing.T) {
	codec := NewCodec(nil, nil)

	assert.InDelta(t, 7.0, codec.Lines(1, 1, 7), 1e-9)
	assert.InDelta(t, float64(curriculum.TotalVerses), codec.Stats().TotalLines, 1e-6)
}

func TestCodec_MalformedInput(t *testing.T) {
	codec := NewCodec(syntheticTable(), quietLogger())

	tests := []struct {
		name    string
		chapter int
		from    int
		to      int
		want    float64
	}{
		{"reversed range", 2, 10, 5, 0},
		{"unknown chapter estimates span", 0, 1, 4, 4 * DefaultDensity},
		{"unknown chapter reversed", 200, 5, 1, 0},
		{"from below one clamps", 1, -3, 2, codec.Lines(1, 1, 2)},
		{"to past end clamps", 1, 6, 99, codec.Lines(1, 6, 7)},
		{"range past end", 1, 9, 12, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, codec.Lines(tt.chapter, tt.from, tt.to), 1e-9)
		})
	}
}

func TestCodec_VerseLineBounds(t *testing.T) {
	codec := NewCodec(syntheticTable(), quietLogger())

	assert.Equal(t, 0.0, codec.VerseLine(1, 0))
	assert.Equal(t, 0.0, codec.VerseLine(1, 8))
	assert.Equal(t, DefaultDensity, codec.VerseLine(115, 1))
}

func TestCodec_LinesByName(t *testing.T) {
	codec := NewCodec(syntheticTable(), quietLogger())
	baqarah := curriculum.MustChapter(2)

	assert.InDelta(t, codec.Lines(2, 1, 5), codec.LinesByName(baqarah.Name, 1, 5), 1e-9)
	assert.InDelta(t, codec.Lines(2, 1, 5), codec.LinesByName("surah "+baqarah.Name, 1, 5), 1e-9)
	assert.InDelta(t, 5*DefaultDensity, codec.LinesByName("unknown", 1, 5), 1e-9)
}

func TestRoundAndPages(t *testing.T) {
	assert.Equal(t, 3.14, Round(3.14159))
	assert.Equal(t, 2.0, ToPages(30))
}
