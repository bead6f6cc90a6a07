// Package reference loads the verse→line density table the line codec is built
// from. The table is maintained outside the service as JSON, CSV or an Excel
// workbook with one row per verse: chapter, verse, lines.
package reference

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
)

// ErrUnsupportedFormat is returned for files that are not .json, .csv or .xlsx.
var ErrUnsupportedFormat = errors.New("reference: unsupported line table format")

// Report summarizes a load.
type Report struct {
	Rows    int
	Loaded  int
	Skipped []string
}

// LoadLineTable reads the table at path, choosing the decoder from the file
// extension. Unreadable rows are skipped and listed in the report; the codec
// falls back to the default density for verses they would have covered.
func LoadLineTable(path string, sheet string, logger *slog.Logger) (linetable.Table, *Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reference: failed to open line table: %w", err)
	}
	defer f.Close()

	var (
		table  linetable.Table
		report *Report
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		table, report, err = ReadJSON(f)
	case ".csv":
		table, report, err = ReadCSV(f)
	case ".xlsx":
		table, report, err = ReadXLSX(f, sheet)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, nil, err
	}

	for _, s := range report.Skipped {
		logger.Warn("line table row skipped", "path", path, "reason", s)
	}
	logger.Info("line table loaded",
		"path", path,
		"rows", report.Rows,
		"verses", report.Loaded,
		"skipped", len(report.Skipped),
	)

	return table, report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODERS
// ══════════════════════════════════════════════════════════════════════════════

// jsonRow is one verse of the JSON format.
type jsonRow struct {
	Chapter int     `json:"chapter"`
	Verse   int     `json:"verse"`
	Lines   float64 `json:"lines"`
}

// ReadJSON decodes an array of {"chapter", "verse", "lines"} objects.
func ReadJSON(r io.Reader) (linetable.Table, *Report, error) {
	var rows []jsonRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, nil, fmt.Errorf("reference: failed to decode JSON line table: %w", err)
	}

	table := make(linetable.Table)
	report := &Report{Rows: len(rows)}
	for i, row := range rows {
		if reason := checkRow(row.Chapter, row.Verse, row.Lines); reason != "" {
			report.Skipped = append(report.Skipped, fmt.Sprintf("row %d: %s", i+1, reason))
			continue
		}
		table.Set(row.Chapter, row.Verse, row.Lines)
		report.Loaded++
	}
	return table, report, nil
}

// ReadCSV decodes comma-separated chapter,verse,lines records. A leading header
// row is detected and ignored.
func ReadCSV(r io.Reader) (linetable.Table, *Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reference: failed to read CSV line table: %w", err)
	}
	table, report := fromRecords(records)
	return table, report, nil
}

// ReadXLSX decodes the first three columns of sheet. An empty sheet name selects
// the first sheet of the workbook.
func ReadXLSX(r io.Reader, sheet string) (linetable.Table, *Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reference: failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.New("reference: workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("reference: failed to read sheet %q: %w", sheet, err)
	}
	table, report := fromRecords(rows)
	return table, report, nil
}

func fromRecords(records [][]string) (linetable.Table, *Report) {
	table := make(linetable.Table)
	report := &Report{}

	for i, rec := range records {
		if isBlank(rec) {
			continue
		}
		if i == 0 && isHeader(rec) {
			continue
		}
		report.Rows++

		if len(rec) < 3 {
			report.Skipped = append(report.Skipped, fmt.Sprintf("row %d: expected chapter, verse, lines", i+1))
			continue
		}
		chapter, err1 := strconv.Atoi(strings.TrimSpace(rec[0]))
		verse, err2 := strconv.Atoi(strings.TrimSpace(rec[1]))
		lines, err3 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if reason := checkRow(chapter, verse, lines); reason != "" {
			report.Skipped = append(report.Skipped, fmt.Sprintf("row %d: %s", i+1, reason))
			continue
		}
		table.Set(chapter, verse, lines)
		report.Loaded++
	}
	return table, report
}

// checkRow rejects values no verse can have. Whether the verse exists in the
// curriculum is left to the codec.
func checkRow(chapter, verse int, lines float64) string {
	switch {
	case chapter < 1 || verse < 1:
		return fmt.Sprintf("invalid verse %d:%d", chapter, verse)
	case math.IsNaN(lines) || math.IsInf(lines, 0) || lines <= 0:
		return fmt.Sprintf("invalid lines %v for %d:%d", lines, chapter, verse)
	}
	return ""
}

func isHeader(rec []string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	return err != nil
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
