package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/upb/analytics-tools/services"
	"go.uber.org/zap"
)

// Columns returns the sorted union of the keys of records.
func Columns(records []Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}

	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Row lays rec out in column order; missing columns are empty.
func Row(rec Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = rec[col]
	}
	return row
}

// CSVWriter writes record sets as comma-separated files.
type CSVWriter struct {
	logger *zap.Logger
}

// NewCSVWriter creates a new CSV writer
func NewCSVWriter(logger *zap.Logger) *CSVWriter {
	return &CSVWriter{logger: logger}
}

// Write replaces path with a header row and one row per record and
// reports whether a file was written. An empty record set leaves path
// untouched.
func (w *CSVWriter) Write(path string, records []Record) (bool, error) {
	if len(records) == 0 {
		w.logger.Info("no data to write", zap.String("path", path))
		return false, nil
	}

	columns := Columns(records)

	f, err := os.Create(path)
	if err != nil {
		return false, services.WrapError(services.ErrorTypeStorage, "failed to create output file", err)
	}

	if err := writeRows(f, columns, records); err != nil {
		_ = f.Close()
		return false, services.WrapError(services.ErrorTypeStorage, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := f.Close(); err != nil {
		return false, services.WrapError(services.ErrorTypeStorage, fmt.Sprintf("failed to close %s", path), err)
	}

	w.logger.Info("csv file written",
		zap.String("path", path),
		zap.Int("rows", len(records)),
		zap.Int("columns", len(columns)))

	return true, nil
}

func writeRows(f *os.File, columns []string, records []Record) error {
	cw := csv.NewWriter(f)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec, columns)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
