// Package roster reads doctor rosters from CSV or XLSX files into header-keyed rows.
package roster

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one roster record keyed by lowercased, trimmed header name.
type Row map[string]string

// Get returns the trimmed value of the first key that holds a non-empty
// value, or "" when none does.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// Read loads every record from a roster file. The format is chosen by
// extension: .xlsx is read from its first sheet, anything else as CSV.
// Malformed CSV lines are skipped. A missing, empty or headerless file is an
// error.
func Read(ctx context.Context, path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(ctx, path)
	default:
		return readCSVFile(ctx, path)
	}
}

// header maps column positions to normalized header names.
func header(cells []string) ([]string, error) {
	cols := make([]string, len(cells))
	named := 0
	for i, c := range cells {
		cols[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if cols[i] != "" {
			named++
		}
	}
	if named == 0 {
		return nil, eris.New("roster: missing header row")
	}
	return cols, nil
}

// toRow zips a record with the header. Extra cells beyond the header are
// ignored; missing cells are absent from the row.
func toRow(cols, record []string) Row {
	row := make(Row, len(cols))
	for i, name := range cols {
		if name == "" || i >= len(record) {
			continue
		}
		row[name] = strings.TrimSpace(record[i])
	}
	return row
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
