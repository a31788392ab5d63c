package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header row plus data rows.
type Table struct {
	Source    string
	Header    []string
	Rows      [][]string
	HeaderRow int // 1-based sheet row of the header
}

// Column returns the index of the header matching name case-insensitively,
// or -1.
func (t *Table) Column(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range t.Header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

// Cell returns row[col] trimmed, or "" when the row is short.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// SheetRow converts a data row index to its 1-based sheet row.
func (t *Table) SheetRow(i int) int {
	return t.HeaderRow + 1 + i
}

// Blank reports whether every cell of row is empty.
func Blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadTable loads a CSV or XLSX file by extension. The first non-blank row
// is the header. sheet selects an XLSX sheet by name; empty means the first.
func ReadTable(ctx context.Context, path string, sheet string) (*Table, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		r, err := ReadXLSX(path, XLSXOptions{SheetName: sheet})
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
		rows = r
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		rowCh, errCh := StreamCSV(ctx, f, CSVOptions{LazyQuotes: true})
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}

	t := &Table{Source: filepath.Base(path), HeaderRow: 1}
	for len(rows) > 0 && Blank(rows[0]) {
		rows = rows[1:]
		t.HeaderRow++
	}
	if len(rows) == 0 {
		return t, nil
	}
	t.Header = rows[0]
	t.Rows = rows[1:]
	return t, nil
}
