// Package report writes reconciliation and reprice results as XLSX
// workbooks, CSV files and the JSONL change set.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/recon-cli/internal/changeset"
)

const (
	moneyFormat = "#,##0.00"
	ratioFormat = "0.0000"
)

// money and ratio tag float cells with their display precision.
type (
	money float64
	ratio float64
)

// optMoney renders a nil amount as an empty cell.
func optMoney(p *float64) any {
	if p == nil {
		return ""
	}
	return money(*p)
}

// table is one sheet's worth of rows.
type table struct {
	name   string
	header []string
	rows   [][]any
}

func (t *table) add(vals ...any) {
	t.rows = append(t.rows, vals)
}

// writeWorkbook saves tables as sheets of a new workbook at path.
func writeWorkbook(path string, tables ...*table) error {
	f := xlsx.NewFile()
	for _, t := range tables {
		sheet, err := f.AddSheet(t.name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", t.name)
		}
		hdr := sheet.AddRow()
		for _, h := range t.header {
			hdr.AddCell().SetString(h)
		}
		for _, vals := range t.rows {
			row := sheet.AddRow()
			for _, v := range vals {
				setCell(row.AddCell(), v)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func setCell(c *xlsx.Cell, v any) {
	switch v := v.(type) {
	case money:
		c.SetFloatWithFormat(float64(v), moneyFormat)
	case ratio:
		c.SetFloatWithFormat(float64(v), ratioFormat)
	case int:
		c.SetInt(v)
	case bool:
		c.SetBool(v)
	case string:
		c.SetString(v)
	default:
		c.SetString(csvValue(v))
	}
}

// writeCSV writes t as a CSV file at path.
func writeCSV(path string, t *table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		return eris.Wrapf(err, "report: write header %s", path)
	}
	for _, vals := range t.rows {
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = csvValue(v)
		}
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "report: write row %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %s", path)
	}
	return f.Close()
}

func csvValue(v any) string {
	switch v := v.(type) {
	case money:
		return changeset.FormatMoney(float64(v))
	case ratio:
		return decimal.NewFromFloat(float64(v)).StringFixed(4)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a window name into a file-name fragment,
// e.g. "Q4 FY2026" becomes "q4_fy2026".
func Slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "window"
	}
	return s
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create output dir %s", dir)
	}
	return nil
}
