// Package ingest loads the run-rate workbook, the CRM opportunity export,
// and the contract corpus into engine inputs. Every column is declared in
// config with an expected kind; required columns reject bad values with a
// validation issue, optional columns fall back to null.
package ingest

import (
	"fmt"

	"github.com/sells-group/recon-cli/internal/fetcher"
	"github.com/sells-group/recon-cli/internal/model"
)

// issues accumulates row issues for one source file.
type issues struct {
	source string
	list   []model.RowIssue
}

func (is *issues) add(row int, column, format string, args ...any) {
	is.list = append(is.list, model.RowIssue{
		Source: is.source,
		Row:    row,
		Column: column,
		Reason: fmt.Sprintf(format, args...),
	})
}

func (is *issues) err() error {
	if len(is.list) == 0 {
		return nil
	}
	return &model.ValidationError{Issues: is.list}
}

// column is a declared header resolved against a table.
type column struct {
	header   string
	required bool
	idx      int
}

// resolve finds every declared column in t. A required column that is
// undeclared or absent from the header is an issue; an optional one
// resolves to -1.
func resolve(t *fetcher.Table, is *issues, cols ...*column) {
	for _, c := range cols {
		c.idx = -1
		if c.header == "" {
			if c.required {
				is.add(0, "", "required column not declared")
			}
			continue
		}
		c.idx = t.Column(c.header)
		if c.idx < 0 && c.required {
			is.add(0, c.header, "missing required column")
		}
	}
}

func (c *column) cell(t *fetcher.Table, row []string) string {
	return t.Cell(row, c.idx)
}
