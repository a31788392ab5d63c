package ingest

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/fetcher"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

const monthsInYear = 12

// RunRateOptions selects the month and currency of the run-rate workbook.
type RunRateOptions struct {
	Sheet string
	// MonthColumn pins the month used; empty means the rightmost month
	// column with a value on each row.
	MonthColumn string
	Currency    model.Currency
	EURUSDRate  float64
}

// LoadRunRate reads the finance run-rate workbook. EUR figures are
// converted to USD here so every downstream figure is USD.
func LoadRunRate(ctx context.Context, path string, cols config.RunRateColumns, opts RunRateOptions) ([]model.RunRateRow, error) {
	t, err := fetcher.ReadTable(ctx, path, opts.Sheet)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: run-rate")
	}

	is := &issues{source: t.Source}
	acct := column{header: cols.Account, required: true}
	resolve(t, is, &acct)

	months := monthColumns(t, cols, acct.idx, is)
	pinned := -1
	if opts.MonthColumn != "" {
		pinned = t.Column(opts.MonthColumn)
		if pinned < 0 {
			is.add(0, opts.MonthColumn, "missing run-rate month column")
		}
	}
	if len(months) == 0 && acct.idx >= 0 {
		is.add(0, "", "no month columns")
	}
	if err := is.err(); err != nil {
		return nil, err
	}

	rate := 1.0
	if opts.Currency == model.EUR {
		rate = opts.EURUSDRate
	}

	var rows []model.RunRateRow
	for i, row := range t.Rows {
		if fetcher.Blank(row) {
			continue
		}
		rowNum := t.SheetRow(i)
		label := acct.cell(t, row)
		if normalize.AccountName(label) == "" {
			zap.L().Debug("ingest: run-rate row without account skipped", zap.Int("row", rowNum))
			continue
		}

		rr := model.RunRateRow{
			AccountLabel: label,
			AccountKey:   normalize.AccountName(label),
			Row:          rowNum,
		}
		used := -1
		for _, col := range months {
			raw := t.Cell(row, col)
			rr.MonthLabels = append(rr.MonthLabels, t.Header[col])
			if raw == "" {
				rr.Months = append(rr.Months, 0)
				continue
			}
			v, err := normalize.ParseMoney(raw)
			if err != nil {
				is.add(rowNum, t.Header[col], "bad run-rate value %q", raw)
				rr.Months = append(rr.Months, 0)
				continue
			}
			rr.Months = append(rr.Months, v*rate)
			if pinned < 0 {
				used = col
			}
		}
		if pinned >= 0 {
			used = pinned
		}

		if used >= 0 {
			rr.MonthUsed = t.Header[used]
			if raw := t.Cell(row, used); raw != "" {
				if v, err := normalize.ParseMoney(raw); err == nil {
					rr.MonthlyUSD = v * rate
				} else if used == pinned && !slices.Contains(months, pinned) {
					is.add(rowNum, t.Header[used], "bad run-rate value %q", raw)
				}
			}
		}
		rr.AnnualizedUSD = rr.MonthlyUSD * monthsInYear
		rows = append(rows, rr)
	}

	if err := is.err(); err != nil {
		return nil, err
	}

	zap.L().Info("ingest: run-rate loaded",
		zap.String("source", t.Source),
		zap.Int("accounts", len(rows)),
		zap.String("currency", string(opts.Currency)),
	)
	return rows, nil
}

// monthColumns returns the declared month columns, or every non-empty
// header after the account column when none are declared.
func monthColumns(t *fetcher.Table, cols config.RunRateColumns, acctIdx int, is *issues) []int {
	var out []int
	if len(cols.Months) > 0 {
		for _, h := range cols.Months {
			idx := t.Column(h)
			if idx < 0 {
				is.add(0, h, "missing month column")
				continue
			}
			out = append(out, idx)
		}
		return out
	}
	if acctIdx < 0 {
		return nil
	}
	for i := acctIdx + 1; i < len(t.Header); i++ {
		if t.Cell(t.Header, i) != "" {
			out = append(out, i)
		}
	}
	return out
}
