package ingest

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/fetcher"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

type oppColumns struct {
	id, account, name, class, stage, revenue, acv, term, weighted,
	custom, calculated, revenueType, closeDate column
}

func newOppColumns(c config.OpportunityColumns) *oppColumns {
	return &oppColumns{
		id:          column{header: c.ID},
		account:     column{header: c.Account, required: true},
		name:        column{header: c.Name, required: true},
		class:       column{header: c.AccountClass},
		stage:       column{header: c.Stage, required: true},
		revenue:     column{header: c.Revenue, required: true},
		acv:         column{header: c.ACV},
		term:        column{header: c.TermMonths},
		weighted:    column{header: c.WeightedACV},
		custom:      column{header: c.CustomProbability},
		calculated:  column{header: c.CalculatedProbability},
		revenueType: column{header: c.RevenueType},
		closeDate:   column{header: c.CloseDate},
	}
}

func (oc *oppColumns) all() []*column {
	return []*column{
		&oc.id, &oc.account, &oc.name, &oc.class, &oc.stage, &oc.revenue, &oc.acv,
		&oc.term, &oc.weighted, &oc.custom, &oc.calculated, &oc.revenueType, &oc.closeDate,
	}
}

// LoadOpportunities reads the CRM opportunity export. Blank rows are
// skipped. Any rejected row fails the whole load with a
// *model.ValidationError listing every offending row.
func LoadOpportunities(ctx context.Context, path, sheet string, cols config.OpportunityColumns) ([]model.Opportunity, error) {
	t, err := fetcher.ReadTable(ctx, path, sheet)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: opportunities")
	}

	is := &issues{source: t.Source}
	oc := newOppColumns(cols)
	resolve(t, is, oc.all()...)
	if err := is.err(); err != nil {
		return nil, err
	}

	var (
		opps []model.Opportunity
		ids  = make(map[string]int)
	)
	for i, row := range t.Rows {
		if fetcher.Blank(row) {
			continue
		}
		rowNum := t.SheetRow(i)
		o := model.Opportunity{Source: t.Source, Row: rowNum}

		o.ID = oc.id.cell(t, row)
		if o.ID != "" {
			if prev, dup := ids[o.ID]; dup {
				is.add(rowNum, oc.id.header, "duplicate opportunity id %q (first at row %d)", o.ID, prev)
			}
			ids[o.ID] = rowNum
		}

		o.AccountLabel = oc.account.cell(t, row)
		o.AccountKey = normalize.AccountName(o.AccountLabel)
		if o.AccountKey == "" {
			is.add(rowNum, oc.account.header, "empty account")
		}

		o.Name = oc.name.cell(t, row)
		o.NameKey = normalize.OppName(o.Name)
		if o.NameKey == "" && o.ID == "" {
			is.add(rowNum, oc.name.header, "empty opportunity name")
		}

		stageLabel := oc.stage.cell(t, row)
		if st, ok := normalize.Stage(stageLabel); ok {
			o.Stage = st
		} else {
			is.add(rowNum, oc.stage.header, "unknown stage %q", stageLabel)
		}

		if raw := oc.class.cell(t, row); raw != "" {
			if ac, ok := normalize.AccountClass(raw); ok {
				o.AccountClass = ac
			} else {
				is.add(rowNum, oc.class.header, "unknown account class %q", raw)
			}
		}

		rev, err := normalize.ParseMoney(oc.revenue.cell(t, row))
		switch {
		case err != nil:
			is.add(rowNum, oc.revenue.header, "bad revenue %q", oc.revenue.cell(t, row))
		case rev < 0:
			is.add(rowNum, oc.revenue.header, "negative revenue %v", rev)
		default:
			o.Revenue = rev
		}

		o.ACV = optionalMoney(t, row, &oc.acv, rowNum)
		o.WeightedACV = optionalMoney(t, row, &oc.weighted, rowNum)
		if o.WeightedACV != nil && *o.WeightedACV < 0 {
			is.add(rowNum, oc.weighted.header, "negative weighted ACV %v", *o.WeightedACV)
		}
		if term := optionalMoney(t, row, &oc.term, rowNum); term != nil && *term > 0 {
			o.TermMonths = int(math.Round(*term))
		}

		o.CustomProbability = optionalProbability(t, row, &oc.custom, rowNum)
		o.CalculatedProbability = optionalProbability(t, row, &oc.calculated, rowNum)
		o.RevenueType = normalize.RevenueType(oc.revenueType.cell(t, row))

		if raw := oc.closeDate.cell(t, row); raw != "" {
			o.CloseDate = normalize.ParseDate(raw)
			if o.CloseDate == nil {
				is.add(rowNum, oc.closeDate.header, "unparseable date %q", raw)
			}
		}

		opps = append(opps, o)
	}

	if err := is.err(); err != nil {
		return nil, err
	}

	zap.L().Info("ingest: opportunities loaded",
		zap.String("source", t.Source),
		zap.Int("rows", len(opps)),
	)
	return opps, nil
}

// optionalMoney parses an optional money cell; a value that does not parse
// is treated as absent.
func optionalMoney(t *fetcher.Table, row []string, c *column, rowNum int) *float64 {
	raw := c.cell(t, row)
	if raw == "" {
		return nil
	}
	v, err := normalize.ParseMoney(raw)
	if err != nil {
		zap.L().Debug("ingest: optional value rejected",
			zap.String("column", c.header),
			zap.Int("row", rowNum),
			zap.String("value", raw),
		)
		return nil
	}
	return &v
}

func optionalProbability(t *fetcher.Table, row []string, c *column, rowNum int) *float64 {
	raw := c.cell(t, row)
	if raw == "" {
		return nil
	}
	p, err := normalize.ParseProbability(raw)
	if err != nil {
		zap.L().Debug("ingest: optional probability rejected",
			zap.String("column", c.header),
			zap.Int("row", rowNum),
			zap.String("value", raw),
		)
		return nil
	}
	return &p
}
