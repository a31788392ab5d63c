package report

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/model"
)

var dealHeader = []string{
	"Key", "Account", "Opportunity", "Stage", "Account Class", "Revenue Class",
	"Active", "Override", "Probability Used", "Probability Source", "New Probability",
	"ACV (USD)", "ACV Proxied", "Stored Weighted (USD)", "New Weighted (USD)", "Delta (USD)", "Reason",
}

var aggregateHeader = []string{
	"Grouping", "Group", "Deals",
	"Current Weighted (USD)", "Proposed Weighted (USD)", "Delta (USD)",
	"Overrides", "Override Weighted (USD)",
}

// ProbabilityBase is the file name stem of a window's reprice outputs.
func ProbabilityBase(w model.Window) string {
	return "probability_" + Slug(w.Name)
}

// WriteProbability writes one window's reprice workbook (Detail, Summary)
// and detail CSV into dir.
func WriteProbability(dir string, rep *model.ProbabilityReport) ([]string, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	base := ProbabilityBase(rep.Window)
	detail := dealTable(rep)

	xlsxPath := filepath.Join(dir, base+".xlsx")
	if err := writeWorkbook(xlsxPath, detail, summaryTable(rep)); err != nil {
		return nil, err
	}
	csvPath := filepath.Join(dir, base+".csv")
	if err := writeCSV(csvPath, detail); err != nil {
		return []string{xlsxPath}, err
	}

	zap.L().Info("report: probability written",
		zap.String("window", rep.Window.Name),
		zap.String("dir", dir),
		zap.Int("deals", len(rep.Deals)),
	)
	return []string{xlsxPath, csvPath}, nil
}

func dealTable(rep *model.ProbabilityReport) *table {
	t := &table{name: "Detail", header: dealHeader}
	for _, d := range rep.Deals {
		t.add(
			d.Key, d.Account, d.Name, d.Stage.String(), string(d.AccountClass), string(d.RevenueClass),
			d.Active, d.Override, ratio(d.ProbabilityUsed), string(d.ProbSource), ratio(d.NewProbability),
			money(d.ACV), d.ACVProxied, money(d.StoredWeighted), money(d.NewWeighted), money(d.Delta), d.Reason,
		)
	}
	return t
}

func summaryTable(rep *model.ProbabilityReport) *table {
	t := &table{name: "Summary", header: aggregateHeader}
	groups := []struct {
		label string
		aggs  []model.Aggregate
	}{
		{"Account Class", rep.ByAccountClass},
		{"Revenue Class", rep.ByRevenueClass},
		{"Stage", rep.ByStage},
		{"Overrides by Class", rep.OverridesByClass},
		{"Total", []model.Aggregate{rep.Total}},
	}
	for _, g := range groups {
		for _, a := range g.aggs {
			t.add(
				g.label, a.Group, a.Deals,
				money(a.CurrentWeighted), money(a.ProposedWeighted), money(a.Delta),
				a.Overrides, money(a.OverrideWeighted),
			)
		}
	}

	t.add("", "", "")
	t.add("Window", rep.Window.Name,
		changeset.FormatDate(&rep.Window.Start)+" to "+changeset.FormatDate(&rep.Window.End))
	t.add("Excluded", "", rep.Excluded)
	t.add("Zero probability", "", rep.ZeroProb)
	t.add("Zero weighted", "", rep.ZeroWeighted)
	return t
}
