package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/model"
)

// Output file names of a reconcile run.
const (
	ReconciliationXLSX = "reconciliation.xlsx"
	ReconciliationCSV  = "reconciliation.csv"
	ChangeSetJSONL     = "changeset.jsonl"
)

var reconciliationHeader = []string{
	"Account Key", "Account", "Sources",
	"Run-Rate Benchmark (USD)", "Contract ACV (USD)", "Opportunity Revenue (USD)",
	"Gap (USD)", "Coverage", "Status",
	"Contracts", "Opportunities", "Unclassified", "Match Note",
}

var contractHeader = []string{
	"Key", "Account Folder", "Account Key", "File", "Status", "Currency",
	"Start Date", "End Date", "Term Months",
	"Hourly Rate", "Weekly Hours", "Monthly Fee", "Annual Fee", "Total Value", "Day Rate",
	"ACV (USD)", "ACV Rule", "ACV Method", "Confidence", "Error", "Match Note",
}

// WriteReconciliation writes the reconciliation workbook and CSV, the JSONL
// change set and one bulk-upload CSV per object kind into dir. It returns
// the written paths in write order.
func WriteReconciliation(dir string, rep *model.ReconciliationReport, changes []model.ChangeRecord) ([]string, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	rows := reconciliationTable(rep)
	var written []string

	path := filepath.Join(dir, ReconciliationXLSX)
	if err := writeWorkbook(path, rows, contractTable(rep), issueTable(rep)); err != nil {
		return written, err
	}
	written = append(written, path)

	path = filepath.Join(dir, ReconciliationCSV)
	if err := writeCSV(path, rows); err != nil {
		return written, err
	}
	written = append(written, path)

	paths, err := WriteChangeSet(dir, changes)
	written = append(written, paths...)
	if err != nil {
		return written, err
	}

	zap.L().Info("report: reconciliation written",
		zap.String("dir", dir),
		zap.Int("rows", len(rep.Rows)),
		zap.Int("changes", len(changes)),
		zap.Int("files", len(written)),
	)
	return written, nil
}

func reconciliationTable(rep *model.ReconciliationReport) *table {
	t := &table{name: "Reconciliation", header: reconciliationHeader}
	for _, r := range rep.Rows {
		t.add(
			r.AccountKey, r.AccountName, r.Presence.String(),
			money(r.Benchmark), money(r.ContractSum), money(r.OppSum),
			money(r.Gap), ratio(r.Coverage), string(r.Status),
			r.ContractCount, r.OppCount, r.Unclassified, r.MatchNote,
		)
	}
	return t
}

func contractTable(rep *model.ReconciliationReport) *table {
	t := &table{name: "Contracts", header: contractHeader}
	for _, c := range rep.Contracts {
		term := any("")
		if c.TermMonths > 0 {
			term = c.TermMonths
		}
		rule := any("")
		if c.ACVRule > 0 {
			rule = c.ACVRule
		}
		t.add(
			c.Key, c.AccountLabel, c.AccountKey, c.FileLabel, string(c.Status), string(c.Currency),
			changeset.FormatDate(c.StartDate), changeset.FormatDate(c.EndDate), term,
			optMoney(c.HourlyRate), optMoney(c.WeeklyHours), optMoney(c.MonthlyFee),
			optMoney(c.AnnualFee), optMoney(c.TotalValue), optMoney(c.DayRate),
			optMoney(c.ACVUSD), rule, c.ACVMethod, string(c.Confidence), c.Error, c.MatchNote,
		)
	}
	return t
}

func issueTable(rep *model.ReconciliationReport) *table {
	t := &table{name: "Issues", header: []string{"Kind", "Subject", "Detail"}}
	for _, is := range rep.Issues {
		t.add(string(is.Kind), is.Subject, is.Detail)
	}
	t.add("", "", "")
	t.add("SUMMARY", "contracts reviewed", rep.ContractsReviewed)
	t.add("SUMMARY", "extraction errors", rep.ExtractionErrors)
	t.add("SUMMARY", "orphan contracts", rep.OrphanContracts)
	t.add("SUMMARY", "unmatched run-rate accounts", rep.UnmatchedRunRate)
	return t
}

// WriteChangeSet writes changeset.jsonl plus one bulk-upload CSV per
// object kind present in changes.
func WriteChangeSet(dir string, changes []model.ChangeRecord) ([]string, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ChangeSetJSONL)
	if err := writeJSONL(path, changes); err != nil {
		return nil, err
	}
	paths, err := writeChangeCSVs(dir, changes)
	return append([]string{path}, paths...), err
}

func writeJSONL(path string, changes []model.ChangeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := changeset.WriteJSONL(f, changes); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return f.Close()
}

// ChangeCSVName is the bulk-upload file name for one object kind.
func ChangeCSVName(kind model.ObjectKind) string {
	return "changeset_" + strings.ToLower(string(kind)) + ".csv"
}

func writeChangeCSVs(dir string, changes []model.ChangeRecord) ([]string, error) {
	byKind := changeset.ByKind(changes)
	var written []string
	for _, kind := range []model.ObjectKind{model.ObjectAccount, model.ObjectContract, model.ObjectOpportunity} {
		recs := byKind[kind]
		if len(recs) == 0 {
			continue
		}
		path := filepath.Join(dir, ChangeCSVName(kind))
		if err := writeChangeCSV(path, recs); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeChangeCSV(path string, recs []model.ChangeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := changeset.WriteCSV(f, recs); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return f.Close()
}
