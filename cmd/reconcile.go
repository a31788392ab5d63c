package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/engine"
	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/ocr"
	"github.com/sells-group/recon-cli/internal/reconcile"
	"github.com/sells-group/recon-cli/internal/report"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile run-rate, CRM opportunities and contracts per account",
	Long: `Builds the per-account revenue picture from the finance run-rate benchmark,
won CRM opportunities and signed contracts, classifies every opportunity and
emits the CRM change set.

Contracts are read from <contracts>/<account folder>/<file>, where .pdf files
go through pdftotext and .txt files are read verbatim.

Outputs written to --out:
  reconciliation.xlsx    Reconciliation, Contracts and Issues sheets
  reconciliation.csv     per-account rows
  changeset.jsonl        the change set, one record per line
  changeset_<kind>.csv   bulk-upload file per CRM object

Examples:
  recon-cli reconcile --runrate runrate.xlsx --opportunities won.csv \
    --contracts ./contracts --out ./out

  # Count only opportunities closing in FY2026
  recon-cli reconcile --runrate runrate.xlsx --opportunities won.csv \
    --contracts ./contracts --out ./out --period-start 2025-02-01 --period-end 2026-01-31`,
	RunE: runReconcile,
}

func init() {
	f := reconcileCmd.Flags()
	f.String("runrate", "", "finance run-rate workbook (xlsx or csv)")
	f.String("opportunities", "", "won CRM opportunities export (xlsx or csv)")
	f.String("contracts", "", "contracts root directory (one folder per account)")
	f.String("aliases", "", "folder-label alias file (overrides inputs.aliases)")
	f.String("out", "", "output directory")
	f.Bool("allow-conflicts", false, "record and skip conflicting change records instead of failing")
	f.String("period-start", "", "first close date counted toward an account (overrides reconcile.period_start)")
	f.String("period-end", "", "last close date counted toward an account (overrides reconcile.period_end)")
	_ = reconcileCmd.MarkFlagRequired("runrate")
	_ = reconcileCmd.MarkFlagRequired("opportunities")
	_ = reconcileCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(reconcileCmd)
}

// reconcilePaths are the inputs and output directory of a reconcile run.
type reconcilePaths struct {
	RunRate       string
	Opportunities string
	Contracts     string
	Aliases       string
	Out           string
}

func (p reconcilePaths) inputs() []string {
	return []string{p.RunRate, p.Opportunities, p.Contracts, p.Aliases}
}

// reconcileSummary is the ledger summary of a reconcile run.
type reconcileSummary struct {
	Accounts          int            `json:"accounts"`
	Statuses          map[string]int `json:"statuses"`
	Changes           int            `json:"changes"`
	Skipped           int            `json:"skipped"`
	Unclassified      int            `json:"unclassified"`
	Issues            int            `json:"issues"`
	ContractsReviewed int            `json:"contracts_reviewed"`
	ExtractionErrors  int            `json:"extraction_errors"`
	OrphanContracts   int            `json:"orphan_contracts"`
	UnmatchedRunRate  int            `json:"unmatched_run_rate"`
	Files             []string       `json:"files"`
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := cmd.Flags()
	paths := reconcilePaths{}
	paths.RunRate, _ = f.GetString("runrate")
	paths.Opportunities, _ = f.GetString("opportunities")
	paths.Contracts, _ = f.GetString("contracts")
	paths.Aliases, _ = f.GetString("aliases")
	paths.Out, _ = f.GetString("out")
	if paths.Aliases == "" {
		paths.Aliases = cfg.Inputs.Aliases
	}

	rc := cfg.Reconcile
	if f.Changed("period-start") {
		rc.PeriodStart, _ = f.GetString("period-start")
	}
	if f.Changed("period-end") {
		rc.PeriodEnd, _ = f.GetString("period-end")
	}
	start, end, err := rc.Period()
	if err != nil {
		return flagIssue("period", err)
	}

	allow, _ := f.GetBool("allow-conflicts")
	opts := engine.ReconcileOptions{
		EURUSDRate:              cfg.Engine.EURUSDRate,
		ExtractionErrorFraction: cfg.Engine.ExtractionErrorFraction,
		AllowConflicts:          allow || cfg.Engine.AllowConflicts,
		Period:                  reconcile.Period{Start: start, End: end},
	}

	out, files, err := executeReconcile(ctx, cfg, paths, opts)

	if out == nil {
		recordRun(ctx, "reconcile", paths.inputs(), nil, nil, err)
		return err
	}
	summary := summarizeReconcile(out, files)
	recordRun(ctx, "reconcile", paths.inputs(), out.Changes, summary, err)
	if err != nil {
		return err
	}

	formatReconcileSummary(os.Stdout, summary)
	return nil
}

// executeReconcile loads every input, runs the engine and writes the
// outputs. The engine output is returned even when writing fails.
func executeReconcile(ctx context.Context, c *config.Config, paths reconcilePaths, opts engine.ReconcileOptions) (*engine.ReconcileOutput, []string, error) {
	log := zap.L().With(zap.String("command", "reconcile"))

	var aliases map[string]string
	if paths.Aliases != "" {
		a, err := config.LoadAliases(paths.Aliases)
		if err != nil {
			return nil, nil, err
		}
		aliases = a
	}

	runRate, err := ingest.LoadRunRate(ctx, paths.RunRate, c.Columns.RunRate, ingest.RunRateOptions{
		Sheet:       c.Reconcile.RunRateSheet,
		MonthColumn: c.Reconcile.RunRateMonthColumn,
		Currency:    c.Reconcile.Currency(),
		EURUSDRate:  c.Engine.EURUSDRate,
	})
	if err != nil {
		return nil, nil, err
	}

	opps, err := ingest.LoadOpportunities(ctx, paths.Opportunities, c.Reconcile.OpportunitySheet, c.Columns.Opportunities)
	if err != nil {
		return nil, nil, err
	}

	var contracts []ingest.ContractInput
	if paths.Contracts != "" {
		ext, err := ocr.NewExtractor(c.OCR)
		if err != nil {
			return nil, nil, err
		}
		contracts, err = ingest.LoadContracts(ctx, paths.Contracts, ext, c.OCR.Concurrency)
		if err != nil {
			return nil, nil, err
		}
	}

	log.Info("reconcile: inputs loaded",
		zap.Int("runrate_rows", len(runRate)),
		zap.Int("opportunities", len(opps)),
		zap.Int("contracts", len(contracts)),
	)

	out, err := engine.Reconcile(engine.ReconcileInput{
		RunRate:       runRate,
		Opportunities: opps,
		Contracts:     contracts,
	}, match.New(c.Engine.FuzzyThreshold, aliases), opts)
	if err != nil {
		return nil, nil, err
	}

	files, err := report.WriteReconciliation(paths.Out, out.Report, out.Changes)
	if err != nil {
		return out, files, eris.Wrap(err, "reconcile: write outputs")
	}
	return out, files, nil
}

func summarizeReconcile(out *engine.ReconcileOutput, files []string) *reconcileSummary {
	s := &reconcileSummary{
		Accounts:          len(out.Report.Rows),
		Statuses:          make(map[string]int),
		Changes:           len(out.Changes),
		Skipped:           out.Skipped,
		Unclassified:      out.Unclassified,
		Issues:            len(out.Report.Issues),
		ContractsReviewed: out.Report.ContractsReviewed,
		ExtractionErrors:  out.Report.ExtractionErrors,
		OrphanContracts:   out.Report.OrphanContracts,
		UnmatchedRunRate:  out.Report.UnmatchedRunRate,
		Files:             files,
	}
	for _, r := range out.Report.Rows {
		s.Statuses[string(r.Status)]++
	}
	return s
}

// formatReconcileSummary writes the run totals to w.
func formatReconcileSummary(out io.Writer, s *reconcileSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Accounts:\t%d\n", s.Accounts)

	statuses := make([]string, 0, len(s.Statuses))
	for st := range s.Statuses {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.Statuses[st])
	}

	_, _ = fmt.Fprintf(w, "Contracts reviewed:\t%d\n", s.ContractsReviewed)
	_, _ = fmt.Fprintf(w, "  Extraction errors:\t%d\n", s.ExtractionErrors)
	_, _ = fmt.Fprintf(w, "  Orphans:\t%d\n", s.OrphanContracts)
	_, _ = fmt.Fprintf(w, "Unmatched run-rate accounts:\t%d\n", s.UnmatchedRunRate)
	_, _ = fmt.Fprintf(w, "Unclassified opportunities:\t%d\n", s.Unclassified)
	_, _ = fmt.Fprintf(w, "Issues:\t%d\n", s.Issues)
	_, _ = fmt.Fprintf(w, "Change records:\t%d\n", s.Changes)
	if s.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "  Skipped conflicts:\t%d\n", s.Skipped)
	}
	for _, p := range s.Files {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", p)
	}
	_ = w.Flush()
}
