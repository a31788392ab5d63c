package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/engine"
	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/report"
)

var repriceCmd = &cobra.Command{
	Use:   "reprice",
	Short: "Reprice the active pipeline under a proposed probability matrix",
	Long: `Recomputes weighted ACV for every active deal closing inside the target
window under the proposed stage x account-class matrix. Deals carrying a
custom probability keep it. One report is written per window; windows are
never combined.

The window comes from --window-start/--window-end, or from reprice.windows
in the config file when the flags are absent.

Outputs written to --out, per window:
  probability_<window>.xlsx   Detail and Summary sheets
  probability_<window>.csv    per-deal detail
With --write-back, changeset.jsonl and changeset_opportunity.csv as well.

Examples:
  recon-cli reprice --opportunities pipeline.xlsx --matrices matrices.yaml \
    --window-name "Q4 FY2026" --window-start 2025-11-01 --window-end 2026-01-31 --out ./out`,
	RunE: runReprice,
}

func init() {
	f := repriceCmd.Flags()
	f.String("opportunities", "", "open pipeline export (xlsx or csv)")
	f.String("matrices", "", "current and proposed probability matrices (overrides inputs.matrices)")
	f.String("out", "", "output directory")
	f.String("window-start", "", "first close date of the target window")
	f.String("window-end", "", "last close date of the target window")
	f.String("window-name", "", "target window name (default: <start>_<end>)")
	f.Bool("write-back", false, "emit weighted-ACV change records for repriced deals")
	f.Bool("allow-conflicts", false, "record and skip conflicting change records instead of failing")
	_ = repriceCmd.MarkFlagRequired("opportunities")
	_ = repriceCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(repriceCmd)
}

// repriceSummary is the ledger summary of a reprice run.
type repriceSummary struct {
	Windows []windowSummary `json:"windows"`
	Changes int             `json:"changes"`
	Skipped int             `json:"skipped"`
	Issues  int             `json:"issues"`
	Files   []string        `json:"files"`
}

type windowSummary struct {
	Name             string  `json:"name"`
	Deals            int     `json:"deals"`
	CurrentWeighted  float64 `json:"current_weighted"`
	ProposedWeighted float64 `json:"proposed_weighted"`
	Delta            float64 `json:"delta"`
	Excluded         int     `json:"excluded"`
	ZeroProb         int     `json:"zero_prob"`
	ZeroWeighted     int     `json:"zero_weighted"`
}

func runReprice(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := cmd.Flags()
	oppPath, _ := f.GetString("opportunities")
	matricesPath, _ := f.GetString("matrices")
	outDir, _ := f.GetString("out")
	if matricesPath == "" {
		matricesPath = cfg.Inputs.Matrices
	}
	if matricesPath == "" {
		return flagIssue("matrices", eris.New("no matrices file given (--matrices or inputs.matrices)"))
	}

	windows, err := repriceWindows(cmd)
	if err != nil {
		return err
	}

	writeBack, _ := f.GetBool("write-back")
	allow, _ := f.GetBool("allow-conflicts")
	opts := engine.RepriceOptions{
		ActiveStages:   cfg.Engine.Stages(),
		WriteBack:      writeBack || cfg.Engine.WriteBackWeighted,
		AllowConflicts: allow || cfg.Engine.AllowConflicts,
	}

	inputs := []string{oppPath, matricesPath}
	out, files, err := executeReprice(ctx, cfg, oppPath, matricesPath, outDir, windows, opts)
	if out == nil {
		recordRun(ctx, "reprice", inputs, nil, nil, err)
		return err
	}
	summary := summarizeReprice(out, files)
	recordRun(ctx, "reprice", inputs, out.Changes, summary, err)
	if err != nil {
		return err
	}

	formatRepriceSummary(os.Stdout, summary)
	return nil
}

// repriceWindows resolves the target windows: the flag window when given,
// else the configured ones.
func repriceWindows(cmd *cobra.Command) ([]model.Window, error) {
	f := cmd.Flags()
	start, _ := f.GetString("window-start")
	end, _ := f.GetString("window-end")
	name, _ := f.GetString("window-name")

	if start != "" || end != "" {
		w, err := config.ParseWindow(name, start, end)
		if err != nil {
			return nil, flagIssue("window", err)
		}
		return []model.Window{w}, nil
	}

	windows, err := cfg.Reprice.ParsedWindows()
	if err != nil {
		return nil, flagIssue("window", err)
	}
	return windows, nil
}

// executeReprice loads the pipeline and matrices, runs the engine and writes
// one report per window.
func executeReprice(ctx context.Context, c *config.Config, oppPath, matricesPath, outDir string, windows []model.Window, opts engine.RepriceOptions) (*engine.RepriceOutput, []string, error) {
	matrices, err := config.LoadMatrices(matricesPath)
	if err != nil {
		return nil, nil, err
	}

	opps, err := ingest.LoadOpportunities(ctx, oppPath, c.Reconcile.OpportunitySheet, c.Columns.Opportunities)
	if err != nil {
		return nil, nil, err
	}

	out, err := engine.Reprice(engine.RepriceInput{
		Opportunities: opps,
		Current:       matrices.Current,
		Proposed:      matrices.Proposed,
		Windows:       windows,
	}, opts)
	if err != nil {
		return nil, nil, err
	}

	var files []string
	for _, rep := range out.Reports {
		paths, err := report.WriteProbability(outDir, rep)
		files = append(files, paths...)
		if err != nil {
			return out, files, eris.Wrap(err, "reprice: write outputs")
		}
	}
	if opts.WriteBack {
		paths, err := report.WriteChangeSet(outDir, out.Changes)
		files = append(files, paths...)
		if err != nil {
			return out, files, eris.Wrap(err, "reprice: write change set")
		}
	}

	for _, is := range out.Issues {
		zap.L().Warn("reprice: issue",
			zap.String("kind", string(is.Kind)),
			zap.String("subject", is.Subject),
			zap.String("detail", is.Detail),
		)
	}
	return out, files, nil
}

func summarizeReprice(out *engine.RepriceOutput, files []string) *repriceSummary {
	s := &repriceSummary{
		Changes: len(out.Changes),
		Skipped: out.Skipped,
		Issues:  len(out.Issues),
		Files:   files,
	}
	for _, rep := range out.Reports {
		s.Windows = append(s.Windows, windowSummary{
			Name:             rep.Window.Name,
			Deals:            rep.Total.Deals,
			CurrentWeighted:  rep.Total.CurrentWeighted,
			ProposedWeighted: rep.Total.ProposedWeighted,
			Delta:            rep.Total.Delta,
			Excluded:         rep.Excluded,
			ZeroProb:         rep.ZeroProb,
			ZeroWeighted:     rep.ZeroWeighted,
		})
	}
	return s
}

// formatRepriceSummary writes per-window totals to w.
func formatRepriceSummary(out io.Writer, s *repriceSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WINDOW\tDEALS\tCURRENT\tPROPOSED\tDELTA\tEXCLUDED")
	_, _ = fmt.Fprintln(w, "------\t-----\t-------\t--------\t-----\t--------")
	for _, ws := range s.Windows {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\n",
			ws.Name,
			ws.Deals,
			changeset.FormatMoney(ws.CurrentWeighted),
			changeset.FormatMoney(ws.ProposedWeighted),
			changeset.FormatMoney(ws.Delta),
			ws.Excluded,
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "Issues: %d\n", s.Issues)
	if s.Changes > 0 {
		_, _ = fmt.Fprintf(out, "Change records: %d\n", s.Changes)
	}
	for _, p := range s.Files {
		_, _ = fmt.Fprintf(out, "Wrote: %s\n", p)
	}
}
