// Package engine wires the loaders, the extractor, the ACV ladder, the
// classifier, the reconciler, the probability engine, and the change-set
// emitter into the two runs the CLI exposes.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/acv"
	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/classify"
	"github.com/sells-group/recon-cli/internal/extract"
	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/probability"
	"github.com/sells-group/recon-cli/internal/reconcile"
)

// BuildContract extracts terms from one loaded document and prices it.
// A read failure or an empty text layer yields status ERROR; no ladder rule
// yields NEEDS_REVIEW.
func BuildContract(in ingest.ContractInput, eurUSD float64) model.Contract {
	c := model.Contract{
		AccountLabel: in.AccountLabel,
		FileLabel:    in.FileLabel,
		Path:         in.Path,
	}

	terms, err := extract.FromDocument(in.Text, in.Err)
	if err != nil {
		c.Status = model.ContractError
		c.Error = err.Error()
		return c
	}

	c.Currency = terms.Currency
	c.StartDate = terms.StartDate.Date
	c.StartDateRaw = terms.StartDate.Raw
	c.EndDate = terms.EndDate.Date
	c.EndDateRaw = terms.EndDate.Raw
	c.TermMonths = terms.Term.Months
	c.TermDerived = terms.Term.Derived
	c.HourlyRate = terms.HourlyRate.Ptr()
	c.WeeklyHours = terms.WeeklyHours.Ptr()
	c.MonthlyFee = terms.MonthlyFee.Ptr()
	c.AnnualFee = terms.AnnualFee.Ptr()
	c.TotalValue = terms.TotalValue.Ptr()
	c.DayRate = terms.DayRate.Ptr()
	if q := terms.Quotes(); len(q) > 0 {
		c.Quotes = q
	}

	res := acv.Calculate(terms, eurUSD)
	c.ACVRule = res.Rule
	c.ACVMethod = res.Method
	c.Confidence = res.Confidence
	if res.NeedsReview() {
		c.Status = model.ContractNeedsReview
		return c
	}
	c.ACVUSD = res.ACV
	c.Status = model.ContractOK
	return c
}

// BuildContracts prices every document, preserving input order.
func BuildContracts(inputs []ingest.ContractInput, eurUSD float64) []model.Contract {
	out := make([]model.Contract, len(inputs))
	for i, in := range inputs {
		out[i] = BuildContract(in, eurUSD)
	}
	return out
}

// CheckExtraction fails with *model.ExtractionThresholdError when the
// fraction of unreadable contracts exceeds threshold.
func CheckExtraction(contracts []model.Contract, threshold float64) error {
	if len(contracts) == 0 {
		return nil
	}
	failed := 0
	for i := range contracts {
		if contracts[i].Status == model.ContractError {
			failed++
		}
	}
	if float64(failed)/float64(len(contracts)) > threshold {
		return &model.ExtractionThresholdError{Failed: failed, Total: len(contracts), Threshold: threshold}
	}
	return nil
}

// ReconcileInput is one snapshot of the reconciliation inputs.
type ReconcileInput struct {
	RunRate       []model.RunRateRow
	Opportunities []model.Opportunity
	Contracts     []ingest.ContractInput
}

// ReconcileOptions carries the run constants.
type ReconcileOptions struct {
	EURUSDRate              float64
	ExtractionErrorFraction float64
	AllowConflicts          bool
	Period                  reconcile.Period
}

// ReconcileOutput is the report plus the accepted change set.
type ReconcileOutput struct {
	Report        *model.ReconciliationReport
	Opportunities []model.Opportunity
	Changes       []model.ChangeRecord
	Skipped       int
	Unclassified  int
}

// Reconcile runs the full reconciliation. It fails with
// *model.ExtractionThresholdError when too many contracts are unreadable
// and with *model.ConflictError when two rules disagree on a field, unless
// conflicts are allowed.
func Reconcile(in ReconcileInput, m *match.Matcher, opts ReconcileOptions) (*ReconcileOutput, error) {
	contracts := BuildContracts(in.Contracts, opts.EURUSDRate)
	if err := CheckExtraction(contracts, opts.ExtractionErrorFraction); err != nil {
		return nil, err
	}

	opps := append([]model.Opportunity(nil), in.Opportunities...)
	other := classify.All(opps)

	res := reconcile.New(m, opts.Period).Reconcile(reconcile.Input{
		RunRate:       in.RunRate,
		Opportunities: opps,
		Contracts:     contracts,
	})

	em := changeset.NewEmitter(opts.AllowConflicts)
	if err := em.Add(res.Changes...); err != nil {
		return nil, err
	}
	res.Report.Issues = append(res.Report.Issues, em.Issues()...)

	zap.L().Info("engine: reconcile complete",
		zap.Int("changes", em.Len()),
		zap.Int("skipped", em.Skipped()),
		zap.Int("unclassified", other),
	)
	return &ReconcileOutput{
		Report:        res.Report,
		Opportunities: opps,
		Changes:       em.Records(),
		Skipped:       em.Skipped(),
		Unclassified:  other,
	}, nil
}

// RepriceInput is the pipeline plus the matrices and target windows.
type RepriceInput struct {
	Opportunities []model.Opportunity
	Current       model.ProbabilityMatrix
	Proposed      model.ProbabilityMatrix
	Windows       []model.Window
}

// RepriceOptions carries the run switches.
type RepriceOptions struct {
	ActiveStages   model.StageSet
	WriteBack      bool
	AllowConflicts bool
}

// RepriceOutput holds one report per window, never combined.
type RepriceOutput struct {
	Reports []*model.ProbabilityReport
	Issues  []model.Issue
	Changes []model.ChangeRecord
	Skipped int
}

// Reprice runs the probability engine once per window. With write-back
// enabled, repriced deals become weighted-acv change records.
func Reprice(in RepriceInput, opts RepriceOptions) (*RepriceOutput, error) {
	if len(in.Windows) == 0 {
		return nil, &model.ValidationError{Issues: []model.RowIssue{{
			Source: "reprice", Column: "window", Reason: "no target window given",
		}}}
	}

	opps := append([]model.Opportunity(nil), in.Opportunities...)
	classify.All(opps)

	e := probability.New(in.Current, in.Proposed, opts.ActiveStages)
	em := changeset.NewEmitter(opts.AllowConflicts)
	out := &RepriceOutput{}

	for _, w := range in.Windows {
		rep := e.Reprice(opps, w)
		out.Reports = append(out.Reports, rep)

		for _, d := range rep.Deals {
			if d.Reason != model.ReasonZeroProb {
				continue
			}
			out.Issues = append(out.Issues, model.Issue{
				Kind:    model.IssueZeroProb,
				Subject: fmt.Sprintf("%s %s", w.Name, d.Key),
				Detail:  fmt.Sprintf("%s: probability used is 0, weighted ACV cannot be backed out", d.Name),
			})
		}

		if opts.WriteBack {
			if err := em.Add(probability.WriteBack(rep)...); err != nil {
				return nil, err
			}
		}
	}

	out.Changes = em.Records()
	out.Skipped = em.Skipped()
	out.Issues = append(out.Issues, em.Issues()...)
	return out, nil
}
