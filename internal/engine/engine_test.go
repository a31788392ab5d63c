package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/acv"
	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

const hourlySOW = `STATEMENT OF WORK
This Statement of Work is effective from 1st November 2025 and the Services
shall be provided for a term of twenty-four (24) months.
The Client shall pay a rate of €80 per hour for a minimum of 125 hours per week.
All fees are stated in EUR and exclusive of VAT.`

func fp(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestBuildContract_HourlyEUR(t *testing.T) {
	c := BuildContract(ingest.ContractInput{AccountLabel: "Acme", FileLabel: "sow.pdf", Text: hourlySOW}, 1.18)

	assert.Equal(t, model.ContractOK, c.Status)
	require.NotNil(t, c.ACVUSD)
	assert.InDelta(t, 613600.00, *c.ACVUSD, 1e-6)
	assert.Equal(t, "hourly × hours × 52 → USD", c.ACVMethod)
	assert.Equal(t, acv.RuleHourlyHours, c.ACVRule)
	assert.Equal(t, model.EUR, c.Currency)
	assert.Equal(t, 24, c.TermMonths)
	require.NotNil(t, c.HourlyRate)
	assert.InDelta(t, 80, *c.HourlyRate, 1e-9)
	assert.Contains(t, c.Quotes["hourly_rate"], "€80 per hour")
	assert.Equal(t, "Acme", c.AccountLabel)
	assert.Equal(t, "sow.pdf", c.FileLabel)
}

func TestBuildContract_NeedsReview(t *testing.T) {
	c := BuildContract(ingest.ContractInput{AccountLabel: "Acme", FileLabel: "letter.pdf",
		Text: "This letter confirms the parties' intent to work together."}, 1.18)

	assert.Equal(t, model.ContractNeedsReview, c.Status)
	assert.Nil(t, c.ACVUSD)
	assert.Zero(t, c.ACVRule)
	assert.Nil(t, c.Quotes)
}

func TestBuildContract_Unreadable(t *testing.T) {
	c := BuildContract(ingest.ContractInput{AccountLabel: "Acme", FileLabel: "scan.pdf",
		Err: errors.New("pdftotext failed")}, 1.18)
	assert.Equal(t, model.ContractError, c.Status)
	assert.Contains(t, c.Error, "pdftotext failed")

	c = BuildContract(ingest.ContractInput{AccountLabel: "Acme", FileLabel: "scan.pdf", Text: " \f\n"}, 1.18)
	assert.Equal(t, model.ContractError, c.Status)
}

func TestCheckExtraction(t *testing.T) {
	ok := model.Contract{Status: model.ContractOK}
	bad := model.Contract{Status: model.ContractError}

	assert.NoError(t, CheckExtraction(nil, 0.2))
	assert.NoError(t, CheckExtraction([]model.Contract{ok, ok, ok, ok, bad}, 0.2), "exactly at threshold is allowed")

	err := CheckExtraction([]model.Contract{ok, ok, bad}, 0.2)
	var te *model.ExtractionThresholdError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Failed)
	assert.Equal(t, 3, te.Total)
}

func reconcileInput() ReconcileInput {
	return ReconcileInput{
		RunRate: []model.RunRateRow{
			{AccountLabel: "Acme Ltd", AccountKey: normalize.AccountName("Acme Ltd"), MonthlyUSD: 10000},
			{AccountLabel: "Globex", AccountKey: normalize.AccountName("Globex"), MonthlyUSD: 5000},
		},
		Opportunities: []model.Opportunity{
			{ID: "006A", AccountLabel: "Acme Ltd", AccountKey: normalize.AccountName("Acme Ltd"),
				Name: "Acme Renewal", NameKey: normalize.OppName("Acme Renewal"),
				Stage: model.StageClosedWon, Revenue: 100000, RevenueType: model.RevenueTypeRecurring},
			{ID: "006I", AccountLabel: "Initech", AccountKey: normalize.AccountName("Initech"),
				Name: "Initech Misc", NameKey: normalize.OppName("Initech Misc"),
				Stage: model.StageClosedWon, Revenue: 40000},
		},
		Contracts: []ingest.ContractInput{
			{AccountLabel: "Acme", FileLabel: "msa.txt", Text: "Annual fee of $120,000 per annum."},
			{AccountLabel: "Acme", FileLabel: "rider.txt", Text: "This letter confirms the parties' intent."},
			{AccountLabel: "Globex", FileLabel: "sow.pdf", Err: errors.New("pdftotext failed")},
		},
	}
}

func rules(recs []model.ChangeRecord) map[model.Rule]int {
	out := make(map[model.Rule]int)
	for _, r := range recs {
		out[r.Rule]++
	}
	return out
}

func TestReconcile_EndToEnd(t *testing.T) {
	out, err := Reconcile(reconcileInput(), match.New(0.8, nil), ReconcileOptions{
		EURUSDRate:              1.18,
		ExtractionErrorFraction: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, map[model.Rule]int{
		model.RuleAligned:             1,
		model.RuleMissingAccount:      1,
		model.RuleLinkContract:        1,
		model.RuleNeedsManualACV:      1,
		model.RuleNeedsClassification: 1,
	}, rules(out.Changes))
	assert.Equal(t, 1, out.Unclassified)
	assert.Zero(t, out.Skipped)

	assert.Equal(t, model.RevenueRecurring, out.Opportunities[0].Class)
	assert.Equal(t, model.RevenueOther, out.Opportunities[1].Class)

	rep := out.Report
	assert.Equal(t, 3, rep.ContractsReviewed)
	assert.Equal(t, 1, rep.ExtractionErrors)
	assert.Equal(t, 1, rep.UnmatchedRunRate)
	assert.Zero(t, rep.OrphanContracts)

	var acme model.ReconciliationRow
	for _, r := range rep.Rows {
		if r.AccountKey == normalize.AccountName("Acme Ltd") {
			acme = r
		}
	}
	assert.InDelta(t, 120000, acme.Benchmark, 1e-9)
	assert.InDelta(t, 120000, acme.ContractSum, 1e-9)
	assert.Equal(t, model.StatusAligned, acme.Status)

	// Changes come back in serialization order.
	for i := 1; i < len(out.Changes); i++ {
		assert.LessOrEqual(t, string(out.Changes[i-1].Kind), string(out.Changes[i].Kind))
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	opts := ReconcileOptions{EURUSDRate: 1.18, ExtractionErrorFraction: 0.5}
	a, err := Reconcile(reconcileInput(), match.New(0.8, nil), opts)
	require.NoError(t, err)
	b, err := Reconcile(reconcileInput(), match.New(0.8, nil), opts)
	require.NoError(t, err)
	assert.Equal(t, a.Changes, b.Changes)
	assert.Equal(t, a.Report, b.Report)
}

func TestReconcile_ExtractionThreshold(t *testing.T) {
	_, err := Reconcile(reconcileInput(), match.New(0.8, nil), ReconcileOptions{
		EURUSDRate:              1.18,
		ExtractionErrorFraction: 0.2,
	})
	var te *model.ExtractionThresholdError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Failed)
}

func conflictingInput() ReconcileInput {
	in := reconcileInput()
	in.Contracts = []ingest.ContractInput{
		{AccountLabel: "Acme", FileLabel: "MSA.txt", Text: "Annual fee of $120,000 per annum."},
		{AccountLabel: "Acme", FileLabel: "msa.TXT", Text: "Annual fee of $90,000 per annum."},
	}
	return in
}

func TestReconcile_ConflictFails(t *testing.T) {
	_, err := Reconcile(conflictingInput(), match.New(0.8, nil), ReconcileOptions{EURUSDRate: 1.18, ExtractionErrorFraction: 0.2})
	var ce *model.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "acv_usd", ce.Field)
	assert.Equal(t, "120000.00", ce.FirstValue)
	assert.Equal(t, "90000.00", ce.SecondValue)
}

func TestReconcile_ConflictAllowed(t *testing.T) {
	out, err := Reconcile(conflictingInput(), match.New(0.8, nil), ReconcileOptions{
		EURUSDRate: 1.18, ExtractionErrorFraction: 0.2, AllowConflicts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 1, rules(out.Changes)[model.RuleLinkContract])

	var found bool
	for _, is := range out.Report.Issues {
		if is.Kind == model.IssueConflict {
			found = true
		}
	}
	assert.True(t, found)
}

var q4 = model.Window{
	Name:  "Q4 FY2026",
	Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
}

var calendarQ4 = model.Window{
	Name:  "2025-10-01_2025-12-31",
	Start: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
}

func repriceInput() RepriceInput {
	cur := model.ProbabilityMatrix{}
	prop := model.ProbabilityMatrix{}
	cur.Set(model.StageProposal, model.AccountExistingClient, 0.50)
	prop.Set(model.StageProposal, model.AccountExistingClient, 0.55)
	return RepriceInput{
		Opportunities: []model.Opportunity{
			{ID: "006P", AccountLabel: "Acme", Name: "Acme renewal", AccountClass: model.AccountExistingClient,
				Stage: model.StageProposal, WeightedACV: fp(50000), CloseDate: day(2025, 12, 15)},
			{ID: "006Z", AccountLabel: "Globex", Name: "Globex pilot", AccountClass: model.AccountNewLogo,
				Stage: model.StageSQO, WeightedACV: fp(10000), CloseDate: day(2025, 12, 1)},
		},
		Current:  cur,
		Proposed: prop,
		Windows:  []model.Window{q4},
	}
}

func TestReprice_WriteBack(t *testing.T) {
	out, err := Reprice(repriceInput(), RepriceOptions{WriteBack: true})
	require.NoError(t, err)
	require.Len(t, out.Reports, 1)

	rep := out.Reports[0]
	assert.InDelta(t, 5000, rep.Total.Delta, 1e-6)
	assert.Equal(t, 1, rep.ZeroProb)

	require.Len(t, out.Changes, 1)
	c := out.Changes[0]
	assert.Equal(t, "006P", c.Key)
	assert.Equal(t, "55000.00", c.Fields["weighted_acv"])
	assert.Equal(t, "0.5500", c.Fields["probability"])

	require.Len(t, out.Issues, 1)
	assert.Equal(t, model.IssueZeroProb, out.Issues[0].Kind)
	assert.Contains(t, out.Issues[0].Subject, "006Z")
}

func TestReprice_NoWriteBack(t *testing.T) {
	out, err := Reprice(repriceInput(), RepriceOptions{})
	require.NoError(t, err)
	assert.Empty(t, out.Changes)
}

func TestReprice_WindowsReportedSeparately(t *testing.T) {
	in := repriceInput()
	in.Windows = []model.Window{q4, calendarQ4}

	out, err := Reprice(in, RepriceOptions{WriteBack: true})
	require.NoError(t, err)
	require.Len(t, out.Reports, 2)
	assert.Equal(t, "Q4 FY2026", out.Reports[0].Window.Name)
	assert.Equal(t, calendarQ4.Name, out.Reports[1].Window.Name)
	assert.InDelta(t, 5000, out.Reports[1].Total.Delta, 1e-6)

	// The same deal repriced in both windows is written back once.
	assert.Len(t, out.Changes, 1)
}

func TestReprice_RequiresWindow(t *testing.T) {
	in := repriceInput()
	in.Windows = nil
	_, err := Reprice(in, RepriceOptions{})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestReprice_DoesNotMutateInput(t *testing.T) {
	in := repriceInput()
	_, err := Reprice(in, RepriceOptions{})
	require.NoError(t, err)
	assert.Empty(t, in.Opportunities[0].Class)
}
