package probability

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

func fp(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

var q4 = model.Window{
	Name:  "Q4 FY2026",
	Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
}

func matrices() (model.ProbabilityMatrix, model.ProbabilityMatrix) {
	cur := model.ProbabilityMatrix{}
	prop := model.ProbabilityMatrix{}
	for i, s := range model.AllStages[:6] {
		for j, c := range model.AccountClasses {
			cur.Set(s, c, 0.10+0.08*float64(i)+0.01*float64(j))
			prop.Set(s, c, 0.12+0.07*float64(i)+0.02*float64(j))
		}
	}
	cur.Set(model.StageProposal, model.AccountExistingClient, 0.50)
	prop.Set(model.StageProposal, model.AccountExistingClient, 0.55)
	return cur, prop
}

func proposalDeal() model.Opportunity {
	return model.Opportunity{
		ID:           "006P",
		AccountLabel: "Acme",
		Name:         "Acme renewal",
		AccountClass: model.AccountExistingClient,
		Stage:        model.StageProposal,
		WeightedACV:  fp(50000),
		CloseDate:    day(2025, 12, 15),
		Class:        model.RevenueRecurring,
	}
}

func TestDeal_ProbabilitySwap(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()

	d, counted := e.Deal(&o, q4)
	require.True(t, counted)
	assert.Equal(t, model.ReasonRepriced, d.Reason)
	assert.Equal(t, model.ProbMatrix, d.ProbSource)
	assert.InDelta(t, 0.50, d.ProbabilityUsed, 1e-12)
	assert.InDelta(t, 100000, d.ACV, 1e-6)
	assert.InDelta(t, 55000, d.NewWeighted, 1e-6)
	assert.InDelta(t, 5000, d.Delta, 1e-6)
	assert.True(t, d.Active)
}

func TestDeal_OverrideUnchanged(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.CustomProbability = fp(0.70)

	d, counted := e.Deal(&o, q4)
	require.True(t, counted)
	assert.Equal(t, model.ReasonOverride, d.Reason)
	assert.Equal(t, model.ProbCustom, d.ProbSource)
	assert.Equal(t, 0.0, d.Delta)
	assert.Equal(t, 50000.0, d.NewWeighted)
	assert.True(t, d.Override)
}

func TestDeal_OutOfWindow(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.CloseDate = day(2026, 2, 1)

	d, counted := e.Deal(&o, q4)
	assert.False(t, counted)
	assert.Equal(t, model.ReasonInactive, d.Reason)
	assert.Equal(t, 0.0, d.Delta)
	assert.Equal(t, 50000.0, d.StoredWeighted)
	assert.Equal(t, 50000.0, d.NewWeighted)
	assert.False(t, d.Active)
}

func TestDeal_InactiveStage(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.Stage = model.StageNegotiation

	d, counted := e.Deal(&o, q4)
	assert.False(t, counted)
	assert.Equal(t, model.ReasonInactive, d.Reason)
}

func TestDeal_CustomActiveSet(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, model.StageSet{model.StageNegotiation})
	o := proposalDeal()
	o.Stage = model.StageNegotiation

	d, counted := e.Deal(&o, q4)
	assert.True(t, counted)
	assert.Equal(t, model.ReasonRepriced, d.Reason)
}

func TestDeal_CalculatedProbability(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.CalculatedProbability = fp(0.25)
	o.CustomProbability = fp(0)

	d, _ := e.Deal(&o, q4)
	assert.Equal(t, model.ProbCalculated, d.ProbSource)
	assert.InDelta(t, 200000, d.ACV, 1e-6)
	assert.InDelta(t, 110000, d.NewWeighted, 1e-6)
	assert.False(t, d.Override)
}

func TestDeal_ZeroProb(t *testing.T) {
	e := New(model.ProbabilityMatrix{}, model.ProbabilityMatrix{}, nil)
	o := proposalDeal()

	d, counted := e.Deal(&o, q4)
	assert.False(t, counted)
	assert.Equal(t, model.ReasonZeroProb, d.Reason)
	assert.Equal(t, model.ProbNone, d.ProbSource)
	assert.Zero(t, d.ACV)
	assert.Zero(t, d.Delta)
}

func TestDeal_ZeroWeighted(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.WeightedACV = fp(0)

	d, counted := e.Deal(&o, q4)
	assert.False(t, counted)
	assert.Equal(t, model.ReasonZeroWeighted, d.Reason)
	assert.Zero(t, d.Delta)
	assert.Zero(t, d.NewWeighted)
}

func TestDeal_NoProposedEntry(t *testing.T) {
	cur, _ := matrices()
	e := New(cur, model.ProbabilityMatrix{}, nil)
	o := proposalDeal()

	d, counted := e.Deal(&o, q4)
	assert.False(t, counted)
	assert.Equal(t, model.ReasonNoMatrix, d.Reason)
	assert.Zero(t, d.Delta)
}

func TestDeal_MissingWeightedUsesRevenue(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	o := proposalDeal()
	o.WeightedACV = nil
	o.Revenue = 80000

	d, counted := e.Deal(&o, q4)
	require.True(t, counted)
	assert.True(t, d.ACVProxied)
	assert.InDelta(t, 80000, d.ACV, 1e-6)
	assert.InDelta(t, 40000, d.StoredWeighted, 1e-6)
	assert.InDelta(t, 44000, d.NewWeighted, 1e-6)
}

func randomPipeline(r *rand.Rand, n int) []model.Opportunity {
	opps := make([]model.Opportunity, 0, n)
	for i := range n {
		o := model.Opportunity{
			ID:           fmt.Sprintf("006%04d", i),
			AccountLabel: fmt.Sprintf("Account %d", r.Intn(10)),
			Name:         fmt.Sprintf("Deal %d", i),
			AccountClass: model.AccountClasses[r.Intn(len(model.AccountClasses))],
			Stage:        model.AllStages[r.Intn(len(model.AllStages))],
			WeightedACV:  fp(float64(r.Intn(200000))),
			CloseDate:    day(2025, time.Month(9+r.Intn(6)), 1+r.Intn(28)),
			Class:        model.RevenueRecurring,
		}
		if r.Intn(4) == 0 {
			o.CustomProbability = fp(r.Float64())
		}
		if r.Intn(4) == 0 {
			o.CalculatedProbability = fp(r.Float64())
		}
		opps = append(opps, o)
	}
	return opps
}

func TestReprice_NetDeltaIsSumOfDeltas(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	r := rand.New(rand.NewSource(42))

	for range 20 {
		rep := e.Reprice(randomPipeline(r, 200), q4)
		var sum float64
		for _, d := range rep.Deals {
			if d.Active {
				sum += d.NewWeighted - d.StoredWeighted
			}
		}
		assert.InDelta(t, rep.Total.Delta, sum, 1e-6)
		assert.InDelta(t, rep.Total.ProposedWeighted-rep.Total.CurrentWeighted, rep.Total.Delta, 1e-6)
	}
}

func TestReprice_OverrideConservation(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	rep := e.Reprice(randomPipeline(rand.New(rand.NewSource(7)), 300), q4)
	for _, d := range rep.Deals {
		if d.Override {
			assert.Equal(t, 0.0, d.Delta, d.Key)
		}
	}
}

func TestReprice_Aggregates(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)

	swap := proposalDeal()
	override := proposalDeal()
	override.ID = "006O"
	override.CustomProbability = fp(0.70)
	override.AccountClass = model.AccountNewLogo
	override.Class = model.RevenueProject
	late := proposalDeal()
	late.ID = "006L"
	late.CloseDate = day(2026, 3, 1)
	zero := proposalDeal()
	zero.ID = "006Z"
	zero.WeightedACV = fp(0)

	rep := e.Reprice([]model.Opportunity{swap, override, late, zero}, q4)
	require.Len(t, rep.Deals, 4)
	assert.Equal(t, q4, rep.Window)

	assert.Equal(t, 2, rep.Total.Deals)
	assert.InDelta(t, 100000, rep.Total.CurrentWeighted, 1e-6)
	assert.InDelta(t, 105000, rep.Total.ProposedWeighted, 1e-6)
	assert.InDelta(t, 5000, rep.Total.Delta, 1e-6)
	assert.Equal(t, 1, rep.Total.Overrides)
	assert.InDelta(t, 50000, rep.Total.OverrideWeighted, 1e-6)
	assert.Equal(t, 2, rep.Excluded)
	assert.Equal(t, 1, rep.ZeroWeighted)

	require.Len(t, rep.ByAccountClass, 2)
	assert.Equal(t, "New Logo", rep.ByAccountClass[0].Group)
	assert.Equal(t, "Existing Client", rep.ByAccountClass[1].Group)
	assert.InDelta(t, 5000, rep.ByAccountClass[1].Delta, 1e-6)

	require.Len(t, rep.ByRevenueClass, 2)
	assert.Equal(t, "Recurring", rep.ByRevenueClass[0].Group)
	assert.Equal(t, "Project", rep.ByRevenueClass[1].Group)

	require.Len(t, rep.ByStage, 1)
	assert.Equal(t, "Proposal", rep.ByStage[0].Group)
	assert.Equal(t, 2, rep.ByStage[0].Deals)

	require.Len(t, rep.OverridesByClass, 1)
	assert.Equal(t, "New Logo", rep.OverridesByClass[0].Group)
	assert.Equal(t, 1, rep.OverridesByClass[0].Overrides)
}

func TestReprice_SeparateWindows(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	opps := []model.Opportunity{proposalDeal()}
	cal := model.Window{
		Name:  "Calendar Q4",
		Start: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	nov := model.Window{
		Name:  "November",
		Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, e.Reprice(opps, cal).Total.Deals)
	assert.Equal(t, 0, e.Reprice(opps, nov).Total.Deals)
}

func TestWriteBack(t *testing.T) {
	cur, prop := matrices()
	e := New(cur, prop, nil)
	swap := proposalDeal()
	override := proposalDeal()
	override.ID = "006O"
	override.CustomProbability = fp(0.7)
	proxied := proposalDeal()
	proxied.ID = "006R"
	proxied.WeightedACV = nil
	proxied.Revenue = 10000

	recs := WriteBack(e.Reprice([]model.Opportunity{swap, override, proxied}, q4))
	require.Len(t, recs, 2)
	assert.Equal(t, "006P", recs[0].Key)
	assert.Equal(t, model.RuleWeightedACV, recs[0].Rule)
	assert.Equal(t, "55000.00", recs[0].Fields["weighted_acv"])
	assert.Equal(t, "0.5500", recs[0].Fields["probability"])
	assert.Equal(t, model.ConfidenceHigh, recs[0].Confidence)
	assert.Equal(t, model.ConfidenceLow, recs[1].Confidence)
}

func TestNew_DefaultActiveStages(t *testing.T) {
	e := New(nil, nil, nil)
	assert.True(t, e.active.Contains(model.StageQualifying))
	assert.True(t, e.active.Contains(model.StageProposal))
	assert.False(t, e.active.Contains(model.StageNegotiation))
}
