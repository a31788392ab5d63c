// Package probability reprices the active pipeline under a proposed
// stage × account-class probability matrix.
package probability

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/model"
)

// Engine holds the two matrices and the active-stage set for a run.
type Engine struct {
	current  model.ProbabilityMatrix
	proposed model.ProbabilityMatrix
	active   model.StageSet
}

// New creates an Engine. An empty active set falls back to
// model.DefaultActiveStages.
func New(current, proposed model.ProbabilityMatrix, active model.StageSet) *Engine {
	if len(active) == 0 {
		active = model.StageSet(model.DefaultActiveStages)
	}
	return &Engine{current: current, proposed: proposed, active: active}
}

// ProbabilityUsed returns the probability a deal is currently weighted at:
// custom if > 0, else calculated if > 0, else the current matrix.
func (e *Engine) ProbabilityUsed(o *model.Opportunity) (float64, model.ProbabilitySource) {
	if o.CustomProbability != nil && *o.CustomProbability > 0 {
		return *o.CustomProbability, model.ProbCustom
	}
	if o.CalculatedProbability != nil && *o.CalculatedProbability > 0 {
		return *o.CalculatedProbability, model.ProbCalculated
	}
	if p, ok := e.current.Lookup(o.Stage, o.AccountClass); ok {
		return p, model.ProbMatrix
	}
	return 0, model.ProbNone
}

// Deal computes the reprice detail for one opportunity in window w.
// The second return reports whether the deal counts toward aggregates.
func (e *Engine) Deal(o *model.Opportunity, w model.Window) (model.DealResult, bool) {
	d := model.DealResult{
		Key:          o.NaturalKey(),
		Account:      o.AccountLabel,
		Name:         o.Name,
		Stage:        o.Stage,
		AccountClass: o.AccountClass,
		RevenueClass: o.Class,
		Override:     o.HasOverride(),
	}
	if o.WeightedACV != nil {
		d.StoredWeighted = *o.WeightedACV
	}

	if !o.InWindow(w.Start, w.End) || !e.active.Contains(o.Stage) {
		d.NewWeighted = d.StoredWeighted
		d.Reason = model.ReasonInactive
		return d, false
	}
	d.Active = true

	d.ProbabilityUsed, d.ProbSource = e.ProbabilityUsed(o)

	if o.WeightedACV != nil && *o.WeightedACV == 0 {
		d.Reason = model.ReasonZeroWeighted
		return d, false
	}
	if d.ProbabilityUsed == 0 {
		d.NewWeighted = d.StoredWeighted
		d.Reason = model.ReasonZeroProb
		return d, false
	}

	if o.WeightedACV == nil {
		d.ACV = o.Revenue
		d.ACVProxied = true
		d.StoredWeighted = o.Revenue * d.ProbabilityUsed
	} else {
		d.ACV = d.StoredWeighted / d.ProbabilityUsed
	}

	if d.Override {
		d.NewProbability = d.ProbabilityUsed
		d.NewWeighted = d.StoredWeighted
		d.Reason = model.ReasonOverride
		return d, true
	}

	p, ok := e.proposed.Lookup(o.Stage, o.AccountClass)
	if !ok {
		d.NewWeighted = d.StoredWeighted
		d.Reason = model.ReasonNoMatrix
		return d, false
	}
	d.NewProbability = p
	d.NewWeighted = d.ACV * p
	d.Delta = d.NewWeighted - d.StoredWeighted
	d.Reason = model.ReasonRepriced
	return d, true
}

// Reprice runs every opportunity through Deal and aggregates the deals that
// count. Deals keep input order.
func (e *Engine) Reprice(opps []model.Opportunity, w model.Window) *model.ProbabilityReport {
	rep := &model.ProbabilityReport{
		Window: w,
		Deals:  make([]model.DealResult, 0, len(opps)),
		Total:  model.Aggregate{Group: "Total"},
	}

	byClass := newGroups()
	byRevenue := newGroups()
	byStage := newGroups()
	overrides := newGroups()

	for i := range opps {
		d, counted := e.Deal(&opps[i], w)
		rep.Deals = append(rep.Deals, d)

		switch d.Reason {
		case model.ReasonZeroProb:
			rep.ZeroProb++
		case model.ReasonZeroWeighted:
			rep.ZeroWeighted++
		}
		if !counted {
			rep.Excluded++
			continue
		}

		accumulate(&rep.Total, d)
		accumulate(byClass.get(string(d.AccountClass)), d)
		accumulate(byRevenue.get(string(d.RevenueClass)), d)
		accumulate(byStage.get(d.Stage.String()), d)
		if d.Override {
			accumulate(overrides.get(string(d.AccountClass)), d)
		}
	}

	rep.ByAccountClass = byClass.ordered(accountClassOrder())
	rep.ByRevenueClass = byRevenue.ordered(revenueClassOrder)
	rep.ByStage = byStage.ordered(stageOrder())
	rep.OverridesByClass = overrides.ordered(accountClassOrder())

	zap.L().Info("probability: repriced window",
		zap.String("window", w.Name),
		zap.Int("deals", rep.Total.Deals),
		zap.Int("excluded", rep.Excluded),
		zap.Int("zero_prob", rep.ZeroProb),
		zap.Float64("current_weighted", rep.Total.CurrentWeighted),
		zap.Float64("proposed_weighted", rep.Total.ProposedWeighted),
		zap.Float64("delta", rep.Total.Delta),
	)
	return rep
}

// WriteBack returns weighted-acv updates for every repriced deal whose
// weighted value changed. Proxied values are LOW confidence.
func WriteBack(rep *model.ProbabilityReport) []model.ChangeRecord {
	var out []model.ChangeRecord
	for _, d := range rep.Deals {
		if d.Reason != model.ReasonRepriced || d.Delta == 0 {
			continue
		}
		conf := model.ConfidenceHigh
		if d.ACVProxied {
			conf = model.ConfidenceLow
		}
		out = append(out, model.ChangeRecord{
			Kind: model.ObjectOpportunity,
			Key:  d.Key,
			Op:   model.OpUpdate,
			Fields: map[string]string{
				"weighted_acv": changeset.FormatMoney(d.NewWeighted),
				"probability":  fmt.Sprintf("%.4f", d.NewProbability),
			},
			Rationale: fmt.Sprintf("%s / %s: probability %.2f (%s) -> %.2f",
				d.Stage, d.AccountClass, d.ProbabilityUsed, d.ProbSource, d.NewProbability),
			Account:    d.Account,
			Confidence: conf,
			Rule:       model.RuleWeightedACV,
		})
	}
	return out
}

func accumulate(a *model.Aggregate, d model.DealResult) {
	a.Deals++
	a.CurrentWeighted += d.StoredWeighted
	a.ProposedWeighted += d.NewWeighted
	a.Delta += d.Delta
	if d.Override {
		a.Overrides++
		a.OverrideWeighted += d.StoredWeighted
	}
}

type groups map[string]*model.Aggregate

func newGroups() groups { return make(groups) }

func (g groups) get(name string) *model.Aggregate {
	if name == "" {
		name = "Unclassified"
	}
	a, ok := g[name]
	if !ok {
		a = &model.Aggregate{Group: name}
		g[name] = a
	}
	return a
}

// ordered returns the groups in the declared order, followed by any
// undeclared groups sorted by name.
func (g groups) ordered(order []string) []model.Aggregate {
	out := make([]model.Aggregate, 0, len(g))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		seen[name] = true
		if a, ok := g[name]; ok {
			out = append(out, *a)
		}
	}
	var rest []string
	for name := range g {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, *g[name])
	}
	return out
}

var revenueClassOrder = []string{
	string(model.RevenueCommitment),
	string(model.RevenueRecurring),
	string(model.RevenueProject),
	string(model.RevenueOther),
}

func accountClassOrder() []string {
	out := make([]string, 0, len(model.AccountClasses))
	for _, c := range model.AccountClasses {
		out = append(out, string(c))
	}
	return out
}

func stageOrder() []string {
	out := make([]string, 0, len(model.AllStages))
	for _, s := range model.AllStages {
		out = append(out, s.String())
	}
	return out
}
