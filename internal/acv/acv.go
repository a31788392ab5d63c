// Package acv computes annual contract value from extracted terms using a
// fixed evidence ladder.
package acv

import (
	"github.com/sells-group/recon-cli/internal/extract"
	"github.com/sells-group/recon-cli/internal/model"
)

// DefaultEURUSD is the fallback EUR to USD conversion rate.
const DefaultEURUSD = 1.18

// Ladder rule numbers; lower means stronger evidence.
const (
	RuleNone        = 0
	RuleAnnualFee   = 1
	RuleMonthlyFee  = 2
	RuleHourlyHours = 3
	RuleTotalTerm   = 4
	RuleHourlyFT    = 5
	RuleDayFT       = 6
)

var methods = map[int]string{
	RuleAnnualFee:   "annual_fee",
	RuleMonthlyFee:  "monthly_fee × 12",
	RuleHourlyHours: "hourly × hours × 52",
	RuleTotalTerm:   "total ÷ term × 12",
	RuleHourlyFT:    "hourly × 40 × 52 (assumed FT)",
	RuleDayFT:       "day × 5 × 52 (assumed FT)",
}

const (
	weeksPerYear   = 52
	fullTimeHours  = 40
	workDaysOfWeek = 5
	convSuffix     = " → USD"
)

// Result is the outcome of the ladder for one contract.
type Result struct {
	ACV        *float64         `json:"acv,omitempty"`
	Rule       int              `json:"rule"`
	Method     string           `json:"method,omitempty"`
	Confidence model.Confidence `json:"confidence,omitempty"`
}

// NeedsReview reports whether no ladder rule applied.
func (r Result) NeedsReview() bool {
	return r.ACV == nil
}

// Calculate applies the first ladder rule whose inputs are all present and
// converts EUR to USD at eurUSD. A non-positive eurUSD uses DefaultEURUSD.
func Calculate(t extract.Terms, eurUSD float64) Result {
	if eurUSD <= 0 {
		eurUSD = DefaultEURUSD
	}

	rule, value := applyLadder(t)
	if rule == RuleNone {
		return Result{}
	}

	res := Result{
		Rule:       rule,
		Method:     methods[rule],
		Confidence: confidenceFor(rule, t),
	}
	if t.Currency == model.EUR {
		value *= eurUSD
		res.Method += convSuffix
	}
	res.ACV = &value
	return res
}

// Applicable returns the ladder rules whose inputs are present, in order.
func Applicable(t extract.Terms) []int {
	var out []int
	if t.AnnualFee.Found {
		out = append(out, RuleAnnualFee)
	}
	if t.MonthlyFee.Found {
		out = append(out, RuleMonthlyFee)
	}
	if t.HourlyRate.Found && t.WeeklyHours.Found {
		out = append(out, RuleHourlyHours)
	}
	if t.TotalValue.Found && t.Term.Found && t.Term.Months > 0 {
		out = append(out, RuleTotalTerm)
	}
	if t.HourlyRate.Found {
		out = append(out, RuleHourlyFT)
	}
	if t.DayRate.Found {
		out = append(out, RuleDayFT)
	}
	return out
}

func applyLadder(t extract.Terms) (int, float64) {
	rules := Applicable(t)
	if len(rules) == 0 {
		return RuleNone, 0
	}
	switch rules[0] {
	case RuleAnnualFee:
		return RuleAnnualFee, t.AnnualFee.Value
	case RuleMonthlyFee:
		return RuleMonthlyFee, t.MonthlyFee.Value * 12
	case RuleHourlyHours:
		return RuleHourlyHours, t.HourlyRate.Value * t.WeeklyHours.Value * weeksPerYear
	case RuleTotalTerm:
		return RuleTotalTerm, t.TotalValue.Value * (12 / float64(t.Term.Months))
	case RuleHourlyFT:
		return RuleHourlyFT, t.HourlyRate.Value * fullTimeHours * weeksPerYear
	default:
		return RuleDayFT, t.DayRate.Value * workDaysOfWeek * weeksPerYear
	}
}

// confidenceFor is HIGH when every input was read directly from the text,
// MEDIUM when the ladder assumed a full-time load or the term was derived
// from dates.
func confidenceFor(rule int, t extract.Terms) model.Confidence {
	switch {
	case rule > RuleTotalTerm:
		return model.ConfidenceMedium
	case rule == RuleTotalTerm && t.Term.Derived:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceHigh
	}
}
