package acv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/extract"
	"github.com/sells-group/recon-cli/internal/model"
)

func amt(v float64) extract.Amount {
	return extract.Amount{Value: v, Found: true}
}

func TestCalculate_EURHourlyFullData(t *testing.T) {
	terms := extract.Terms{
		HourlyRate:  amt(80),
		WeeklyHours: amt(125),
		Term:        extract.Term{Months: 24, Found: true},
		Currency:    model.EUR,
	}
	res := Calculate(terms, 1.18)
	require.NotNil(t, res.ACV)
	assert.InDelta(t, 613600.00, *res.ACV, 1e-6)
	assert.Equal(t, "hourly × hours × 52 → USD", res.Method)
	assert.Equal(t, RuleHourlyHours, res.Rule)
	assert.Equal(t, model.ConfidenceHigh, res.Confidence)
}

func TestCalculate_AnnualFeeConversion(t *testing.T) {
	terms := extract.Terms{AnnualFee: amt(100000), Currency: model.EUR}
	res := Calculate(terms, 1.18)
	require.NotNil(t, res.ACV)
	assert.InDelta(t, 118000.00, *res.ACV, 1e-6)
	assert.Equal(t, "annual_fee → USD", res.Method)
}

func TestCalculate_USDNoSuffix(t *testing.T) {
	res := Calculate(extract.Terms{MonthlyFee: amt(10000), Currency: model.USD}, 1.18)
	require.NotNil(t, res.ACV)
	assert.InDelta(t, 120000, *res.ACV, 1e-6)
	assert.Equal(t, "monthly_fee × 12", res.Method)
}

func TestCalculate_Ladder(t *testing.T) {
	term12 := extract.Term{Months: 12, Found: true}
	tests := []struct {
		name   string
		terms  extract.Terms
		rule   int
		acv    float64
		method string
		conf   model.Confidence
	}{
		{"annual beats monthly", extract.Terms{AnnualFee: amt(50000), MonthlyFee: amt(9000)}, RuleAnnualFee, 50000, "annual_fee", model.ConfidenceHigh},
		{"monthly beats hourly", extract.Terms{MonthlyFee: amt(2000), HourlyRate: amt(100), WeeklyHours: amt(10)}, RuleMonthlyFee, 24000, "monthly_fee × 12", model.ConfidenceHigh},
		{"total over term", extract.Terms{TotalValue: amt(240000), Term: extract.Term{Months: 24, Found: true}}, RuleTotalTerm, 120000, "total ÷ term × 12", model.ConfidenceHigh},
		{"total with derived term", extract.Terms{TotalValue: amt(120000), Term: extract.Term{Months: 12, Found: true, Derived: true}}, RuleTotalTerm, 120000, "total ÷ term × 12", model.ConfidenceMedium},
		{"hourly beats total when hours known", extract.Terms{HourlyRate: amt(100), WeeklyHours: amt(10), TotalValue: amt(999999), Term: term12}, RuleHourlyHours, 52000, "hourly × hours × 52", model.ConfidenceHigh},
		{"hourly alone", extract.Terms{HourlyRate: amt(100)}, RuleHourlyFT, 208000, "hourly × 40 × 52 (assumed FT)", model.ConfidenceMedium},
		{"total without term falls to hourly", extract.Terms{HourlyRate: amt(50), TotalValue: amt(100000)}, RuleHourlyFT, 104000, "hourly × 40 × 52 (assumed FT)", model.ConfidenceMedium},
		{"day alone", extract.Terms{DayRate: amt(600)}, RuleDayFT, 156000, "day × 5 × 52 (assumed FT)", model.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.terms.Currency = model.USD
			res := Calculate(tt.terms, 1.18)
			require.NotNil(t, res.ACV)
			assert.Equal(t, tt.rule, res.Rule)
			assert.InDelta(t, tt.acv, *res.ACV, 1e-6)
			assert.Equal(t, tt.method, res.Method)
			assert.Equal(t, tt.conf, res.Confidence)
		})
	}
}

func TestCalculate_NoEvidence(t *testing.T) {
	res := Calculate(extract.Terms{WeeklyHours: amt(40), Currency: model.EUR}, 1.18)
	assert.Nil(t, res.ACV)
	assert.True(t, res.NeedsReview())
	assert.Equal(t, RuleNone, res.Rule)
	assert.Empty(t, res.Method)
}

func TestCalculate_ZeroTermSkipsRuleFour(t *testing.T) {
	res := Calculate(extract.Terms{TotalValue: amt(100000), Term: extract.Term{Months: 0, Found: true}}, 1.18)
	assert.Nil(t, res.ACV)
}

func TestCalculate_DefaultRate(t *testing.T) {
	res := Calculate(extract.Terms{AnnualFee: amt(10000), Currency: model.EUR}, 0)
	require.NotNil(t, res.ACV)
	assert.InDelta(t, 11800, *res.ACV, 1e-6)
}

func TestCalculate_CurrencyInvariance(t *testing.T) {
	const rate = 1.18
	cases := []extract.Terms{
		{AnnualFee: amt(100000)},
		{MonthlyFee: amt(12500)},
		{HourlyRate: amt(80), WeeklyHours: amt(125)},
		{TotalValue: amt(300000), Term: extract.Term{Months: 18, Found: true}},
		{HourlyRate: amt(95)},
		{DayRate: amt(650)},
	}
	scale := func(a extract.Amount) extract.Amount {
		if a.Found {
			a.Value /= rate
		}
		return a
	}
	for _, usd := range cases {
		usd.Currency = model.USD
		eur := usd
		eur.Currency = model.EUR
		eur.AnnualFee = scale(eur.AnnualFee)
		eur.MonthlyFee = scale(eur.MonthlyFee)
		eur.TotalValue = scale(eur.TotalValue)
		eur.DayRate = scale(eur.DayRate)
		eur.HourlyRate = scale(eur.HourlyRate)

		a := Calculate(usd, rate)
		b := Calculate(eur, rate)
		require.NotNil(t, a.ACV)
		require.NotNil(t, b.ACV)
		assert.InDelta(t, *a.ACV, *b.ACV, 1e-6)
		assert.Equal(t, a.Rule, b.Rule)
	}
}

func TestCalculate_LadderStrictness(t *testing.T) {
	all := []extract.Amount{{}, amt(20000)}
	for _, annual := range all {
		for _, monthly := range all {
			for _, hourly := range []extract.Amount{{}, amt(90)} {
				for _, hours := range []extract.Amount{{}, amt(30)} {
					for _, day := range []extract.Amount{{}, amt(500)} {
						terms := extract.Terms{
							AnnualFee: annual, MonthlyFee: monthly, HourlyRate: hourly,
							WeeklyHours: hours, DayRate: day, Currency: model.USD,
						}
						res := Calculate(terms, 1.18)
						applicable := Applicable(terms)
						if len(applicable) == 0 {
							assert.Equal(t, RuleNone, res.Rule)
							continue
						}
						assert.Equal(t, applicable[0], res.Rule)
					}
				}
			}
		}
	}
}
