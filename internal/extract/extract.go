// Package extract pulls fiscal terms out of contract text. Every captured
// value carries the surrounding source quote that produced it.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// quoteWindow is the number of bytes of context kept on each side of a match.
const quoteWindow = 50

// Amount is an extracted monetary or numeric term.
type Amount struct {
	Value    float64        `json:"value"`
	Symbol   model.Currency `json:"symbol,omitempty"`
	Quote    string         `json:"quote,omitempty"`
	Found    bool           `json:"found"`
	Explicit bool           `json:"explicit,omitempty"`
}

// Ptr returns the value as a pointer, nil when not found.
func (a Amount) Ptr() *float64 {
	if !a.Found {
		return nil
	}
	v := a.Value
	return &v
}

// Date is an extracted date. Raw is kept when the text did not parse.
type Date struct {
	Date  *time.Time `json:"date,omitempty"`
	Raw   string     `json:"raw,omitempty"`
	Quote string     `json:"quote,omitempty"`
	Found bool       `json:"found"`
}

// Malformed reports a date phrase that was found but did not parse.
func (d Date) Malformed() bool {
	return d.Found && d.Date == nil
}

// Term is the contract duration in months.
type Term struct {
	Months  int    `json:"months"`
	Quote   string `json:"quote,omitempty"`
	Found   bool   `json:"found"`
	Derived bool   `json:"derived,omitempty"`
}

// Terms is the full set of fiscal terms found in one document.
type Terms struct {
	HourlyRate  Amount         `json:"hourly_rate"`
	WeeklyHours Amount         `json:"weekly_hours"`
	MonthlyFee  Amount         `json:"monthly_fee"`
	AnnualFee   Amount         `json:"annual_fee"`
	TotalValue  Amount         `json:"total_value"`
	DayRate     Amount         `json:"day_rate"`
	StartDate   Date           `json:"start_date"`
	EndDate     Date           `json:"end_date"`
	Term        Term           `json:"term"`
	Currency    model.Currency `json:"currency"`
}

// Quotes returns the non-empty source quotes keyed by field name.
func (t *Terms) Quotes() map[string]string {
	out := make(map[string]string)
	add := func(name, q string) {
		if q != "" {
			out[name] = q
		}
	}
	add("hourly_rate", t.HourlyRate.Quote)
	add("weekly_hours", t.WeeklyHours.Quote)
	add("monthly_fee", t.MonthlyFee.Quote)
	add("annual_fee", t.AnnualFee.Quote)
	add("total_value", t.TotalValue.Quote)
	add("day_rate", t.DayRate.Quote)
	add("start_date", t.StartDate.Quote)
	add("end_date", t.EndDate.Quote)
	add("term_months", t.Term.Quote)
	return out
}

// amountRule is one ordered pattern for a numeric field. The pattern's
// named groups are "num" (required), "sym" (optional currency token),
// and "k" (optional thousands multiplier).
type amountRule struct {
	re *regexp.Regexp
}

// fieldSpec binds a field's ordered patterns to its accepted range.
type fieldSpec struct {
	rules []amountRule
	min   float64
	max   float64
}

const (
	num = `(?P<num>\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(?P<k>\s?[kK]\b)?`
	sym = `(?P<sym>€|\$|eur|usd|euro?s?|dollars?)`
)

func rules(patterns ...string) []amountRule {
	out := make([]amountRule, len(patterns))
	for i, p := range patterns {
		out[i] = amountRule{re: regexp.MustCompile(`(?i)` + p)}
	}
	return out
}

var (
	hourlySpec = fieldSpec{
		rules: rules(
			sym+`\s?`+num+`\s*(?:per\s+hour|/\s*hr\b|/\s*hour|p/h\b|an\s+hour|per\s+hr\b)`,
			`hourly\s+rate\s+(?:of\s+|is\s+|:\s*)?`+sym+`?\s?`+num,
			num+`\s*`+sym+`\s*(?:per\s+hour|/\s*hr\b|/\s*hour)`,
			`rate\s+of\s+`+sym+`?\s?`+num+`\s*(?:per\s+hour|/\s*hr\b)`,
		),
		min: 30, max: 500,
	}
	weeklyHoursSpec = fieldSpec{
		rules: rules(
			num+`\s*(?:hours|hrs|hr)\s*(?:per|a|each|/)\s*(?:week|wk)\b`,
			`minimum\s+hours\s*(?:of\s*|:\s*)?`+num+`\s*(?:hours\s*|hrs\s*)?(?:per|a|/)\s*(?:week|wk)`,
			`(?:weekly\s+hours|hours\s+per\s+week)\s*(?:of\s*|:\s*)?`+num,
		),
		min: 5, max: 200,
	}
	monthlySpec = fieldSpec{
		rules: rules(
			sym+`\s?`+num+`\s*(?:per\s+month|/\s*month|/\s*mo\b|a\s+month|monthly|pcm\b)`,
			`monthly\s+(?:fee|retainer|charge)\s+(?:of\s+|is\s+|:\s*)?`+sym+`?\s?`+num,
			num+`\s*`+sym+`\s*(?:per\s+month|/\s*month|monthly)`,
		),
		min: 1000, max: math.Inf(1),
	}
	annualSpec = fieldSpec{
		rules: rules(
			sym+`\s?`+num+`\s*(?:per\s+annum|p\.a\.|per\s+year|annually|a\s+year|/\s*year)`,
			`annual\s+(?:fee|value|contract\s+value|charge)\s+(?:of\s+|is\s+|:\s*)?`+sym+`?\s?`+num,
			`\bACV\s*[:=-]?\s*`+sym+`?\s?`+num,
			num+`\s*`+sym+`\s*(?:per\s+annum|annually|per\s+year)`,
		),
		min: 10000, max: math.Inf(1),
	}
	totalSpec = fieldSpec{
		rules: rules(
			`not\s+(?:to\s+)?exceed\s+(?:the\s+sum\s+of\s+|a\s+total\s+of\s+)?`+sym+`?\s?`+num,
			`aggregate\s+maximum\s+(?:of\s+|amount\s+of\s+)?`+sym+`?\s?`+num,
			`\bTCV\s*[:=-]?\s*`+sym+`?\s?`+num,
			`\bNTE\s*[:=-]?\s*`+sym+`?\s?`+num,
			`total\s+(?:contract\s+)?value\s*(?:of\s+|is\s+|:\s*)?`+sym+`?\s?`+num,
			`\bcap\s+(?:of\s+)?`+sym+`\s?`+num,
		),
		min: 10000, max: math.Inf(1),
	}
	dayRateSpec = fieldSpec{
		rules: rules(
			sym+`\s?`+num+`\s*(?:per\s+day|/\s*day|a\s+day|per\s+diem)`,
			`(?:daily|day)\s+rate\s+(?:of\s+|is\s+|:\s*)?`+sym+`?\s?`+num,
			num+`\s*`+sym+`\s*(?:per\s+day|/\s*day)`,
		),
		min: 100, max: 5000,
	}
)

const datePhrase = `(?P<date>\d{1,2}(?:st|nd|rd|th)?(?:\s+of)?\s+[A-Za-z]+,?\s+\d{4}|[A-Za-z]+\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})`

var (
	startDateRules = dateRules(
		`effective\s+(?:from|as\s+of|on)\s+`,
		`with\s+effect\s+from\s+`,
		`commencement\s+date\s*(?:is|of|shall\s+be|:)?\s*`,
		`commenc(?:e|es|ing)\s+on\s+`,
		`start\s+date\s*(?:is|of|:)?\s*`,
		`\bfrom\s+(?:the\s+)?`,
	)
	endDateRules = dateRules(
		`shall\s+expire\s+on\s+`,
		`expir(?:es|y\s+date|ation\s+date)\s*(?:on|is|of|:)?\s*`,
		`\buntil\s+`,
		`ending\s+on\s+`,
		`terminates?\s+on\s+`,
		`end\s+date\s*(?:is|of|:)?\s*`,
	)
)

func dateRules(prefixes ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(prefixes))
	for i, p := range prefixes {
		out[i] = regexp.MustCompile(`(?i)` + p + datePhrase)
	}
	return out
}

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"eighteen": 18, "twenty-four": 24, "thirty-six": 36,
}

const countWord = `(?P<n>\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|eighteen|twenty-four|thirty-six)`

var (
	termMonthRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)term\s+of\s+(?:[a-z-]+\s+)?\(?` + countWord + `\)?\s*(?:calendar\s+)?months?`),
		regexp.MustCompile(`(?i)` + countWord + `[-\s]month\s+(?:initial\s+)?term`),
		regexp.MustCompile(`(?i)period\s+of\s+(?:[a-z-]+\s+)?\(?` + countWord + `\)?\s*months?`),
	}
	termYearRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)term\s+of\s+(?:[a-z-]+\s+)?\(?` + countWord + `\)?\s*years?`),
		regexp.MustCompile(`(?i)` + countWord + `[-\s]year\s+(?:initial\s+)?term`),
		regexp.MustCompile(`(?i)period\s+of\s+(?:[a-z-]+\s+)?\(?` + countWord + `\)?\s*years?`),
	}
)

// Extract scans contract text for every fiscal term. It never fails: a
// field with no matching pattern is left unfound.
func Extract(text string) Terms {
	t := Terms{
		HourlyRate:  scanAmount(text, hourlySpec),
		WeeklyHours: scanAmount(text, weeklyHoursSpec),
		MonthlyFee:  scanAmount(text, monthlySpec),
		AnnualFee:   scanAmount(text, annualSpec),
		TotalValue:  scanAmount(text, totalSpec),
		DayRate:     scanAmount(text, dayRateSpec),
		StartDate:   scanDate(text, startDateRules),
		EndDate:     scanDate(text, endDateRules),
		Term:        scanTerm(text),
		Currency:    normalize.DetectCurrency(text),
	}

	if !t.Term.Found && t.StartDate.Date != nil && t.EndDate.Date != nil {
		days := t.EndDate.Date.Sub(*t.StartDate.Date).Hours() / 24
		t.Term = Term{
			Months:  max(1, int(math.Round(days/30))),
			Found:   true,
			Derived: true,
		}
	}
	return t
}

// FromDocument extracts terms from a loaded document. A read failure or a
// document with no text layer yields model.ErrUnreadablePDF.
func FromDocument(text string, readErr error) (Terms, error) {
	if readErr != nil {
		return Terms{}, eris.Wrapf(model.ErrUnreadablePDF, "extract: %s", readErr.Error())
	}
	if strings.TrimSpace(text) == "" {
		return Terms{}, eris.Wrap(model.ErrUnreadablePDF, "extract: no text layer")
	}
	return Extract(text), nil
}

func scanAmount(text string, spec fieldSpec) Amount {
	for _, r := range spec.rules {
		numIdx := r.re.SubexpIndex("num")
		symIdx := r.re.SubexpIndex("sym")
		kIdx := r.re.SubexpIndex("k")
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			raw := group(text, m, numIdx)
			v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil {
				continue
			}
			if kIdx >= 0 && group(text, m, kIdx) != "" {
				v *= 1000
			}
			if v < spec.min || v > spec.max {
				continue
			}
			a := Amount{
				Value: v,
				Quote: quote(text, m[0], m[1]),
				Found: true,
			}
			if symIdx >= 0 {
				a.Symbol = symbolCurrency(group(text, m, symIdx))
			}
			a.Explicit = a.Symbol != ""
			return a
		}
	}
	return Amount{}
}

func scanDate(text string, rs []*regexp.Regexp) Date {
	for _, re := range rs {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		raw := group(text, m, re.SubexpIndex("date"))
		return Date{
			Date:  normalize.ParseDate(raw),
			Raw:   raw,
			Quote: quote(text, m[0], m[1]),
			Found: true,
		}
	}
	return Date{}
}

func scanTerm(text string) Term {
	try := func(rs []*regexp.Regexp, mul int) (Term, bool) {
		for _, re := range rs {
			m := re.FindStringSubmatchIndex(text)
			if m == nil {
				continue
			}
			n := countValue(group(text, m, re.SubexpIndex("n")))
			if n <= 0 {
				continue
			}
			return Term{Months: n * mul, Quote: quote(text, m[0], m[1]), Found: true}, true
		}
		return Term{}, false
	}
	if t, ok := try(termMonthRules, 1); ok {
		return t
	}
	if t, ok := try(termYearRules, 12); ok {
		return t
	}
	return Term{}
}

func countValue(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return wordNumbers[s]
}

func group(text string, m []int, idx int) string {
	if idx < 0 || 2*idx+1 >= len(m) || m[2*idx] < 0 {
		return ""
	}
	return text[m[2*idx]:m[2*idx+1]]
}

func symbolCurrency(s string) model.Currency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "€", "eur", "euro", "euros", "eurs":
		return model.EUR
	case "$", "usd", "dollar", "dollars":
		return model.USD
	default:
		return ""
	}
}

// quote returns the match plus up to quoteWindow bytes of context on each
// side, snapped to rune boundaries, with whitespace collapsed.
func quote(text string, start, end int) string {
	lo := max(0, start-quoteWindow)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := min(len(text), end+quoteWindow)
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}
