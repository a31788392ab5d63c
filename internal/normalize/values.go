package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/recon-cli/internal/model"
)

// ParseMoney accepts a number or a string such as "$1,200.50", "(300)",
// or "12%" and returns its value. Parentheses mean negative.
func ParseMoney(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, eris.Wrap(model.ErrBadMoney, "normalize: empty value")
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case string:
		return parseMoneyString(x)
	default:
		return 0, eris.Wrapf(model.ErrBadMoney, "normalize: unsupported type %T", v)
	}
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Wrapf(model.ErrBadMoney, "normalize: non-finite %v", f)
	}
	return f, nil
}

var moneyStripper = strings.NewReplacer("$", "", "€", "", ",", "", " ", "", "\t", "", " ", "")

func parseMoneyString(raw string) (float64, error) {
	s := moneyStripper.Replace(strings.TrimSpace(raw))
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "-" {
		return 0, eris.Wrapf(model.ErrBadMoney, "normalize: %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, eris.Wrapf(model.ErrBadMoney, "normalize: %q", raw)
	}
	if neg {
		d = d.Neg()
	}
	return d.InexactFloat64(), nil
}

// ParseProbability accepts a number or string; values above 1 are read as
// percentages. The result is clamped to [0,1].
func ParseProbability(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, eris.New("normalize: empty probability")
		}
		v = s
	}
	p, err := ParseMoney(v)
	if err != nil {
		return 0, eris.Wrap(err, "normalize: probability")
	}
	if p > 1 {
		p /= 100
	}
	return math.Max(0, math.Min(1, p)), nil
}

var (
	ordinalRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	ofRe       = regexp.MustCompile(`(?i)\b(\d{1,2})\s+of\s+`)
	septRe     = regexp.MustCompile(`(?i)\bsept\b`)
	serialRe   = regexp.MustCompile(`^\d{5}(\.\d+)?$`)
	excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

// dateLayouts are tried in order: ISO, M/D/Y, D/M/Y, "D Month Y", "Month D, Y".
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"2/1/2006",
	"2/1/06",
	"2.1.2006",
	"2-1-2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"January 2006",
}

// ParseDate accepts a time.Time, an Excel serial number, or a string and
// returns the calendar date in UTC, or nil when nothing parses.
func ParseDate(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		d := time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	case *time.Time:
		if x == nil {
			return nil
		}
		return ParseDate(*x)
	case float64:
		return fromSerial(x)
	case int:
		return fromSerial(float64(x))
	case string:
		return parseDateString(x)
	default:
		return nil
	}
}

func fromSerial(f float64) *time.Time {
	if f < 20000 || f > 80000 {
		return nil
	}
	d := excelEpoch.AddDate(0, 0, int(f))
	return &d
}

func parseDateString(raw string) *time.Time {
	s := collapse(raw)
	if s == "" {
		return nil
	}
	if serialRe.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return fromSerial(f)
		}
	}
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = ofRe.ReplaceAllString(s, "$1 ")
	s = septRe.ReplaceAllString(s, "Sep")
	s = strings.TrimRight(s, ".,;")
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}

// stageAliases maps a normalized label (stage prefix and number removed)
// to its stage.
var stageAliases = map[string]model.Stage{
	"qualifying":                  model.StageQualifying,
	"qualification":               model.StageQualifying,
	"qualify":                     model.StageQualifying,
	"prospecting":                 model.StageQualifying,
	"discovery":                   model.StageDiscovery,
	"discover":                    model.StageDiscovery,
	"needs analysis":              model.StageDiscovery,
	"sqo":                         model.StageSQO,
	"sales qualified opportunity": model.StageSQO,
	"sales qualified":             model.StageSQO,
	"pilot":                       model.StagePilot,
	"poc":                         model.StagePilot,
	"proof of concept":            model.StagePilot,
	"proposal":                    model.StageProposal,
	"proposal price quote":        model.StageProposal,
	"quote":                       model.StageProposal,
	"negotiation":                 model.StageNegotiation,
	"negotiation review":          model.StageNegotiation,
	"negotiating":                 model.StageNegotiation,
	"contracting":                 model.StageNegotiation,
	"closed won":                  model.StageClosedWon,
	"won":                         model.StageClosedWon,
	"closed lost":                 model.StageClosedLost,
	"lost":                        model.StageClosedLost,
}

var stageWordRe = regexp.MustCompile(`[^a-z0-9]+`)

// Stage maps labels such as "Stage 4 - Proposal", "4. Proposal",
// "Proposal/Price Quote", or "4" to a Stage. Unknown labels return false.
func Stage(label string) (model.Stage, bool) {
	s := strings.TrimSpace(stageWordRe.ReplaceAllString(strings.ToLower(label), " "))
	s = strings.TrimSpace(strings.TrimPrefix(s, "stage"))
	if s == "" {
		return 0, false
	}

	num := -1
	fields := strings.Fields(s)
	if n, err := strconv.Atoi(fields[0]); err == nil {
		num = n
		s = strings.Join(fields[1:], " ")
	}

	if s != "" {
		if st, ok := stageAliases[s]; ok {
			return st, true
		}
		// Fall back to the first word, e.g. "pilot engagement".
		if st, ok := stageAliases[strings.Fields(s)[0]]; ok {
			return st, true
		}
		if num < 0 {
			return 0, false
		}
	}
	if num >= int(model.StageQualifying) && num <= int(model.StageNegotiation) {
		return model.Stage(num), true
	}
	return 0, false
}

var accountClassAliases = map[string]model.AccountClass{
	"new logo":          model.AccountNewLogo,
	"new":               model.AccountNewLogo,
	"new business":      model.AccountNewLogo,
	"existing client":   model.AccountExistingClient,
	"existing":          model.AccountExistingClient,
	"existing customer": model.AccountExistingClient,
	"existing business": model.AccountExistingClient,
	"loi":               model.AccountLOI,
	"letter of intent":  model.AccountLOI,
	"government":        model.AccountGovernment,
	"gov":               model.AccountGovernment,
	"govt":              model.AccountGovernment,
	"public sector":     model.AccountGovernment,
}

// AccountClass maps a free-text account classification to its enum.
func AccountClass(label string) (model.AccountClass, bool) {
	s := strings.TrimSpace(stageWordRe.ReplaceAllString(strings.ToLower(label), " "))
	c, ok := accountClassAliases[s]
	return c, ok
}

// RevenueType maps an explicit revenue-type field to its tag; anything
// outside {Commitment, Recurring, Project} yields RevenueTypeNone.
func RevenueType(label string) model.RevenueType {
	switch strings.TrimSpace(stageWordRe.ReplaceAllString(strings.ToLower(label), " ")) {
	case "commitment", "commitment loi", "loi":
		return model.RevenueTypeCommitment
	case "recurring":
		return model.RevenueTypeRecurring
	case "project":
		return model.RevenueTypeProject
	default:
		return model.RevenueTypeNone
	}
}

var (
	eurIndicatorRe = regexp.MustCompile(`(?i)€|\beur\b|\beuros?\b`)
	usdIndicatorRe = regexp.MustCompile(`(?i)\$|\busd\b|\bdollars?\b`)
)

// DetectCurrency counts EUR against USD indicators in text. Ties, including
// documents with no indicators at all, resolve to EUR.
func DetectCurrency(text string) model.Currency {
	eur := len(eurIndicatorRe.FindAllStringIndex(text, -1))
	usd := len(usdIndicatorRe.FindAllStringIndex(text, -1))
	if usd > eur {
		return model.USD
	}
	return model.EUR
}
