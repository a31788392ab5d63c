// Package reconcile compares the finance run-rate benchmark against
// signed contracts and CRM opportunities per account.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// Coverage thresholds against the annualized run-rate benchmark.
const (
	AlignedMin = 0.80
	PartialMin = 0.40
	OverAbove  = 1.10
)

const monthsInYear = 12

// Input is one snapshot of the three revenue sources. Opportunities must
// already be classified.
type Input struct {
	RunRate       []model.RunRateRow
	Opportunities []model.Opportunity
	Contracts     []model.Contract
}

// Period bounds the opportunities counted toward an account. A zero bound
// is open.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls in the period. A nil date is only
// accepted by a fully open period.
func (p Period) Contains(d *time.Time) bool {
	if p.Start.IsZero() && p.End.IsZero() {
		return true
	}
	if d == nil {
		return false
	}
	if !p.Start.IsZero() && d.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && d.After(p.End) {
		return false
	}
	return true
}

// Reconciler resolves names across sources and builds the report.
type Reconciler struct {
	matcher *match.Matcher
	period  Period
}

// New creates a Reconciler.
func New(m *match.Matcher, period Period) *Reconciler {
	return &Reconciler{matcher: m, period: period}
}

// Result is the report plus the change records the reconciliation rules
// produced, in emission order.
type Result struct {
	Report  *model.ReconciliationReport
	Changes []model.ChangeRecord
}

type account struct {
	key      string
	name     string
	benchmk  float64
	presence model.SourcePresence
	note     string
	fuzzy    bool

	contracts []int
	opps      []int
}

type run struct {
	r        *Reconciler
	in       Input
	accounts map[string]*account
	order    []string

	// labels and owners are the matcher candidates and the account key
	// each candidate resolves to.
	labels []string
	owners []string

	report  *model.ReconciliationReport
	changes []model.ChangeRecord
}

// Reconcile runs the account reconciliation over in. It never fails; every
// finding is recorded as an issue or a change record.
func (r *Reconciler) Reconcile(in Input) *Result {
	in.Opportunities = append([]model.Opportunity(nil), in.Opportunities...)
	ru := &run{
		r:        r,
		in:       in,
		accounts: make(map[string]*account),
		report:   &model.ReconciliationReport{},
	}

	ru.addRunRate()
	ru.resolveOpportunities()
	ru.resolveContracts()
	ru.buildRows()

	sortIssues(ru.report.Issues)
	zap.L().Info("reconcile: complete",
		zap.Int("accounts", len(ru.report.Rows)),
		zap.Int("contracts", ru.report.ContractsReviewed),
		zap.Int("orphan_contracts", ru.report.OrphanContracts),
		zap.Int("unmatched_run_rate", ru.report.UnmatchedRunRate),
		zap.Int("extraction_errors", ru.report.ExtractionErrors),
		zap.Int("changes", len(ru.changes)),
	)
	return &Result{Report: ru.report, Changes: ru.changes}
}

func (ru *run) ensure(key, name string) *account {
	if a, ok := ru.accounts[key]; ok {
		return a
	}
	a := &account{key: key, name: name}
	ru.accounts[key] = a
	ru.order = append(ru.order, key)
	return a
}

func (ru *run) addCandidate(label, key string) {
	ru.labels = append(ru.labels, label)
	ru.owners = append(ru.owners, key)
}

func (ru *run) addRunRate() {
	for _, row := range ru.in.RunRate {
		key := row.AccountKey
		if key == "" {
			key = normalize.AccountName(row.AccountLabel)
		}
		if key == "" {
			continue
		}
		a := ru.ensure(key, row.AccountLabel)
		a.presence.RunRate = true
		a.benchmk += row.MonthlyUSD * monthsInYear
		ru.addCandidate(row.AccountLabel, key)
	}
}

// resolveOpportunities maps every distinct CRM account label to a run-rate
// account, or creates a CRM-only account.
func (ru *run) resolveOpportunities() {
	rrCands := match.NewCandidates(ru.labels)
	rrOwners := append([]string(nil), ru.owners...)
	resolved := make(map[string]string)

	for i := range ru.in.Opportunities {
		o := &ru.in.Opportunities[i]
		label := o.AccountLabel
		key, ok := resolved[label]
		if !ok {
			key = ru.resolveCRMLabel(label, rrCands, rrOwners)
			resolved[label] = key
		}
		if key == "" {
			continue
		}
		o.AccountKey = key
		a := ru.accounts[key]
		a.presence.CRM = true
		a.opps = append(a.opps, i)
	}
}

func (ru *run) resolveCRMLabel(label string, cands *match.Candidates, owners []string) string {
	res := ru.r.matcher.Match(label, cands)
	if res.Found() {
		key := owners[res.Index]
		a := ru.accounts[key]
		if res.Rule != match.RuleExact {
			a.fuzzy = true
			a.note = appendNote(a.note, fmt.Sprintf("CRM %q via %s", label, res.Rule))
		}
		if res.Ambiguous {
			ru.ambiguous("CRM account "+label, res)
		}
		ru.addCandidate(label, key)
		return key
	}

	key := normalize.AccountName(label)
	if key == "" {
		return ""
	}
	ru.ensure(key, label)
	ru.addCandidate(label, key)
	return key
}

// resolveContracts maps contract folder labels to accounts using every
// known account label as a candidate.
func (ru *run) resolveContracts() {
	cands := match.NewCandidates(ru.labels)
	type folder struct {
		key string
		res match.Result
	}
	folders := make(map[string]folder)

	ru.report.Contracts = make([]model.Contract, len(ru.in.Contracts))
	copy(ru.report.Contracts, ru.in.Contracts)
	ru.report.ContractsReviewed = len(ru.in.Contracts)

	for i := range ru.report.Contracts {
		c := &ru.report.Contracts[i]
		f, ok := folders[c.AccountLabel]
		if !ok {
			res := ru.r.matcher.Match(c.AccountLabel, cands)
			f = folder{res: res}
			if res.Found() {
				f.key = ru.owners[res.Index]
				if res.Ambiguous {
					ru.ambiguous("contract folder "+c.AccountLabel, res)
				}
			}
			folders[c.AccountLabel] = f
		}

		nameKey := normalize.ContractName(c.FileLabel)
		if f.key == "" {
			c.AccountKey = ""
			c.Key = normalize.AccountName(c.AccountLabel) + "/" + nameKey
			c.Status = model.ContractOrphan
			c.MatchNote = "no account match"
			ru.report.OrphanContracts++
			ru.issue(model.IssueOrphanContract, c.AccountLabel+"/"+c.FileLabel,
				"contract folder does not resolve to any run-rate or CRM account")
			zap.L().Debug("reconcile: orphan contract",
				zap.String("folder", c.AccountLabel),
				zap.String("file", c.FileLabel),
			)
			continue
		}

		c.AccountKey = f.key
		c.Key = f.key + "/" + nameKey
		if f.res.Rule != match.RuleExact {
			c.MatchNote = fmt.Sprintf("%s (%.2f) -> %s", f.res.Rule, f.res.Score, f.res.Candidate)
		}
		if f.res.Ambiguous {
			c.MatchNote = appendNote(c.MatchNote, "ambiguous: "+strings.Join(f.res.Alternatives, ", "))
		}
		a := ru.accounts[f.key]
		a.presence.Contracts = true
		a.contracts = append(a.contracts, i)
	}
}

func (ru *run) buildRows() {
	sort.Strings(ru.order)
	for _, key := range ru.order {
		a := ru.accounts[key]
		row := model.ReconciliationRow{
			AccountKey:  a.key,
			AccountName: a.name,
			Benchmark:   a.benchmk,
			Presence:    a.presence,
			MatchNote:   a.note,
		}

		for _, ci := range a.contracts {
			c := &ru.report.Contracts[ci]
			row.ContractCount++
			ru.contractChanges(a, c)
			if c.ACVUSD != nil && c.Status == model.ContractOK {
				row.ContractSum += *c.ACVUSD
			}
		}

		var unclassified []*model.Opportunity
		for _, oi := range a.opps {
			o := &ru.in.Opportunities[oi]
			if !ru.r.period.Contains(o.CloseDate) {
				continue
			}
			row.OppCount++
			row.OppSum += o.Revenue
			if o.Class == "" || o.Class == model.RevenueOther {
				row.Unclassified++
				unclassified = append(unclassified, o)
			}
		}
		for _, o := range unclassified {
			ru.changes = append(ru.changes, model.ChangeRecord{
				Kind:       model.ObjectOpportunity,
				Key:        o.NaturalKey(),
				Op:         model.OpTag,
				Fields:     map[string]string{"tag": string(model.RuleNeedsClassification)},
				Rationale:  fmt.Sprintf("no revenue type and no classifying keyword in %q", o.Name),
				Account:    a.name,
				Confidence: model.ConfidenceHigh,
				Rule:       model.RuleNeedsClassification,
			})
		}

		row.Gap = row.Benchmark - row.ContractSum
		row.Coverage, row.Status = Coverage(row.Benchmark, row.ContractSum)

		if a.presence.RunRate && !a.presence.CRM {
			ru.report.UnmatchedRunRate++
			ru.changes = append(ru.changes, model.ChangeRecord{
				Kind: model.ObjectAccount,
				Key:  a.key,
				Op:   model.OpInsert,
				Fields: map[string]string{
					"name":                a.name,
					"annualized_run_rate": changeset.FormatMoney(row.Benchmark),
				},
				Rationale:  fmt.Sprintf("account billed in run rate (%s) but absent from CRM", a.presence),
				Account:    a.name,
				Confidence: model.ConfidenceHigh,
				Rule:       model.RuleMissingAccount,
			})
		}

		if row.Status == model.StatusAligned && a.presence.RunRate && a.presence.CRM && a.presence.Contracts {
			ru.changes = append(ru.changes, model.ChangeRecord{
				Kind:       model.ObjectAccount,
				Key:        a.key,
				Op:         model.OpNoop,
				Rationale:  fmt.Sprintf("contract coverage %.1f%% of run rate", row.Coverage*100),
				Account:    a.name,
				Confidence: confidenceFor(a.fuzzy),
				Rule:       model.RuleAligned,
			})
		}

		ru.report.Rows = append(ru.report.Rows, row)
	}

	for i := range ru.report.Contracts {
		c := &ru.report.Contracts[i]
		if c.Status == model.ContractError {
			ru.report.ExtractionErrors++
			ru.issue(model.IssueExtraction, c.AccountLabel+"/"+c.FileLabel, c.Error)
		}
	}
}

// contractChanges emits link-contract or needs-manual-acv for one resolved
// contract.
func (ru *run) contractChanges(a *account, c *model.Contract) {
	switch {
	case c.Status == model.ContractOK && c.ACVUSD != nil:
		conf := c.Confidence
		if c.MatchNote != "" && conf == model.ConfidenceHigh {
			conf = model.ConfidenceMedium
		}
		ru.changes = append(ru.changes, model.ChangeRecord{
			Kind:       model.ObjectContract,
			Key:        c.Key,
			Op:         model.OpUpdate,
			Fields:     linkFields(a, c),
			Rationale:  linkRationale(c),
			Account:    a.name,
			Confidence: conf,
			Rule:       model.RuleLinkContract,
		})

	case c.Status == model.ContractNeedsReview:
		fields := map[string]string{"tag": string(model.RuleNeedsManualACV)}
		conf := model.ConfidenceMedium
		rationale := "no ACV ladder rule applied to the extracted terms"
		if proxy, n := ru.crmProxy(a); n > 0 {
			fields["proxy_acv_usd"] = changeset.FormatMoney(proxy)
			conf = model.ConfidenceLow
			rationale += fmt.Sprintf("; CRM ACV of %d opportunities offered as proxy", n)
		}
		if c.StartDateRaw != "" && c.StartDate == nil {
			rationale += "; unparseable start date " + c.StartDateRaw
		}
		if c.EndDateRaw != "" && c.EndDate == nil {
			rationale += "; unparseable end date " + c.EndDateRaw
		}
		ru.changes = append(ru.changes, model.ChangeRecord{
			Kind:       model.ObjectContract,
			Key:        c.Key,
			Op:         model.OpTag,
			Fields:     fields,
			Rationale:  rationale,
			Account:    a.name,
			Confidence: conf,
			Rule:       model.RuleNeedsManualACV,
		})
		ru.issue(model.IssueManualReview, c.AccountLabel+"/"+c.FileLabel, rationale)
	}
}

// crmProxy sums the CRM ACV of the account's in-period opportunities.
func (ru *run) crmProxy(a *account) (float64, int) {
	var sum float64
	n := 0
	for _, oi := range a.opps {
		o := &ru.in.Opportunities[oi]
		if o.ACV == nil || !ru.r.period.Contains(o.CloseDate) {
			continue
		}
		sum += *o.ACV
		n++
	}
	return sum, n
}

func linkFields(a *account, c *model.Contract) map[string]string {
	f := map[string]string{
		"account":    a.name,
		"acv_usd":    changeset.FormatMoney(*c.ACVUSD),
		"acv_method": c.ACVMethod,
		"currency":   string(c.Currency),
	}
	if c.StartDate != nil {
		f["start_date"] = changeset.FormatDate(c.StartDate)
	}
	if c.EndDate != nil {
		f["end_date"] = changeset.FormatDate(c.EndDate)
	}
	if c.TermMonths > 0 {
		f["term_months"] = fmt.Sprintf("%d", c.TermMonths)
	}
	return f
}

func linkRationale(c *model.Contract) string {
	s := fmt.Sprintf("ACV from %s (ladder rule %d)", c.ACVMethod, c.ACVRule)
	if c.MatchNote != "" {
		s += "; folder matched " + c.MatchNote
	}
	return s
}

// Coverage returns contract coverage of the benchmark and its status. A
// zero benchmark yields zero coverage: OVER when contracts exist, else
// ALIGNED.
func Coverage(benchmark, contractSum float64) (float64, model.CoverageStatus) {
	if benchmark == 0 {
		if contractSum > 0 {
			return 0, model.StatusOver
		}
		return 0, model.StatusAligned
	}
	cov := contractSum / benchmark
	return cov, StatusFor(cov)
}

// StatusFor maps a coverage ratio to a status label.
func StatusFor(cov float64) model.CoverageStatus {
	switch {
	case cov > OverAbove:
		return model.StatusOver
	case cov >= AlignedMin:
		return model.StatusAligned
	case cov >= PartialMin:
		return model.StatusPartial
	default:
		return model.StatusCritical
	}
}

func (ru *run) ambiguous(subject string, res match.Result) {
	ru.issue(model.IssueAmbiguousMatch, subject, fmt.Sprintf(
		"tied candidates under %s: %s (picked), %s; confidence MEDIUM",
		res.Rule, res.Candidate, strings.Join(res.Alternatives, ", ")))
	if a, ok := ru.accountFor(res); ok {
		a.fuzzy = true
	}
}

func (ru *run) accountFor(res match.Result) (*account, bool) {
	if res.Index < 0 || res.Index >= len(ru.owners) {
		return nil, false
	}
	a, ok := ru.accounts[ru.owners[res.Index]]
	return a, ok
}

func (ru *run) issue(kind model.IssueKind, subject, detail string) {
	ru.report.Issues = append(ru.report.Issues, model.Issue{Kind: kind, Subject: subject, Detail: detail})
}

func confidenceFor(fuzzy bool) model.Confidence {
	if fuzzy {
		return model.ConfidenceMedium
	}
	return model.ConfidenceHigh
}

func appendNote(note, s string) string {
	if note == "" {
		return s
	}
	return note + "; " + s
}

func sortIssues(issues []model.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Kind != issues[j].Kind {
			return issues[i].Kind < issues[j].Kind
		}
		return issues[i].Subject < issues[j].Subject
	})
}
