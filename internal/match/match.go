// Package match resolves free-text names to a canonical candidate using an
// ordered rule ladder: exact normalized equality, declared aliases,
// substring containment, then token-set similarity.
package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/recon-cli/internal/normalize"
)

// Rule identifies the ladder step that produced a match.
type Rule int

const (
	RuleNone Rule = iota
	RuleExact
	RuleAlias
	RuleSubstring
	RuleTokenSet
)

func (r Rule) String() string {
	switch r {
	case RuleExact:
		return "exact"
	case RuleAlias:
		return "alias"
	case RuleSubstring:
		return "substring"
	case RuleTokenSet:
		return "token_set"
	default:
		return "none"
	}
}

// DefaultThreshold is the minimum token-set ratio for a fuzzy match.
const DefaultThreshold = 0.80

const (
	minSubstringLen = 4
	minTokenLen     = 4
	minCommonTokens = 2
)

// Result is the outcome of a single Match call.
type Result struct {
	Candidate string
	Index     int
	Rule      Rule
	Score     float64

	// Ambiguous is set when other candidates with a different normalized
	// form tied with the winner on rule and score.
	Ambiguous    bool
	Alternatives []string
}

// Found reports whether any rule matched.
func (r Result) Found() bool {
	return r.Rule != RuleNone
}

// Candidates is a precomputed candidate set. Build it once and reuse it
// across queries.
type Candidates struct {
	raw    []string
	norm   []string
	tokens [][]string
}

// NewCandidates normalizes every candidate up front.
func NewCandidates(raw []string) *Candidates {
	c := &Candidates{
		raw:    make([]string, len(raw)),
		norm:   make([]string, len(raw)),
		tokens: make([][]string, len(raw)),
	}
	copy(c.raw, raw)
	for i, s := range raw {
		c.norm[i] = normalize.AccountName(s)
		c.tokens[i] = uniqueSorted(normalize.Tokens(c.norm[i]))
	}
	return c
}

// Len returns the number of candidates.
func (c *Candidates) Len() int { return len(c.raw) }

// Matcher holds the fuzzy threshold and the declarative alias map.
// It has no mutable state and is safe for concurrent use.
type Matcher struct {
	threshold float64
	aliases   map[string]string
}

// New creates a Matcher. aliases maps an external label to its canonical
// account label; both sides are normalized here.
func New(threshold float64, aliases map[string]string) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	m := &Matcher{threshold: threshold, aliases: make(map[string]string, len(aliases))}
	for from, to := range aliases {
		m.aliases[normalize.AccountName(from)] = normalize.AccountName(to)
	}
	return m
}

// Threshold returns the configured fuzzy threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// MatchStrings is Match over an ad-hoc candidate slice.
func (m *Matcher) MatchStrings(q string, candidates []string) Result {
	return m.Match(q, NewCandidates(candidates))
}

type scored struct {
	idx   int
	score float64
}

// Match returns the best candidate for q. The first rule producing any
// match wins; within a rule the highest score wins, ties broken by the
// candidate's original text and then its position. It never fails; an
// empty Result means no rule matched.
func (m *Matcher) Match(q string, c *Candidates) Result {
	nq := normalize.AccountName(q)
	if nq == "" || c == nil || c.Len() == 0 {
		return Result{Index: -1}
	}

	var hits []scored
	for i, n := range c.norm {
		if n == nq {
			hits = append(hits, scored{i, 1})
		}
	}
	if len(hits) > 0 {
		return m.pick(c, hits, RuleExact)
	}

	if target, ok := m.aliases[nq]; ok {
		for i, n := range c.norm {
			if n == target {
				hits = append(hits, scored{i, 1})
			}
		}
		if len(hits) > 0 {
			return m.pick(c, hits, RuleAlias)
		}
	}

	qLen := utf8.RuneCountInString(nq)
	if qLen >= minSubstringLen {
		for i, n := range c.norm {
			nLen := utf8.RuneCountInString(n)
			if nLen < minSubstringLen {
				continue
			}
			if strings.Contains(n, nq) || strings.Contains(nq, n) {
				hits = append(hits, scored{i, float64(min(qLen, nLen)) / float64(max(qLen, nLen))})
			}
		}
		if len(hits) > 0 {
			return m.pick(c, hits, RuleSubstring)
		}
	}

	qTokens := uniqueSorted(normalize.Tokens(nq))
	for i, n := range c.norm {
		if commonLongTokens(qTokens, c.tokens[i]) < minCommonTokens {
			continue
		}
		if r := TokenSetRatio(nq, n); r >= m.threshold {
			hits = append(hits, scored{i, r})
		}
	}
	if len(hits) > 0 {
		return m.pick(c, hits, RuleTokenSet)
	}

	return Result{Index: -1}
}

// pick selects the winner among hits of one rule and flags ambiguity.
func (m *Matcher) pick(c *Candidates, hits []scored, rule Rule) Result {
	sort.SliceStable(hits, func(a, b int) bool {
		ha, hb := hits[a], hits[b]
		if ha.score != hb.score {
			return ha.score > hb.score
		}
		if c.raw[ha.idx] != c.raw[hb.idx] {
			return c.raw[ha.idx] < c.raw[hb.idx]
		}
		return ha.idx < hb.idx
	})

	best := hits[0]
	res := Result{
		Candidate: c.raw[best.idx],
		Index:     best.idx,
		Rule:      rule,
		Score:     best.score,
	}

	seen := map[string]bool{c.norm[best.idx]: true}
	for _, h := range hits[1:] {
		if h.score != best.score {
			break
		}
		if seen[c.norm[h.idx]] {
			continue
		}
		seen[c.norm[h.idx]] = true
		res.Ambiguous = true
		res.Alternatives = append(res.Alternatives, c.raw[h.idx])
	}
	return res
}

func commonLongTokens(a, b []string) int {
	n := 0
	for _, t := range intersect(a, b) {
		if utf8.RuneCountInString(t) >= minTokenLen {
			n++
		}
	}
	return n
}
