// Package classify assigns opportunities to a revenue class.
package classify

import (
	"regexp"

	"github.com/sells-group/recon-cli/internal/model"
)

// Source records what decided the class.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceKeyword  Source = "keyword"
	SourceDefault  Source = "default"
)

type keywordRule struct {
	re    *regexp.Regexp
	class model.RevenueClass
}

// Keyword rules are checked in order; LOI wins over recurring wins over
// project.
var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\bloi\b`), model.RevenueCommitment},
	{regexp.MustCompile(`(?i)\b(recurring|renewal|extension)\b`), model.RevenueRecurring},
	{regexp.MustCompile(`(?i)\b(pilot|project|managed\s+services)\b`), model.RevenueProject},
}

var explicitClass = map[model.RevenueType]model.RevenueClass{
	model.RevenueTypeCommitment: model.RevenueCommitment,
	model.RevenueTypeRecurring:  model.RevenueRecurring,
	model.RevenueTypeProject:    model.RevenueProject,
}

// Classify returns the revenue class for an explicit revenue type and an
// opportunity name, and which rule decided it.
func Classify(rt model.RevenueType, name string) (model.RevenueClass, Source) {
	if c, ok := explicitClass[rt]; ok {
		return c, SourceExplicit
	}
	for _, r := range keywordRules {
		if r.re.MatchString(name) {
			return r.class, SourceKeyword
		}
	}
	return model.RevenueOther, SourceDefault
}

// Opportunity classifies o and stores the result in o.Class.
func Opportunity(o *model.Opportunity) Source {
	c, src := Classify(o.RevenueType, o.Name)
	o.Class = c
	return src
}

// All classifies every opportunity in place and returns how many fell
// through to Other.
func All(opps []model.Opportunity) int {
	other := 0
	for i := range opps {
		if Opportunity(&opps[i]) == SourceDefault {
			other++
		}
	}
	return other
}
