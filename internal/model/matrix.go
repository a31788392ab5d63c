package model

import (
	"fmt"
	"sort"
)

// ProbabilityMatrix maps (stage, account class) to a probability in [0,1].
type ProbabilityMatrix map[Stage]map[AccountClass]float64

// Lookup returns the probability for the pair and whether it is defined.
func (m ProbabilityMatrix) Lookup(s Stage, c AccountClass) (float64, bool) {
	row, ok := m[s]
	if !ok {
		return 0, false
	}
	p, ok := row[c]
	return p, ok
}

// Set stores a probability for the pair.
func (m ProbabilityMatrix) Set(s Stage, c AccountClass, p float64) {
	row, ok := m[s]
	if !ok {
		row = make(map[AccountClass]float64)
		m[s] = row
	}
	row[c] = p
}

// Validate returns one message per cell outside [0,1], in stable order.
func (m ProbabilityMatrix) Validate() []string {
	var out []string
	for _, s := range AllStages {
		row, ok := m[s]
		if !ok {
			continue
		}
		classes := make([]string, 0, len(row))
		for c := range row {
			classes = append(classes, string(c))
		}
		sort.Strings(classes)
		for _, c := range classes {
			p := row[AccountClass(c)]
			if p < 0 || p > 1 {
				out = append(out, fmt.Sprintf("%s/%s: probability %.4f outside [0,1]", s, c, p))
			}
		}
	}
	return out
}
