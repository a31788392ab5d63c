package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/recon-cli/internal/normalize"
)

// Ratio returns the edit-distance similarity of a and b in [0,1].
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

// TokenSetRatio compares the sorted token intersection of a and b against
// each side's intersection-plus-remainder and returns the best ratio.
// Word order and duplicated words do not affect the score.
func TokenSetRatio(a, b string) float64 {
	ta := uniqueSorted(normalize.Tokens(a))
	tb := uniqueSorted(normalize.Tokens(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := intersect(ta, tb)
	t0 := strings.Join(inter, " ")
	t1 := joinNonEmpty(t0, strings.Join(difference(ta, inter), " "))
	t2 := joinNonEmpty(t0, strings.Join(difference(tb, inter), " "))

	best := Ratio(t1, t2)
	if t0 != "" {
		best = max(best, Ratio(t0, t1), Ratio(t0, t2))
	}
	return best
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func uniqueSorted(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// intersect returns the common elements of two sorted unique slices.
func intersect(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// difference returns elements of sorted a not present in sorted sub.
func difference(a, sub []string) []string {
	var out []string
	j := 0
	for _, t := range a {
		for j < len(sub) && sub[j] < t {
			j++
		}
		if j < len(sub) && sub[j] == t {
			continue
		}
		out = append(out, t)
	}
	return out
}
