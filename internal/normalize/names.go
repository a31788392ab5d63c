// Package normalize canonicalizes account names, opportunity names, money,
// probabilities, dates, stages, and currency from heterogeneous inputs.
// Every function is pure and total.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are stripped from the end of account names, longest first.
var legalSuffixes = []string{
	"corporation",
	"holdings",
	"limited",
	"company",
	"group",
	"& co",
	"gmbh",
	"corp",
	"s.a.",
	"inc",
	"llc",
	"ltd",
	"plc",
	"s.a",
	"ag",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	parenRe      = regexp.MustCompile(`\s*\([^)]*\)?`)
)

const trailingPunct = ".,;:-–!?'\""

// maxPasses bounds the fixed-point loops below.
const maxPasses = 8

// AccountName returns the canonical matching key for an account name:
// lowercase, trimmed, legal-form suffixes and parenthetical aliases
// removed, diacritics folded, punctuation dropped, whitespace collapsed.
// The result is a fixed point, so AccountName(AccountName(x)) == AccountName(x).
func AccountName(s string) string {
	out := accountPass(s)
	for range maxPasses {
		next := accountPass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func accountPass(s string) string {
	s = collapse(strings.ToLower(s))
	s = stripParenAlias(s)
	s = strings.TrimRight(s, trailingPunct+" ")
	s = stripSuffixes(s)
	s = foldAccents(s)
	s = alnumOnly(s)
	s = collapse(s)
	return stripSuffixes(s)
}

// OppName returns the canonical key for an opportunity name: lowercase,
// trimmed, with any leading "Johnson Hana - " or "JH - " prefix removed.
func OppName(s string) string {
	s = collapse(strings.ToLower(s))
	for range maxPasses {
		trimmed := s
		for _, p := range oppPrefixes {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, p))
		}
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return s
}

var oppPrefixes = []string{"johnson hana - ", "johnson hana – ", "jh - ", "jh – "}

var docExtensions = []string{".pdf", ".txt", ".docx", ".doc"}

// ContractName returns the canonical key for a contract file label.
func ContractName(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	for range maxPasses {
		before := strings.TrimSpace(s)
		s = before
		for _, ext := range docExtensions {
			s = strings.TrimSpace(strings.TrimSuffix(s, ext))
		}
		if s == before {
			break
		}
	}
	return collapse(s)
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// stripParenAlias drops "(...)" groups when the text before the first
// parenthesis is at least three characters long.
func stripParenAlias(s string) string {
	idx := strings.Index(s, "(")
	if idx < 0 {
		return s
	}
	if len([]rune(strings.TrimSpace(s[:idx]))) < 3 {
		return s
	}
	return collapse(parenRe.ReplaceAllString(s, " "))
}

func stripSuffixes(s string) string {
	for range maxPasses {
		stripped := false
		for _, suf := range legalSuffixes {
			if !strings.HasSuffix(s, " "+suf) {
				continue
			}
			rest := strings.TrimRight(strings.TrimSuffix(s, suf), trailingPunct+" ")
			if rest == "" {
				continue
			}
			s = rest
			stripped = true
			break
		}
		if !stripped {
			break
		}
	}
	return s
}

// foldAccents removes combining marks, e.g. "Meán" -> "Mean". A fresh
// transformer is built per call because chained transformers carry state.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// alnumOnly keeps letters, digits, and spaces. Separators become spaces;
// other punctuation is dropped.
func alnumOnly(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ':
			return r
		case r == '-', r == '/', r == '_', r == '&', unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
}

// Tokens splits a normalized string into its whitespace-separated tokens.
func Tokens(s string) []string {
	return strings.Fields(s)
}
