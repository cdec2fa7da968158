// Package terms provides the keyword heuristics used to match graph elements
// against AI answer text: case-folded substring matching and stop-word-aware
// term extraction. Deliberately not NLP.
package terms

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// stopwords are excluded from extracted claim terms. Tokens of three or
// fewer characters are dropped before this check ever applies, so only
// longer function words appear here.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {},
	"being": {}, "between": {}, "both": {}, "could": {}, "does": {},
	"each": {}, "from": {}, "have": {}, "having": {}, "into": {},
	"more": {}, "most": {}, "other": {}, "over": {}, "same": {},
	"should": {}, "some": {}, "such": {}, "than": {}, "that": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "through": {}, "under": {},
	"very": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "will": {}, "with": {}, "would": {},
	"your": {},
}

// Fold returns s case-folded for caseless comparison.
func Fold(s string) string {
	return folder.String(s)
}

// ContainsFold reports whether needle occurs in haystack under case folding.
// An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

// Extract tokenizes statement and returns the distinct case-folded terms
// longer than three characters with stop words removed, in first-seen order.
func Extract(statement string) []string {
	tokens := strings.FieldsFunc(statement, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, tok := range tokens {
		folded := Fold(tok)
		if len(folded) <= 3 {
			continue
		}
		if _, stop := stopwords[folded]; stop {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}

// MatchRatio returns the fraction of terms that occur in text under case
// folding. Returns 0 for an empty term list.
func MatchRatio(termList []string, text string) float64 {
	if len(termList) == 0 {
		return 0
	}
	folded := Fold(text)
	matched := 0
	for _, term := range termList {
		if strings.Contains(folded, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(termList))
}
