// Package textsim provides the token-set similarity used for deduplicating
// evidence statements and analysis contexts.
package textsim

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true, "and": true,
	"or": true, "to": true, "for": true, "by": true, "at": true, "with": true, "is": true,
	"was": true, "were": true, "are": true, "be": true, "as": true, "that": true, "this": true,
}

// Normalize lowercases text, strips punctuation, and collapses whitespace
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the set of normalized, non-stopword tokens in s.
// If s consists only of stopwords, they are kept.
func Tokens(s string) map[string]bool {
	fields := strings.Fields(Normalize(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !stopwords[f] {
			set[f] = true
		}
	}
	if len(set) == 0 {
		for _, f := range fields {
			set[f] = true
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range a {
		if b[term] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Similarity scores two strings in [0,1]. Identical normalized strings score 1.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return Jaccard(Tokens(na), Tokens(nb))
}
