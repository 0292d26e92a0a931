package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// DefaultMaxClaims bounds the number of heuristic claims taken from one input
const DefaultMaxClaims = 8

var digitPattern = regexp.MustCompile(`\d`)

// ClaimExtractor splits text into checkable claims by keyword matching.
// It is the fallback used when no model decomposition is available.
type ClaimExtractor struct {
	keywords  []string
	maxClaims int
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{
		keywords: []string{
			"according to", "is defined as", "is legally", "under the law", "ruled",
			"convicted", "found", "reported", "announced", "increased", "decreased",
			"rose", "fell", "doubled", "caused", "causes", "killed", "won", "lost",
			"originated", "first", "introduced", "invented", "established", "founded",
			"created", "discovered", "developed", "percent", "%", "million", "billion",
			" is ", " are ", " was ", " were ", " has ", " have ", " had ",
		},
		maxClaims: DefaultMaxClaims,
	}
}

// FromText extracts claims from plain text. A short input that is not
// split into sentences becomes a single claim.
func (e *ClaimExtractor) FromText(text string) []model.Claim {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []model.Claim{{Text: text, Centrality: model.CentralityHigh, Heuristic: "whole_input"}}
	}

	var claims []model.Claim
	for _, sentence := range sentences {
		lower := " " + strings.ToLower(sentence) + " "
		heuristic := ""
		for _, keyword := range e.keywords {
			if strings.Contains(lower, keyword) {
				heuristic = "keyword:" + strings.TrimSpace(keyword)
				break // Only match once per sentence
			}
		}
		if heuristic == "" && digitPattern.MatchString(sentence) {
			heuristic = "number"
		}
		if heuristic == "" {
			continue
		}
		claims = append(claims, model.Claim{
			Text:       sentence,
			Centrality: model.CentralityMedium,
			Heuristic:  heuristic,
		})
	}

	claims = dedupeClaims(claims)
	if len(claims) == 0 {
		claims = []model.Claim{{Text: sentences[0], Heuristic: "first_sentence"}}
	}
	if len(claims) > e.maxClaims {
		claims = claims[:e.maxClaims]
	}
	claims[0].Centrality = model.CentralityHigh
	return claims
}

// splitSentences splits text into sentences (simple heuristic)
func splitSentences(text string) []string {
	// Replace newlines with spaces
	text = strings.ReplaceAll(text, "\n", " ")

	// Split by sentence terminators
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)

		// Check for sentence terminators
		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on abbreviations
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				sentence := strings.TrimSpace(current.String())
				if len(sentence) >= 30 && len(sentence) <= 500 {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	// Add remaining text if it looks like a sentence
	if current.Len() > 0 {
		sentence := strings.TrimSpace(current.String())
		if len(sentence) >= 30 && len(sentence) <= 500 {
			sentences = append(sentences, sentence)
		}
	}

	return sentences
}

// dedupeClaims removes duplicate claims
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
