// Package contexts detects the independent analytical frames an input
// requires and keeps that set faithful to the evidence found for it.
package contexts

import (
	"regexp"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/textsim"
)

// Seed is a candidate context proposed by the heuristic pre-pass
type Seed struct {
	Name     string            `json:"name"`
	Pattern  string            `json:"pattern"` // comparison, legal, jurisdiction, temporal
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Seed patterns
const (
	PatternComparison   = "comparison"
	PatternLegal        = "legal"
	PatternJurisdiction = "jurisdiction"
	PatternTemporal     = "temporal"
)

var (
	comparisonMarker = regexp.MustCompile(`(?i)\b(?:vs\.?|versus|compared (?:to|with)|in contrast to|unlike)\s`)
	comparativeWords = regexp.MustCompile(`(?i)\b(?:vs\.?|versus|compared (?:to|with)|compare[sd]?|compar(?:ison|ing)|differ(?:s|ed|ent|ence|ences)?|whereas|unlike|in contrast|both|between)\b`)
	institution      = regexp.MustCompile(`\b((?:[A-Z][\w'.-]*\s+){0,4}(?:Court|Tribunal|Commission|Council|Authority|Agency)(?:\s+of(?:\s+(?:the\s+)?[A-Z][\w'.-]*){1,3})?)`)
	legalWords       = regexp.MustCompile(`(?i)\b(?:court|ruling|ruled|tribunal|appeal|judgment|judgement|verdict|convicted|acquitted|sentenced)\b`)
	placeFrame       = regexp.MustCompile(`\b[Ii]n (?:the )?([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+){0,2})`)
	yearPattern      = regexp.MustCompile(`\b(1[89][0-9]{2}|20[0-9]{2})\b`)
	temporalWords    = regexp.MustCompile(`(?i)\b(?:before|after|since|until|compared|versus|vs\.?|between|from|than)\b`)
	seedSplitter     = regexp.MustCompile(`[.;:!?,()\n]`)
)

// Words that often start a sentence capitalized but are not places
var notPlaces = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true, "Fact": true,
	"Addition": true, "General": true, "Particular": true, "Total": true, "Short": true,
	"Contrast": true, "Practice": true, "Theory": true, "Response": true,
}

// IsComparative reports whether the input asks to compare frames
func IsComparative(text string) bool {
	return comparativeWords.MatchString(text)
}

// DetectSeeds scans the input for generic patterns that indicate more than
// one analytical frame. Seeds are deduplicated against each other using
// the given name similarity threshold.
func DetectSeeds(text string, threshold float64) []Seed {
	var seeds []Seed
	seeds = append(seeds, comparisonSeeds(text)...)
	seeds = append(seeds, legalSeeds(text)...)
	if IsComparative(text) {
		seeds = append(seeds, jurisdictionSeeds(text)...)
	}
	seeds = append(seeds, temporalSeeds(text)...)
	return dedupSeeds(seeds, threshold)
}

// comparisonSeeds takes the phrases on either side of "A vs B"
func comparisonSeeds(text string) []Seed {
	var seeds []Seed
	for _, loc := range comparisonMarker.FindAllStringIndex(text, -1) {
		left := lastWords(lastClause(text[:loc[0]]), 6)
		right := firstWords(firstClause(text[loc[1]:]), 6)
		if left == "" || right == "" {
			continue
		}
		seeds = append(seeds,
			Seed{Name: left, Pattern: PatternComparison},
			Seed{Name: right, Pattern: PatternComparison})
	}
	return seeds
}

// legalSeeds needs procedural language and at least two distinct institutions
func legalSeeds(text string) []Seed {
	if !legalWords.MatchString(text) {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, m := range institution.FindAllStringSubmatch(text, -1) {
		name := model.NormalizeContextName(trimLeadingArticle(m[1]))
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	if len(names) < 2 {
		return nil
	}
	seeds := make([]Seed, 0, len(names))
	for _, n := range names {
		seeds = append(seeds, Seed{Name: n, Pattern: PatternLegal, Metadata: map[string]string{"institution": n}})
	}
	return seeds
}

// jurisdictionSeeds needs two distinct "in <Place>" frames
func jurisdictionSeeds(text string) []Seed {
	var places []string
	seen := make(map[string]bool)
	for _, m := range placeFrame.FindAllStringSubmatch(text, -1) {
		place := m[1]
		first := strings.Fields(place)[0]
		if notPlaces[first] || seen[place] {
			continue
		}
		seen[place] = true
		places = append(places, place)
	}
	if len(places) < 2 {
		return nil
	}
	seeds := make([]Seed, 0, len(places))
	for _, p := range places {
		seeds = append(seeds, Seed{Name: p, Pattern: PatternJurisdiction, Metadata: map[string]string{"jurisdiction": p}})
	}
	return seeds
}

// temporalSeeds needs two distinct years and a comparison between them
func temporalSeeds(text string) []Seed {
	if !temporalWords.MatchString(text) {
		return nil
	}
	var years []string
	seen := make(map[string]bool)
	for _, y := range yearPattern.FindAllString(text, -1) {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	if len(years) < 2 {
		return nil
	}
	seeds := make([]Seed, 0, len(years))
	for _, y := range years {
		seeds = append(seeds, Seed{Name: "Period " + y, Pattern: PatternTemporal, Metadata: map[string]string{"temporal": y}})
	}
	return seeds
}

func dedupSeeds(seeds []Seed, threshold float64) []Seed {
	var out []Seed
	for _, s := range seeds {
		s.Name = model.NormalizeContextName(s.Name)
		if s.Name == "" {
			continue
		}
		duplicate := false
		for _, kept := range out {
			if model.ContextIDFor(kept.Name) == model.ContextIDFor(s.Name) ||
				textsim.Similarity(kept.Name, s.Name) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, s)
		}
	}
	return out
}

// Context converts a seed into a candidate analysis context
func (s Seed) Context() model.AnalysisContext {
	name := model.NormalizeContextName(s.Name)
	c := model.AnalysisContext{
		ID:     model.ContextIDFor(name),
		Name:   name,
		Status: model.ContextUnknown,
	}
	if len(s.Metadata) > 0 {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
		c.Temporal = s.Metadata["temporal"]
	}
	return c
}

func lastClause(s string) string {
	parts := seedSplitter.Split(s, -1)
	return strings.TrimSpace(parts[len(parts)-1])
}

func firstClause(s string) string {
	return strings.TrimSpace(seedSplitter.Split(s, 2)[0])
}

func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return trimLeadingArticle(strings.Join(words, " "))
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return trimLeadingArticle(strings.Join(words, " "))
}

func trimLeadingArticle(s string) string {
	s = strings.TrimSpace(s)
	for _, a := range []string{"the ", "The ", "a ", "A ", "an ", "An "} {
		if strings.HasPrefix(s, a) {
			return strings.TrimSpace(s[len(a):])
		}
	}
	return s
}
