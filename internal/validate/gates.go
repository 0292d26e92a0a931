package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/textsim"
)

var opinionMarkers = []string{
	"i think", "i believe", "i feel", "in my opinion", "in my view", "we believe",
	"should", "ought to", "must be", "best", "worst", "greatest", "terrible", "awful",
	"amazing", "wonderful", "beautiful", "ugly", "disgusting", "brilliant", "stupid",
	"overrated", "underrated", "good", "bad", "great", "horrible", "fantastic",
	"arguably", "probably", "perhaps", "maybe", "seems", "delicious", "boring",
}

var futureMarkers = []string{
	"will", "shall", "going to", "is expected to", "are expected to", "is set to",
	"are set to", "is likely to", "are likely to", "next year", "next month",
	"next week", "in the future", "by 2030", "by 2040", "by 2050", "forecast to",
	"predicted to", "projected to",
}

var pastPresentMarkers = map[string]bool{
	"was": true, "were": true, "had": true, "has": true, "have": true, "did": true,
	"does": true, "said": true, "found": true, "became": true, "began": true,
	"took": true, "made": true, "won": true, "lost": true, "grew": true, "fell": true,
	"rose": true, "shows": true, "showed": true, "reported": true, "announced": true,
}

var (
	numberPattern = regexp.MustCompile(`\d`)
	datePattern   = regexp.MustCompile(`(?i)\b(1[0-9]{3}|20[0-9]{2})\b|\b(january|february|march|april|june|july|august|september|october|november|december)\b`)
)

// ValidateClaim runs Gate 1 on a claim text: it rejects opinions, pure
// predictions and claims without enough specificity to be checked.
func ValidateClaim(text string, cfg model.ClaimGateConfig) model.ClaimValidation {
	v := model.ClaimValidation{
		OpinionScore:     OpinionScore(text),
		SpecificityScore: SpecificityScore(text),
		FuturePrediction: IsFuturePrediction(text),
	}

	switch {
	case v.OpinionScore > cfg.OpinionThreshold:
		v.FailureReason = model.ClaimFailureOpinion
		v.FailureDescription = fmt.Sprintf("opinion score %.2f exceeds %.2f", v.OpinionScore, cfg.OpinionThreshold)
	case v.FuturePrediction:
		v.FailureReason = model.ClaimFailureFuturePrediction
		v.FailureDescription = "claim is a prediction about the future"
	case v.SpecificityScore < cfg.MinSpecificity:
		v.FailureReason = model.ClaimFailureSpecificity
		v.FailureDescription = fmt.Sprintf("specificity %.2f below %.2f", v.SpecificityScore, cfg.MinSpecificity)
	default:
		v.Passed = true
	}
	return v
}

// OpinionScore is the density of evaluative markers: matches / (words/8 + 1), capped at 1
func OpinionScore(text string) float64 {
	norm := " " + textsim.Normalize(text) + " "
	words := len(strings.Fields(norm))
	if words == 0 {
		return 0
	}

	matches := 0
	for _, marker := range opinionMarkers {
		matches += strings.Count(norm, " "+marker+" ")
	}
	return math.Min(1, float64(matches)/(float64(words)/8+1))
}

// SpecificityScore rewards proper nouns, numbers, dates and length
func SpecificityScore(text string) float64 {
	fields := strings.Fields(text)
	score := 0.0

	if hasProperNoun(fields) {
		score += 0.3
	}
	if numberPattern.MatchString(text) {
		score += 0.25
	}
	if datePattern.MatchString(text) {
		score += 0.25
	}
	if len(fields) >= 6 {
		score += 0.2
	}
	return math.Min(1, score)
}

// IsFuturePrediction reports whether a claim only asserts something about
// the future. A past or present assertion alongside the prediction is checkable.
func IsFuturePrediction(text string) bool {
	norm := " " + textsim.Normalize(text) + " "
	found := false
	for _, marker := range futureMarkers {
		if strings.Contains(norm, " "+marker+" ") {
			found = true
			norm = strings.ReplaceAll(norm, " "+marker+" ", " ")
		}
	}
	if !found {
		return false
	}

	for _, word := range strings.Fields(norm) {
		if pastPresentMarkers[word] {
			return false
		}
	}
	return true
}

func hasProperNoun(fields []string) bool {
	for i, f := range fields {
		word := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if word == "" {
			continue
		}
		r := []rune(word)
		if !unicode.IsUpper(r[0]) {
			continue
		}
		// Acronyms count anywhere, capitalized words only mid-sentence
		if len(r) > 1 && isAllUpper(r) {
			return true
		}
		if i > 0 && !endsSentence(fields[i-1]) {
			return true
		}
	}
	return false
}

func isAllUpper(r []rune) bool {
	for _, c := range r {
		if unicode.IsLetter(c) && !unicode.IsUpper(c) {
			return false
		}
	}
	return true
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// MinTierEvidence is the evidence count below which a verdict is always INSUFFICIENT
const MinTierEvidence = 2

// Tier applies Gate 4: evidence count, average source quality and directional
// agreement decide whether a verdict is publishable.
func Tier(evidenceCount int, quality, agreement float64, cfg model.VerdictGateConfig) model.ConfidenceTier {
	switch {
	case evidenceCount < MinTierEvidence:
		return model.TierInsufficient
	case evidenceCount >= cfg.HighMinEvidence && quality >= cfg.HighMinQuality && agreement >= cfg.HighMinAgreement:
		return model.TierHigh
	case evidenceCount >= cfg.MediumMinEvidence && quality >= cfg.MediumMinQuality && agreement >= cfg.MediumMinAgreement:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// WithheldReasons explains why a tier is not publishable
func WithheldReasons(evidenceCount int, quality, agreement float64, cfg model.VerdictGateConfig) []string {
	var reasons []string
	need := max(cfg.MediumMinEvidence, MinTierEvidence)
	if evidenceCount < need {
		reasons = append(reasons, fmt.Sprintf("only %d evidence items (need %d)", evidenceCount, need))
	}
	if quality < cfg.MediumMinQuality {
		reasons = append(reasons, fmt.Sprintf("average source quality %.2f below %.2f", quality, cfg.MediumMinQuality))
	}
	if agreement < cfg.MediumMinAgreement {
		reasons = append(reasons, fmt.Sprintf("evidence agreement %.2f below %.2f", agreement, cfg.MediumMinAgreement))
	}
	return reasons
}
