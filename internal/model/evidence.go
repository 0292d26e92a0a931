package model

import "strings"

// EvidenceItem represents a single statement extracted from a source.
// Content is fixed at creation; only ContextID may be rewritten (on a copy)
// when contexts are refined.
type EvidenceItem struct {
	ID                string            `json:"id"`                           // E<round>-<n>
	Statement         string            `json:"statement"`                    // The extracted statement
	Category          EvidenceCategory  `json:"category"`                     // direct_evidence, statistic, ...
	Direction         Direction         `json:"direction"`                    // Relative to the claim
	ClaimID           string            `json:"claim_id,omitempty"`           // Claim this item bears on
	ContextID         string            `json:"context_id,omitempty"`         // Assigned analysis context
	Scope             EvidenceScope     `json:"scope"`                        // The source's own frame
	ProbativeValue    ProbativeValue    `json:"probative_value"`              // high, medium, low
	SourceType        SourceType        `json:"source_type"`                  // Source classification
	ContestedStrength ContestedStrength `json:"contested_strength,omitempty"` // established or disputed counter-evidence
	SourceURL         string            `json:"source_url"`
	SourceTitle       string            `json:"source_title,omitempty"`
	SourceExcerpt     string            `json:"source_excerpt,omitempty"`
	Round             int               `json:"round"` // Research round that produced the item
}

// EvidenceScope describes the methodology and boundaries of the source itself.
// It is not an AnalysisContext.
type EvidenceScope struct {
	Methodology string `json:"methodology,omitempty"`
	Temporal    string `json:"temporal,omitempty"`
	Geographic  string `json:"geographic,omitempty"`
	Boundaries  string `json:"boundaries,omitempty"`
}

// IsZero reports whether no scope metadata was observed
func (s EvidenceScope) IsZero() bool {
	return s == EvidenceScope{}
}

// EvidenceCategory classifies the kind of evidence
type EvidenceCategory string

const (
	CategoryDirect      EvidenceCategory = "direct_evidence"
	CategoryStatistic   EvidenceCategory = "statistic"
	CategoryExpertQuote EvidenceCategory = "expert_quote"
	CategoryEvent       EvidenceCategory = "event"
	CategoryLegal       EvidenceCategory = "legal_provision"
	CategoryCriticism   EvidenceCategory = "criticism"
	CategoryOther       EvidenceCategory = "other"
)

// ParseCategory normalizes a category, defaulting to other
func ParseCategory(s string) EvidenceCategory {
	c := EvidenceCategory(normalizeEnum(s))
	switch c {
	case CategoryDirect, CategoryStatistic, CategoryExpertQuote, CategoryEvent, CategoryLegal, CategoryCriticism:
		return c
	default:
		return CategoryOther
	}
}

// Direction is the stance of an evidence item relative to its claim
type Direction string

const (
	DirectionSupports    Direction = "supports"
	DirectionContradicts Direction = "contradicts"
	DirectionNeutral     Direction = "neutral"
)

// ParseDirection normalizes a direction, defaulting to neutral
func ParseDirection(s string) Direction {
	switch normalizeEnum(s) {
	case "supports", "support", "supporting":
		return DirectionSupports
	case "contradicts", "contradict", "contradicting", "refutes":
		return DirectionContradicts
	default:
		return DirectionNeutral
	}
}

// ProbativeValue is the quality tier of an evidence item
type ProbativeValue string

const (
	ProbativeHigh   ProbativeValue = "high"
	ProbativeMedium ProbativeValue = "medium"
	ProbativeLow    ProbativeValue = "low"
)

// ParseProbativeValue normalizes a probative value, defaulting to low
func ParseProbativeValue(s string) ProbativeValue {
	switch ProbativeValue(normalizeEnum(s)) {
	case ProbativeHigh:
		return ProbativeHigh
	case ProbativeMedium:
		return ProbativeMedium
	default:
		return ProbativeLow
	}
}

// SourceType classifies the publisher of an evidence item
type SourceType string

const (
	SourcePeerReviewed  SourceType = "peer_reviewed_study"
	SourceFactCheck     SourceType = "fact_check_report"
	SourceGovernment    SourceType = "government_report"
	SourceLegal         SourceType = "legal_document"
	SourceNewsPrimary   SourceType = "news_primary"
	SourceNewsSecondary SourceType = "news_secondary"
	SourceExpert        SourceType = "expert_statement"
	SourceOrganization  SourceType = "organization_report"
	SourceBlog          SourceType = "blog"
	SourceOther         SourceType = "other"
)

// ParseSourceType normalizes a source type; unknown values return ""
func ParseSourceType(s string) SourceType {
	t := SourceType(normalizeEnum(s))
	switch t {
	case SourcePeerReviewed, SourceFactCheck, SourceGovernment, SourceLegal, SourceNewsPrimary,
		SourceNewsSecondary, SourceExpert, SourceOrganization, SourceBlog, SourceOther:
		return t
	default:
		return ""
	}
}

// ContestedStrength marks counter-evidence that contests a claim
type ContestedStrength string

const (
	ContestedNone        ContestedStrength = ""
	ContestedEstablished ContestedStrength = "established"
	ContestedDisputed    ContestedStrength = "disputed"
)

// ParseContestedStrength normalizes a contested strength
func ParseContestedStrength(s string) ContestedStrength {
	switch ContestedStrength(normalizeEnum(s)) {
	case ContestedEstablished:
		return ContestedEstablished
	case ContestedDisputed:
		return ContestedDisputed
	default:
		return ContestedNone
	}
}

// EvidenceRejection records why the quality filter discarded an item
type EvidenceRejection struct {
	EvidenceID string `json:"evidence_id"`
	Statement  string `json:"statement"`
	SourceURL  string `json:"source_url,omitempty"`
	Reason     string `json:"reason"`             // Machine-readable reason code
	Detail     string `json:"detail,omitempty"`   // Human-readable detail
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
