package model

// Claim represents an atomic, checkable assertion extracted from the input
type Claim struct {
	ID         string           `json:"id"`                   // Stable claim id (SC1, SC2, ...)
	Text       string           `json:"text"`                 // The claim text itself
	DependsOn  string           `json:"depends_on,omitempty"` // Claim id whose verdict propagates into this one
	ContextIDs []string         `json:"context_ids"`          // Analysis contexts this claim belongs to
	Centrality Centrality       `json:"centrality"`           // How central the claim is to the input
	Heuristic  string           `json:"heuristic,omitempty"`  // Set when extracted by the keyword fallback
	Validation *ClaimValidation `json:"validation,omitempty"` // Gate 1 result
}

// Centrality ranks how much a claim matters to the overall input
type Centrality string

const (
	CentralityHigh   Centrality = "high"
	CentralityMedium Centrality = "medium"
	CentralityLow    Centrality = "low"
)

// ParseCentrality normalizes free-form centrality values, defaulting to medium
func ParseCentrality(s string) Centrality {
	switch Centrality(normalizeEnum(s)) {
	case CentralityHigh:
		return CentralityHigh
	case CentralityLow:
		return CentralityLow
	default:
		return CentralityMedium
	}
}

// ClaimValidation is the outcome of the claim validation gate (Gate 1)
type ClaimValidation struct {
	Passed             bool    `json:"passed"`
	OpinionScore       float64 `json:"opinion_score"`
	SpecificityScore   float64 `json:"specificity_score"`
	FuturePrediction   bool    `json:"future_prediction"`
	FailureReason      string  `json:"failure_reason,omitempty"` // Machine-readable reason code
	FailureDescription string  `json:"failure_description,omitempty"`
}

// Gate 1 failure reason codes
const (
	ClaimFailureOpinion          = "opinion"
	ClaimFailureSpecificity      = "insufficient_specificity"
	ClaimFailureFuturePrediction = "future_prediction"
)

// InContext reports whether the claim is assigned to the given context
func (c Claim) InContext(contextID string) bool {
	for _, id := range c.ContextIDs {
		if id == contextID {
			return true
		}
	}
	return false
}

// Passed reports whether the claim cleared Gate 1 (unvalidated claims pass)
func (c Claim) Passed() bool {
	return c.Validation == nil || c.Validation.Passed
}
