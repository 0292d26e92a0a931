package model

// TruthLabel is a point on the symmetric seven-point scale, plus UNVERIFIED
type TruthLabel string

const (
	LabelTrue         TruthLabel = "TRUE"
	LabelMostlyTrue   TruthLabel = "MOSTLY-TRUE"
	LabelLeaningTrue  TruthLabel = "LEANING-TRUE"
	LabelMixed        TruthLabel = "MIXED"
	LabelUnverified   TruthLabel = "UNVERIFIED"
	LabelLeaningFalse TruthLabel = "LEANING-FALSE"
	LabelMostlyFalse  TruthLabel = "MOSTLY-FALSE"
	LabelFalse        TruthLabel = "FALSE"
)

// ConfidenceTier is the Gate 4 publishability tier
type ConfidenceTier string

const (
	TierHigh         ConfidenceTier = "HIGH"
	TierMedium       ConfidenceTier = "MEDIUM"
	TierLow          ConfidenceTier = "LOW"
	TierInsufficient ConfidenceTier = "INSUFFICIENT"
)

// Publishable reports whether verdicts at this tier may be published
func (t ConfidenceTier) Publishable() bool {
	return t == TierHigh || t == TierMedium
}

// Verdict is the aggregated result for one analysis context. Created once, never mutated.
type Verdict struct {
	ContextID                string         `json:"context_id"`
	ContextName              string         `json:"context_name"`
	Label                    TruthLabel     `json:"label"`
	TruthPercentage          int            `json:"truth_percentage"` // 0..100
	Confidence               int            `json:"confidence"`       // 0..100
	Tier                     ConfidenceTier `json:"tier"`
	Publishable              bool           `json:"publishable"`
	WithheldReasons          []string       `json:"withheld_reasons,omitempty"`
	Contested                bool           `json:"contested"`
	SupportingEvidenceIDs    []string       `json:"supporting_evidence_ids"`
	ContradictingEvidenceIDs []string       `json:"contradicting_evidence_ids"`
	ClaimVerdicts            []ClaimVerdict `json:"claim_verdicts,omitempty"`
	Signals                  []Signal       `json:"signals"`
}

// ClaimVerdict is the per-claim bucket result inside a context verdict
type ClaimVerdict struct {
	ClaimID         string     `json:"claim_id"`
	TruthPercentage int        `json:"truth_percentage"`
	Label           TruthLabel `json:"label"`
	Supporting      int        `json:"supporting"`
	Contradicting   int        `json:"contradicting"`
	Propagated      bool       `json:"propagated,omitempty"` // Capped by a failing dependency
	Skipped         string     `json:"skipped,omitempty"`    // Gate 1 failure reason
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`           // Signal classification
	Severity    SignalSeverity `json:"severity"`       // info, warning, critical
	Description string         `json:"description"`    // Human-readable description
	Data        map[string]any `json:"data,omitempty"` // Transparent scoring data (formulas, inputs)
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalWeighting      SignalType = "weighting"       // Weighted support vs contradiction
	SignalClaimBuckets   SignalType = "claim_buckets"   // Centrality-weighted bucket mean
	SignalDependency     SignalType = "dependency"      // Dependency propagation applied
	SignalContestation   SignalType = "contestation"    // Contestation penalty
	SignalConfidence     SignalType = "confidence"      // Numeric confidence breakdown
	SignalQualityGate    SignalType = "quality_gate"    // Gate 4 tier inputs
	SignalNoDirectional  SignalType = "no_directional"  // Only neutral evidence found
	SignalLowReliability SignalType = "low_reliability" // Sources evaluated with low confidence
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
