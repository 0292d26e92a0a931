package model

import (
	"strings"
	"time"
)

// Report represents the complete result of one analysis run.
// It round-trips through JSON without loss.
type Report struct {
	RunID        string    `json:"run_id"`                  // UUID of the run
	Status       RunStatus `json:"status"`                  // SUCCEEDED, FAILED, CANCELLED
	Error        string    `json:"error,omitempty"`         // Human-readable failure reason
	Input        Input     `json:"input"`                   // What was analyzed
	ImpliedClaim string    `json:"implied_claim,omitempty"` // Single proposition the input asserts
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`

	Contexts    []AnalysisContext   `json:"contexts"`
	Claims      []Claim             `json:"claims"`
	Evidence    []EvidenceItem      `json:"evidence"`
	Rejected    []EvidenceRejection `json:"rejected,omitempty"`
	Sources     []SourceSnapshot    `json:"sources,omitempty"`
	Verdicts    []Verdict           `json:"verdicts"` // Ordered by context id
	Transitions []ContextTransition `json:"transitions"`

	Budget   BudgetSnapshot `json:"budget"`
	LLM      LLMUsage       `json:"llm"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// Input describes the analyzed article, question, or claim
type Input struct {
	Kind Kind   `json:"kind"`          // text, question, url
	Text string `json:"text"`          // Text actually analyzed
	URL  string `json:"url,omitempty"` // Set for URL inputs
}

// NewInput classifies raw user input as a URL, a question or plain text
func NewInput(raw string) Input {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case (strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) && !strings.ContainsAny(raw, " \t\n"):
		return Input{Kind: KindURL, URL: raw}
	case strings.HasSuffix(raw, "?"):
		return Input{Kind: KindQuestion, Text: raw}
	default:
		return Input{Kind: KindText, Text: raw}
	}
}

// Kind classifies the raw input
type Kind string

const (
	KindText     Kind = "text"
	KindQuestion Kind = "question"
	KindURL      Kind = "url"
)

// RunStatus is the lifecycle state reported to the job store
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusSucceeded RunStatus = "SUCCEEDED"
	StatusFailed    RunStatus = "FAILED"
	StatusCancelled RunStatus = "CANCELLED"
)

// BudgetSnapshot records research budget consumption at the end of a run
type BudgetSnapshot struct {
	Mode            string         `json:"mode"` // soft or hard
	RoundsByContext map[string]int `json:"rounds_by_context"`
	TotalRounds     int            `json:"total_rounds"`
	MaxTotalRounds  int            `json:"max_total_rounds"`
	MaxPerContext   int            `json:"max_per_context"`
	TokensUsed      int            `json:"tokens_used"`
	MaxTokens       int            `json:"max_tokens"`
	Exhausted       bool           `json:"exhausted"`
	ExhaustedReason string         `json:"exhausted_reason,omitempty"`
	RoundsDenied    int            `json:"rounds_denied,omitempty"`
	RoundsAbandoned int            `json:"rounds_abandoned,omitempty"` // Hard mode aborts
}

// LLMUsage counts model calls made during a run
type LLMUsage struct {
	Calls      int            `json:"calls"`
	Tokens     int            `json:"tokens"`
	ByProvider map[string]int `json:"by_provider,omitempty"`
}

// Warning is a recoverable condition recorded during a run
type Warning struct {
	Phase   string `json:"phase"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes
const (
	WarnSchemaViolation  = "schema_violation"
	WarnSearchFailed     = "search_failed"
	WarnFetchFailed      = "fetch_failed"
	WarnExtractFailed    = "extract_failed"
	WarnBudgetExhausted  = "budget_exhausted"
	WarnHeuristicClaims  = "heuristic_claims"
	WarnSeedFallback     = "seed_fallback"
	WarnLLMUnavailable   = "llm_unavailable"
	WarnForcedSeeds      = "forced_seeds"
	WarnSourceEvaluation = "source_evaluation_failed"
)

// VerdictFor returns the verdict for the given context id
func (r *Report) VerdictFor(contextID string) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.ContextID == contextID {
			return v, true
		}
	}
	return Verdict{}, false
}
