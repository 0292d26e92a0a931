package model

import "time"

// CachedScore is a domain's reliability score as held by the source
// reliability cache. Analysis reads scores, never writes them.
type CachedScore struct {
	Domain        string    `json:"domain"`
	Score         float64   `json:"score"`      // 0..1
	Confidence    float64   `json:"confidence"` // 0..1
	Consensus     bool      `json:"consensus"`  // Primary and secondary model agreed
	Models        []string  `json:"models,omitempty"`
	Reasoning     string    `json:"reasoning,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	Skipped       bool      `json:"skipped,omitempty"` // Importance filter declined to evaluate
	Default       bool      `json:"default,omitempty"` // Synthesized default, never stored
	EvaluatedAt   time.Time `json:"evaluated_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the score is past its expiry at the given time
func (s CachedScore) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SourceSnapshot is the reliability view of one source recorded in a report
type SourceSnapshot struct {
	URL        string      `json:"url"`
	Domain     string      `json:"domain"`
	Title      string      `json:"title,omitempty"`
	SourceType SourceType  `json:"source_type"`
	Fetched    bool        `json:"fetched"`
	Truncated  bool        `json:"truncated,omitempty"`
	Error      string      `json:"error,omitempty"`
	Round      int         `json:"round"`
	ContextID  string      `json:"context_id,omitempty"`
	Evidence   int         `json:"evidence"` // Accepted items from this source
	Score      CachedScore `json:"reliability"`
}
