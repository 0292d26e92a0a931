package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
)

// ErrBudgetExhausted is returned when a research round may not start or, in
// hard mode, may not continue
var ErrBudgetExhausted = errors.New("research budget exhausted")

// Budget limit names
const (
	LimitTotalIterations   = "max_total_iterations"
	LimitContextIterations = "max_iterations_per_context"
	LimitTokens            = "max_total_tokens"
)

// Budget enforces iteration and token limits across the research phase.
// It is safe for concurrent use.
type Budget struct {
	mu            sync.Mutex
	maxPerContext int
	maxTotal      int
	maxTokens     int
	hard          bool
	tokens        func() int

	rounds    map[string]int
	total     int
	exhausted string
	denied    int
	abandoned int
}

// NewBudget creates a budget. tokens reports the tokens used so far by the
// run; nil disables the token limit.
func NewBudget(cfg model.PipelineConfig, tokens func() int) *Budget {
	return &Budget{
		maxPerContext: cfg.MaxIterationsPerContext,
		maxTotal:      cfg.MaxTotalIterations,
		maxTokens:     cfg.MaxTotalTokens,
		hard:          cfg.HardBudget,
		tokens:        tokens,
		rounds:        make(map[string]int),
	}
}

// TryStartRound reserves a research round for a context and returns its
// run-wide round number, starting at 1. A zero limit means unlimited.
func (b *Budget) TryStartRound(contextID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit := b.checkLocked(); limit != "" {
		b.denied++
		return 0, fmt.Errorf("%w: %s", ErrBudgetExhausted, limit)
	}
	if b.maxPerContext > 0 && b.rounds[contextID] >= b.maxPerContext {
		b.denied++
		return 0, fmt.Errorf("%w: %s for %s", ErrBudgetExhausted, LimitContextIterations, contextID)
	}

	b.total++
	b.rounds[contextID]++
	return b.total, nil
}

// Continue reports whether an in-flight round may take its next external
// step. Soft budgets always let a started round finish.
func (b *Budget) Continue() error {
	if !b.hard {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit := b.tokenLimitLocked(); limit != "" {
		return fmt.Errorf("%w: %s", ErrBudgetExhausted, limit)
	}
	return nil
}

// Abandon records a round stopped midway by a hard budget
func (b *Budget) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abandoned++
}

// Exhausted reports whether no further round can start for any context
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkLocked() != ""
}

// Rounds returns the number of rounds started for a context
func (b *Budget) Rounds(contextID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rounds[contextID]
}

// checkLocked returns the run-wide limit that is hit, or "". The first
// hit is latched and counted once.
func (b *Budget) checkLocked() string {
	if b.exhausted != "" {
		return b.exhausted
	}
	limit := b.tokenLimitLocked()
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		limit = LimitTotalIterations
	}
	if limit != "" {
		b.exhausted = limit
		metrics.BudgetExhausted.WithLabelValues(limit).Inc()
	}
	return limit
}

func (b *Budget) tokenLimitLocked() string {
	if b.maxTokens > 0 && b.tokens != nil && b.tokens() >= b.maxTokens {
		return LimitTokens
	}
	return ""
}

// Snapshot returns the budget state for the report
func (b *Budget) Snapshot() model.BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	mode := "soft"
	if b.hard {
		mode = "hard"
	}
	snap := model.BudgetSnapshot{
		Mode:            mode,
		RoundsByContext: make(map[string]int, len(b.rounds)),
		TotalRounds:     b.total,
		MaxTotalRounds:  b.maxTotal,
		MaxPerContext:   b.maxPerContext,
		MaxTokens:       b.maxTokens,
		Exhausted:       b.exhausted != "",
		ExhaustedReason: b.exhausted,
		RoundsDenied:    b.denied,
		RoundsAbandoned: b.abandoned,
	}
	if b.tokens != nil {
		snap.TokensUsed = b.tokens()
	}
	for id, n := range b.rounds {
		snap.RoundsByContext[id] = n
	}
	return snap
}
