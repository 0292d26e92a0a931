package llm

import (
	"context"
	"sync"
)

// Meter counts model calls and tokens for one analysis run
type Meter struct {
	mu         sync.Mutex
	calls      int
	tokens     int
	byProvider map[string]int
}

// NewMeter creates an empty meter
func NewMeter() *Meter {
	return &Meter{byProvider: make(map[string]int)}
}

// Record adds one successful call
func (m *Meter) Record(provider string, tokens int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.tokens += tokens
	m.byProvider[provider]++
}

// Tokens returns the tokens consumed so far
func (m *Meter) Tokens() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Snapshot returns calls, tokens, and per-provider call counts
func (m *Meter) Snapshot() (calls, tokens int, byProvider map[string]int) {
	if m == nil {
		return 0, 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byProvider = make(map[string]int, len(m.byProvider))
	for k, v := range m.byProvider {
		byProvider[k] = v
	}
	return m.calls, m.tokens, byProvider
}

type meterKey struct{}

// WithMeter attaches a meter to ctx; every gateway call under ctx is recorded on it
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the meter attached to ctx, or nil
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}
