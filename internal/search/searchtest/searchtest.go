// Package searchtest provides a fake search provider for tests.
package searchtest

import (
	"context"
	"sync"

	"github.com/ppiankov/factlens/internal/search"
)

// Provider answers queries through Handler, or returns Results for every query
type Provider struct {
	mu      sync.Mutex
	queries []string

	// Results is returned for every query when Handler is nil
	Results []search.Result

	// Handler, when set, answers each query
	Handler func(query string) ([]search.Result, error)
}

// Name returns the provider name
func (p *Provider) Name() string { return "fake" }

// Search records the query and returns the configured answer
func (p *Provider) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()

	if p.Handler != nil {
		return p.Handler(query)
	}
	out := make([]search.Result, len(p.Results))
	copy(out, p.Results)
	return out, nil
}

// Queries returns every query received
func (p *Provider) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queries))
	copy(out, p.queries)
	return out
}
