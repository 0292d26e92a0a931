// Package search wraps web search providers behind one interface.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/factlens/internal/metrics"
	"go.uber.org/zap"
)

// ErrNoProviders is returned by an empty chain
var ErrNoProviders = errors.New("no search providers configured")

// Provider runs web searches
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Options narrows a search
type Options struct {
	MaxResults      int
	DomainWhitelist []string
	DomainBlacklist []string
	DateRestrict    string   // Provider date filter, e.g. "y1" or "m6"
	ExcludeURLs     []string // Results pointing at these URLs are dropped
}

// Result is one search hit
type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Rank     int    `json:"rank"`
	Provider string `json:"provider"`
}

// Chain tries providers in order until one answers, then filters results
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a fallback chain
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}
}

// Name returns the chain's provider names
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// Len returns the number of providers in the chain
func (c *Chain) Len() int { return len(c.providers) }

// Search returns filtered results from the first provider that succeeds
func (c *Chain) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error
	for _, p := range c.providers {
		results, err := p.Search(ctx, query, opts)
		if err != nil {
			metrics.SearchQueries.WithLabelValues(p.Name(), "error").Inc()
			c.logger.Warn("search provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		metrics.SearchQueries.WithLabelValues(p.Name(), "success").Inc()
		return Filter(results, opts), nil
	}
	return nil, errors.Join(errs...)
}

// Filter applies domain lists, URL exclusions, dedup and the result cap
func Filter(results []Result, opts Options) []Result {
	exclude := make(map[string]bool, len(opts.ExcludeURLs))
	for _, u := range opts.ExcludeURLs {
		exclude[normalizeURL(u)] = true
	}

	seen := make(map[string]bool)
	out := make([]Result, 0, len(results))
	for _, r := range results {
		key := normalizeURL(r.URL)
		if key == "" || seen[key] || exclude[key] {
			continue
		}
		host := Hostname(r.URL)
		if len(opts.DomainWhitelist) > 0 && !MatchesDomain(host, opts.DomainWhitelist) {
			continue
		}
		if MatchesDomain(host, opts.DomainBlacklist) {
			continue
		}
		seen[key] = true
		r.Rank = len(out) + 1
		out = append(out, r)
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
	}
	return out
}

// Hostname returns the lowercased host of rawURL without a www. prefix
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// MatchesDomain reports whether host equals or is a subdomain of any listed domain
func MatchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return strings.TrimSuffix(u.Host+u.EscapedPath(), "/") + "?" + u.RawQuery
}
