package search

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// GoogleProvider queries the Google Programmable Search (Custom Search JSON) API
type GoogleProvider struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleProvider creates a Google provider. Extra client options are
// appended after the API key (used for endpoint overrides).
func NewGoogleProvider(ctx context.Context, apiKey, cx string, extra ...option.ClientOption) (*GoogleProvider, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("google search requires an API key and a search engine id (cx)")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}
	return &GoogleProvider{svc: svc, cx: cx}, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string { return "google" }

// Search runs one query. The API caps a page at 10 results.
func (p *GoogleProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	num := int64(opts.MaxResults)
	if num <= 0 || num > 10 {
		num = 10
	}

	call := p.svc.Cse.List().Cx(p.cx).Q(query).Num(num).Context(ctx)
	if opts.DateRestrict != "" {
		call = call.DateRestrict(opts.DateRestrict)
	}
	if len(opts.DomainWhitelist) == 1 {
		call = call.SiteSearch(opts.DomainWhitelist[0]).SiteSearchFilter("i")
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("customsearch: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for i, item := range resp.Items {
		results = append(results, Result{
			URL:      item.Link,
			Title:    item.Title,
			Snippet:  item.Snippet,
			Rank:     i + 1,
			Provider: p.Name(),
		})
	}
	return results, nil
}
