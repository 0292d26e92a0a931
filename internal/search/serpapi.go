package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SerpAPIProvider queries SerpAPI's Google engine
type SerpAPIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

// NewSerpAPIProvider creates a SerpAPI provider
func NewSerpAPIProvider(apiKey, baseURL string, timeout time.Duration) (*SerpAPIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi requires an API key")
	}
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SerpAPIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name
func (p *SerpAPIProvider) Name() string { return "serpapi" }

// Search runs one query
func (p *SerpAPIProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", p.apiKey)
	if opts.MaxResults > 0 {
		params.Set("num", strconv.Itoa(opts.MaxResults))
	}
	if tbs := serpDateFilter(opts.DateRestrict); tbs != "" {
		params.Set("tbs", tbs)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error (%d): %s", resp.StatusCode, parsed.Error)
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		results = append(results, Result{
			URL:      r.Link,
			Title:    r.Title,
			Snippet:  r.Snippet,
			Rank:     r.Position,
			Provider: p.Name(),
		})
	}
	return results, nil
}

// serpDateFilter maps a Custom Search style restriction ("d7", "m6", "y1")
// to Google's tbs=qdr parameter
func serpDateFilter(restrict string) string {
	if len(restrict) < 2 {
		return ""
	}
	unit := restrict[:1]
	switch unit {
	case "d", "w", "m", "y":
		if _, err := strconv.Atoi(restrict[1:]); err != nil {
			return ""
		}
		return "qdr:" + unit + restrict[1:]
	default:
		return ""
	}
}
