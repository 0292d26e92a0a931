package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type stubProvider struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	s.calls++
	return s.results, s.err
}

func TestFilter(t *testing.T) {
	results := []Result{
		{URL: "https://www.reuters.com/a"},
		{URL: "https://reuters.com/a/"},
		{URL: "https://spam.example/b"},
		{URL: "https://news.bbc.co.uk/c"},
		{URL: "https://article.example.org/self"},
		{URL: "not a url"},
	}

	got := Filter(results, Options{
		DomainBlacklist: []string{"spam.example"},
		ExcludeURLs:     []string{"https://article.example.org/self#top"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.reuters.com/a", got[0].URL)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "https://news.bbc.co.uk/c", got[1].URL)
	assert.Equal(t, 2, got[1].Rank)

	got = Filter(results, Options{DomainWhitelist: []string{"bbc.co.uk"}})
	require.Len(t, got, 1)
	assert.Equal(t, "https://news.bbc.co.uk/c", got[0].URL)

	got = Filter(results, Options{MaxResults: 1})
	assert.Len(t, got, 1)
}

func TestChainFallsBack(t *testing.T) {
	failing := &stubProvider{name: "google", err: errors.New("quota")}
	working := &stubProvider{name: "serpapi", results: []Result{{URL: "https://a.example/1"}}}
	chain := NewChain(nil, failing, working)

	got, err := chain.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, "google,serpapi", chain.Name())
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(nil, &stubProvider{name: "a", err: errors.New("x")})
	_, err := chain.Search(context.Background(), "q", Options{})
	assert.Error(t, err)

	_, err = NewChain(nil).Search(context.Background(), "q", Options{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestSerpAPIProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "court ruling", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "qdr:y1", r.URL.Query().Get("tbs"))
		_, _ = w.Write([]byte(`{"organic_results":[
			{"position":1,"title":"Ruling","link":"https://court.example/r","snippet":"The court ruled"},
			{"position":2,"title":"Appeal","link":"https://news.example/a","snippet":"On appeal"}
		]}`))
	}))
	defer server.Close()

	p, err := NewSerpAPIProvider("key", server.URL, 0)
	require.NoError(t, err)

	got, err := p.Search(context.Background(), "court ruling", Options{MaxResults: 5, DateRestrict: "y1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://court.example/r", got[0].URL)
	assert.Equal(t, "serpapi", got[0].Provider)
}

func TestSerpAPIProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer server.Close()

	p, _ := NewSerpAPIProvider("bad", server.URL, 0)
	_, err := p.Search(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestGoogleProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cx-id", r.URL.Query().Get("cx"))
		assert.Equal(t, "vaccine trial", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"link": "https://journal.example/study", "title": "Study", "snippet": "Results"},
			},
		})
	}))
	defer server.Close()

	p, err := NewGoogleProvider(context.Background(), "key", "cx-id",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	got, err := p.Search(context.Background(), "vaccine trial", Options{MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://journal.example/study", got[0].URL)
	assert.Equal(t, "google", got[0].Provider)
}

func TestSerpDateFilter(t *testing.T) {
	assert.Equal(t, "qdr:m6", serpDateFilter("m6"))
	assert.Equal(t, "", serpDateFilter("x1"))
	assert.Equal(t, "", serpDateFilter(""))
}
