package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/factlens/internal/contexts"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/llm/llmtest"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/search/searchtest"
)

const bridgeInput = "The Sydney Harbour Bridge opened to traffic in March 1932."

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	text, ok := f.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("unexpected status: 404 404 Not Found")
	}
	return &FetchResult{URL: rawURL, FinalURL: rawURL, Title: "Page " + rawURL, Text: text, StatusCode: 200}, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

var bridgeStatements = map[string]string{
	"https://history.example.org/bridge": "The bridge opened to traffic on 19 March 1932 after eight years of construction.",
	"https://records.gov.example/bridge": "Government heritage records list the official opening ceremony date as March 1932.",
	"https://engineering.example.edu/arch": "Engineering archives confirm the steel arch was joined in 1930, two years before opening.",
}

func sourceOf(user string) string {
	for _, line := range strings.Split(user, "\n") {
		if rest, ok := strings.CutPrefix(line, "Source: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// routedModel answers detection, extraction and refinement requests.
// Refinement always returns invalid output, which the pipeline treats as
// recoverable.
func routedModel(detection map[string]any) *llmtest.Provider {
	return llmtest.NewRouted("scripted", func(req llm.Request) llmtest.Reply {
		switch {
		case strings.HasPrefix(req.System, "You prepare an input"):
			return llmtest.JSON(detection)
		case strings.HasPrefix(req.System, "You extract evidence"):
			url := sourceOf(req.User)
			statement, ok := bridgeStatements[url]
			if !ok {
				return llmtest.JSON(map[string]any{"evidence": []any{}})
			}
			return llmtest.JSON(map[string]any{"evidence": []map[string]any{{
				"statement":      statement,
				"excerpt":        "Quoted passage from " + url + " about the opening.",
				"category":       "event",
				"direction":      "supports",
				"claimId":        "SC1",
				"probativeValue": "high",
			}}})
		default:
			return llmtest.Text("refinement unavailable")
		}
	})
}

func bridgeDetection(contextNames ...string) map[string]any {
	var ctxs []map[string]any
	for _, name := range contextNames {
		ctxs = append(ctxs, map[string]any{"name": name, "status": "concluded", "requiresSeparateAnalysis": true})
	}
	return map[string]any{
		"impliedClaim": "The Sydney Harbour Bridge opened in March 1932",
		"contexts":     ctxs,
		"claims": []map[string]any{{
			"text":       bridgeInput,
			"centrality": "high",
		}},
		"searchQueries": []string{"sydney harbour bridge opening date"},
	}
}

func bridgeResults() []search.Result {
	var out []search.Result
	for i, u := range []string{
		"https://history.example.org/bridge",
		"https://records.gov.example/bridge",
		"https://engineering.example.edu/arch",
	} {
		out = append(out, search.Result{URL: u, Title: "Result", Rank: i + 1, Provider: "fake"})
	}
	return out
}

func testPipelineConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Pipeline.Deterministic = true
	cfg.Pipeline.TargetEvidencePerContext = 3
	cfg.SourceReliability.Enabled = false
	return cfg
}

func TestRun_Succeeds(t *testing.T) {
	provider := routedModel(bridgeDetection("Sydney Harbour Bridge opening"))
	searcher := &searchtest.Provider{Results: bridgeResults()}
	fetcher := newFakeFetcher(map[string]string{
		"https://history.example.org/bridge":   "history page",
		"https://records.gov.example/bridge":   "records page",
		"https://engineering.example.edu/arch": "engineering page",
	})

	p := New(testPipelineConfig(), Options{
		Gateway:  llmtest.Gateway(provider),
		Searcher: searcher,
		Fetcher:  fetcher,
	})

	var progress []int
	report, err := p.Run(context.Background(), model.NewInput(bridgeInput), func(pct int, msg string) {
		progress = append(progress, pct)
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Status != model.StatusSucceeded {
		t.Fatalf("Expected SUCCEEDED, got %s (%s)", report.Status, report.Error)
	}
	if report.RunID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("Unexpected run metadata: %q %v %v", report.RunID, report.StartedAt, report.FinishedAt)
	}

	if len(report.Contexts) != 1 {
		t.Fatalf("Expected 1 context, got %d", len(report.Contexts))
	}
	ctxID := report.Contexts[0].ID

	var ids []string
	for _, e := range report.Evidence {
		ids = append(ids, e.ID)
		if e.ContextID != ctxID {
			t.Errorf("Evidence %s assigned to %s, want %s", e.ID, e.ContextID, ctxID)
		}
	}
	if got := strings.Join(ids, ","); got != "E1-1,E1-2,E1-3" {
		t.Errorf("Unexpected evidence ids: %s", got)
	}

	if len(report.Verdicts) != 1 || report.Verdicts[0].ContextID != ctxID {
		t.Fatalf("Expected one verdict for %s, got %+v", ctxID, report.Verdicts)
	}
	if len(report.Verdicts[0].SupportingEvidenceIDs) != 3 {
		t.Errorf("Expected 3 supporting items, got %v", report.Verdicts[0].SupportingEvidenceIDs)
	}

	if len(report.Sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(report.Sources))
	}
	for _, s := range report.Sources {
		if !s.Fetched || s.Evidence != 1 || s.Round != 1 {
			t.Errorf("Unexpected source snapshot: %+v", s)
		}
		if !s.Score.Default || s.Score.Score != 0.5 {
			t.Errorf("Expected neutral default score for %s, got %+v", s.URL, s.Score)
		}
	}

	if report.Budget.TotalRounds != 1 || report.Budget.Exhausted {
		t.Errorf("Unexpected budget: %+v", report.Budget)
	}
	if report.LLM.Calls < 4 {
		t.Errorf("Expected at least 4 model calls, got %d", report.LLM.Calls)
	}
	if len(report.Transitions) != 2 ||
		report.Transitions[0].Phase != contexts.PhaseUnderstand ||
		report.Transitions[1].Phase != contexts.PhaseRefinement {
		t.Errorf("Unexpected transitions: %+v", report.Transitions)
	}

	counter := false
	for _, q := range searcher.Queries() {
		if strings.HasSuffix(q, "criticism dispute") {
			counter = true
		}
	}
	if !counter {
		t.Errorf("Expected a counter-evidence query, got %v", searcher.Queries())
	}

	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Errorf("Expected progress to end at 100, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("Progress went backwards: %v", progress)
			break
		}
	}
}

func TestRun_URLInput(t *testing.T) {
	const articleURL = "https://news.example.com/story"
	provider := routedModel(bridgeDetection("Sydney Harbour Bridge opening"))
	results := append([]search.Result{{URL: articleURL, Title: "Own article"}}, bridgeResults()...)
	fetcher := newFakeFetcher(map[string]string{
		articleURL:                             bridgeInput,
		"https://history.example.org/bridge":   "history page",
		"https://records.gov.example/bridge":   "records page",
		"https://engineering.example.edu/arch": "engineering page",
	})

	p := New(testPipelineConfig(), Options{
		Gateway:  llmtest.Gateway(provider),
		Searcher: &searchtest.Provider{Results: results},
		Fetcher:  fetcher,
	})
	report, err := p.Analyze(context.Background(), model.NewInput(articleURL))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if report.Input.Text != bridgeInput || report.Input.URL != articleURL {
		t.Errorf("Unexpected input: %+v", report.Input)
	}
	if n := fetcher.count(articleURL); n != 1 {
		t.Errorf("Expected the input URL to be fetched once, got %d", n)
	}
	for _, s := range report.Sources {
		if s.URL == articleURL {
			t.Errorf("Input URL must not be used as a research source")
		}
	}
}

func TestRun_URLInputUnfetchable(t *testing.T) {
	p := New(testPipelineConfig(), Options{Fetcher: newFakeFetcher(nil)})

	report, err := p.Analyze(context.Background(), model.NewInput("https://missing.example.com/a"))
	if !errors.Is(err, ErrInputUnfetchable) {
		t.Fatalf("Expected ErrInputUnfetchable, got %v", err)
	}
	if report.Status != model.StatusFailed || report.Error == "" {
		t.Errorf("Expected FAILED with a reason, got %s %q", report.Status, report.Error)
	}
	if len(report.Verdicts) != 0 {
		t.Errorf("No verdicts may be fabricated for a failed run")
	}
}

func TestRun_EmptyInputFails(t *testing.T) {
	p := New(testPipelineConfig(), Options{})

	report, err := p.Analyze(context.Background(), model.NewInput("   "))
	if !errors.Is(err, contexts.ErrEmptyInput) {
		t.Fatalf("Expected ErrEmptyInput, got %v", err)
	}
	if report.Status != model.StatusFailed {
		t.Errorf("Expected FAILED, got %s", report.Status)
	}
}

func TestRun_Cancelled(t *testing.T) {
	provider := routedModel(bridgeDetection("Sydney Harbour Bridge opening"))
	p := New(testPipelineConfig(), Options{Gateway: llmtest.Gateway(provider)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.Analyze(ctx, model.NewInput(bridgeInput))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if report.Status != model.StatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", report.Status)
	}
	if provider.CallCount() != 0 {
		t.Errorf("Expected no model calls after cancellation, got %d", provider.CallCount())
	}
}

func TestRun_WithoutModelFails(t *testing.T) {
	p := New(testPipelineConfig(), Options{
		Searcher: &searchtest.Provider{Results: bridgeResults()},
		Fetcher:  newFakeFetcher(nil),
	})

	report, err := p.Analyze(context.Background(), model.NewInput(bridgeInput))
	if !errors.Is(err, llm.ErrNoProviders) {
		t.Fatalf("Expected ErrNoProviders, got %v", err)
	}
	if report.Status != model.StatusFailed {
		t.Errorf("Expected FAILED, got %s", report.Status)
	}
	if len(report.Verdicts) != 0 {
		t.Errorf("No verdicts may be fabricated without a model, got %d", len(report.Verdicts))
	}
}

func TestRun_ProvidersExhaustedDuringResearchFails(t *testing.T) {
	provider := llmtest.NewRouted("scripted", func(req llm.Request) llmtest.Reply {
		if strings.HasPrefix(req.System, "You prepare an input") {
			return llmtest.JSON(bridgeDetection("Sydney Harbour Bridge opening"))
		}
		return llmtest.Fail(errors.New("503 service unavailable"))
	})
	p := New(testPipelineConfig(), Options{
		Gateway:  llmtest.Gateway(provider),
		Searcher: &searchtest.Provider{Results: bridgeResults()},
		Fetcher: newFakeFetcher(map[string]string{
			"https://history.example.org/bridge":   "history page",
			"https://records.gov.example/bridge":   "records page",
			"https://engineering.example.edu/arch": "engineering page",
		}),
	})

	report, err := p.Analyze(context.Background(), model.NewInput(bridgeInput))
	if !errors.Is(err, llm.ErrProvidersExhausted) {
		t.Fatalf("Expected ErrProvidersExhausted, got %v", err)
	}
	if report.Status != model.StatusFailed {
		t.Errorf("Expected FAILED, got %s", report.Status)
	}
	if len(report.Verdicts) != 0 {
		t.Errorf("No verdicts may be fabricated after losing every provider, got %d", len(report.Verdicts))
	}
}

func TestRun_ConcurrentRoundsShareURLs(t *testing.T) {
	provider := routedModel(bridgeDetection("Sydney Harbour Bridge opening", "Bridge toll history"))
	fetcher := newFakeFetcher(map[string]string{
		"https://history.example.org/bridge":   "history page",
		"https://records.gov.example/bridge":   "records page",
		"https://engineering.example.edu/arch": "engineering page",
	})
	cfg := testPipelineConfig()
	cfg.Concurrency.ContextWorkers = 2

	p := New(cfg, Options{
		Gateway:  llmtest.Gateway(provider),
		Searcher: &searchtest.Provider{Results: bridgeResults()},
		Fetcher:  fetcher,
	})
	if _, err := p.Analyze(context.Background(), model.NewInput(bridgeInput)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, r := range bridgeResults() {
		if n := fetcher.count(r.URL); n != 1 {
			t.Errorf("Expected %s fetched once across concurrent rounds, got %d", r.URL, n)
		}
	}
}

func TestURLSetReservesOnce(t *testing.T) {
	s := newURLSet()
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.reserve("https://a.example") {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("Expected exactly one reservation, got %d", won)
	}
}

func TestRun_BudgetStopsResearch(t *testing.T) {
	provider := routedModel(bridgeDetection("Sydney Harbour Bridge opening", "Bridge toll history"))
	cfg := testPipelineConfig()
	cfg.Pipeline.MaxTotalIterations = 1

	p := New(cfg, Options{
		Gateway:  llmtest.Gateway(provider),
		Searcher: &searchtest.Provider{Results: bridgeResults()},
		Fetcher: newFakeFetcher(map[string]string{
			"https://history.example.org/bridge":   "history page",
			"https://records.gov.example/bridge":   "records page",
			"https://engineering.example.edu/arch": "engineering page",
		}),
	})
	report, err := p.Analyze(context.Background(), model.NewInput(bridgeInput))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	b := report.Budget
	if b.TotalRounds != 1 || !b.Exhausted || b.ExhaustedReason != LimitTotalIterations || b.RoundsDenied != 1 {
		t.Errorf("Unexpected budget snapshot: %+v", b)
	}
	n := 0
	for _, w := range report.Warnings {
		if w.Code == model.WarnBudgetExhausted {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected exactly one budget warning, got %d", n)
	}
}

func TestPlanQueries(t *testing.T) {
	p := New(testPipelineConfig(), Options{})
	c := model.AnalysisContext{ID: "CTX_00000001", Name: "Bridge opening", Subject: "Sydney Harbour Bridge"}
	u := contexts.Understanding{
		ImpliedClaim: "The bridge opened in 1932",
		Queries:      []string{"bridge opening date"},
	}

	used := make(map[string]bool)
	first := p.planQueries(c, u, used)
	want := []string{
		"Bridge opening The bridge opened in 1932",
		"bridge opening date",
		"The bridge opened in 1932 criticism dispute",
	}
	if strings.Join(first, "|") != strings.Join(want, "|") {
		t.Errorf("planQueries() = %q, want %q", first, want)
	}

	for _, q := range first {
		used[q] = true
	}
	second := p.planQueries(c, u, used)
	if len(second) != 3 {
		t.Fatalf("Expected 3 fresh queries, got %q", second)
	}
	for _, q := range second {
		if used[q] {
			t.Errorf("Query %q reused", q)
		}
	}
}

func TestCountEvidence(t *testing.T) {
	sources := []model.SourceSnapshot{{URL: "https://a.example"}, {URL: "https://b.example"}}
	evidence := []model.EvidenceItem{
		{ID: "E1-1", SourceURL: "https://a.example"},
		{ID: "E1-2", SourceURL: "https://a.example"},
	}
	got := countEvidence(sources, evidence)
	if got[0].Evidence != 2 || got[1].Evidence != 0 {
		t.Errorf("Unexpected counts: %+v", got)
	}
	if sources[0].Evidence != 0 {
		t.Error("countEvidence must not modify its input")
	}
}

func hasWarning(warnings []model.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
