package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/contexts"
	"github.com/ppiankov/factlens/internal/extract"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/sourcerel"
	"github.com/ppiankov/factlens/internal/worker"
)

const (
	defaultTargetEvidence  = 6
	defaultQueriesPerRound = 3
	defaultSourcesPerQuery = 3
)

type researchInput struct {
	text     string
	excluded string // URL of the input document, never used as a source
	u        contexts.Understanding
	budget   *Budget
	progress ProgressFunc
}

type researchResult struct {
	evidence []model.EvidenceItem
	rejected []model.EvidenceRejection
	sources  []model.SourceSnapshot
	warnings []model.Warning
}

type roundPlan struct {
	context model.AnalysisContext
	round   int
	queries []string
}

type roundOutput struct {
	items     []model.EvidenceItem
	sources   []model.SourceSnapshot
	warnings  []model.Warning
	fetched   int
	abandoned bool
}

// urlSet reserves source URLs across the concurrent rounds of a run
type urlSet struct {
	mu   sync.Mutex
	urls map[string]bool
}

func newURLSet() *urlSet {
	return &urlSet{urls: make(map[string]bool)}
}

// reserve marks url as taken and reports whether it was still free
func (s *urlSet) reserve(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.urls[url] {
		return false
	}
	s.urls[url] = true
	return true
}

// research runs rounds in waves until every context has enough evidence,
// the budget denies further rounds, or a context stops finding new sources.
// Rounds of one wave run concurrently; their results merge in plan order.
// Losing every model provider ends research with an error.
func (p *Pipeline) research(ctx context.Context, in researchInput) (researchResult, error) {
	var res researchResult
	if p.searcher == nil || p.fetcher == nil {
		res.warnings = append(res.warnings, researchWarning(model.WarnSearchFailed, "no search or fetch backend configured, research skipped"))
		return res, nil
	}

	target := p.cfg.Pipeline.TargetEvidencePerContext
	if target <= 0 {
		target = defaultTargetEvidence
	}
	ordered := in.u.Contexts.SortedByID()
	contextIDs := in.u.Contexts.IDs()

	usedQueries := make(map[string]bool)
	seen := make(map[string]bool)
	reserved := newURLSet()
	if in.excluded != "" {
		seen[in.excluded] = true
		reserved.reserve(in.excluded)
	}
	counts := make(map[string]int)
	stalled := make(map[string]bool)
	nextID := make(map[int]int)
	evaluated := make(map[string]bool)
	budgetWarned := false

	for wave := 1; ; wave++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var plans []roundPlan
		for _, c := range ordered {
			if counts[c.ID] >= target || stalled[c.ID] {
				continue
			}
			queries := p.planQueries(c, in.u, usedQueries)
			if len(queries) == 0 {
				stalled[c.ID] = true
				continue
			}
			round, err := in.budget.TryStartRound(c.ID)
			if err != nil {
				metrics.ResearchRounds.WithLabelValues("denied").Inc()
				p.logger.Debug("research round denied", zap.String("context", c.ID), zap.Error(err))
				if in.budget.Exhausted() {
					if !budgetWarned {
						res.warnings = append(res.warnings, researchWarning(model.WarnBudgetExhausted, err.Error()))
						budgetWarned = true
					}
					break
				}
				stalled[c.ID] = true
				continue
			}
			for _, q := range queries {
				usedQueries[q] = true
			}
			plans = append(plans, roundPlan{context: c, round: round, queries: queries})
		}
		if len(plans) == 0 {
			break
		}

		tasks := make([]worker.Task[roundOutput], len(plans))
		for i, plan := range plans {
			tasks[i] = func(ctx context.Context) (roundOutput, error) {
				return p.runRound(ctx, plan, in, contextIDs, reserved)
			}
		}
		outcomes := worker.Run(ctx, p.cfg.Concurrency.ContextWorkers, tasks)
		if err := ctx.Err(); err != nil {
			return res, err
		}

		for _, o := range outcomes {
			if errors.Is(o.Err, llm.ErrProvidersExhausted) {
				return res, o.Err
			}
		}

		var newDomains []string
		for i, o := range outcomes {
			plan := plans[i]
			if o.Err != nil {
				metrics.ResearchRounds.WithLabelValues("failed").Inc()
				res.warnings = append(res.warnings, researchWarning(model.WarnSearchFailed,
					fmt.Sprintf("round %d for %s: %v", plan.round, plan.context.ID, o.Err)))
				stalled[plan.context.ID] = true
				continue
			}
			out := o.Value
			switch {
			case out.abandoned:
				in.budget.Abandon()
				metrics.ResearchRounds.WithLabelValues("abandoned").Inc()
			default:
				metrics.ResearchRounds.WithLabelValues("completed").Inc()
			}

			numbered := extract.NumberEvidence(out.items, plan.round, nextID[plan.round])
			nextID[plan.round] += len(numbered)
			accepted, rejected := p.filter.Apply(res.evidence, numbered)
			res.evidence = append(res.evidence, accepted...)
			res.rejected = append(res.rejected, rejected...)
			for _, item := range accepted {
				counts[item.ContextID]++
			}

			for _, s := range out.sources {
				if seen[s.URL] {
					continue
				}
				seen[s.URL] = true
				res.sources = append(res.sources, s)
				if s.Fetched && s.Domain != "" && !evaluated[s.Domain] {
					evaluated[s.Domain] = true
					newDomains = append(newDomains, s.Domain)
				}
			}
			res.warnings = append(res.warnings, out.warnings...)
			if out.fetched == 0 {
				stalled[plan.context.ID] = true
			}

			p.logger.Info("research round complete",
				zap.Int("round", plan.round),
				zap.String("context", plan.context.ID),
				zap.Strings("queries", plan.queries),
				zap.Int("fetched", out.fetched),
				zap.Int("accepted", len(accepted)),
				zap.Int("rejected", len(rejected)))
		}

		p.prefetchReliability(ctx, newDomains)
		in.progress(researchProgress(in.budget, wave), fmt.Sprintf("research wave %d: %d evidence items", wave, len(res.evidence)))

		if in.budget.Exhausted() {
			if !budgetWarned {
				snap := in.budget.Snapshot()
				res.warnings = append(res.warnings, researchWarning(model.WarnBudgetExhausted, "research stopped: "+snap.ExhaustedReason))
			}
			break
		}
	}
	return res, nil
}

// runRound searches, fetches and extracts for one context. A hit is used
// only if this round reserves its URL first.
func (p *Pipeline) runRound(ctx context.Context, plan roundPlan, in researchInput, contextIDs []string, reserved *urlSet) (roundOutput, error) {
	var out roundOutput
	opts := search.OptionsFromConfig(p.cfg.Search)
	opts.MaxResults = p.cfg.Pipeline.SourcesPerQuery
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultSourcesPerQuery
	}
	if in.excluded != "" {
		opts.ExcludeURLs = []string{in.excluded}
	}

	var hits []search.Result
	var searchErrs []error
	for _, q := range plan.queries {
		if err := in.budget.Continue(); err != nil {
			out.abandoned = true
			return out, nil
		}
		results, err := p.searcher.Search(ctx, q, opts)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			searchErrs = append(searchErrs, fmt.Errorf("%q: %w", q, err))
			continue
		}
		for _, r := range results {
			if reserved.reserve(r.URL) {
				hits = append(hits, r)
			}
		}
	}
	if len(searchErrs) == len(plan.queries) && len(searchErrs) > 0 {
		return out, errors.Join(searchErrs...)
	}
	for _, err := range searchErrs {
		out.warnings = append(out.warnings, researchWarning(model.WarnSearchFailed, err.Error()))
	}

	claims := claimsIn(in.u.Claims, plan.context.ID)
	for _, hit := range hits {
		if err := in.budget.Continue(); err != nil {
			out.abandoned = true
			break
		}
		snap := model.SourceSnapshot{
			URL:       hit.URL,
			Domain:    sourcerel.NormalizeDomain(hit.URL),
			Title:     hit.Title,
			Round:     plan.round,
			ContextID: plan.context.ID,
		}

		page, err := p.fetcher.FetchWithRetry(ctx, hit.URL)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			snap.Error = err.Error()
			out.sources = append(out.sources, snap)
			out.warnings = append(out.warnings, researchWarning(model.WarnFetchFailed, fmt.Sprintf("%s: %v", hit.URL, err)))
			continue
		}
		snap.Fetched = true
		snap.Truncated = page.Truncated
		if page.Title != "" {
			snap.Title = page.Title
		}
		out.fetched++

		// Issued model calls run to completion; cancellation discards their results
		items, err := p.extractor.Extract(context.WithoutCancel(ctx), extract.Source{
			URL:       hit.URL,
			Title:     snap.Title,
			Text:      page.Text,
			Truncated: page.Truncated,
		}, extract.Target{
			Input:    in.text,
			Context:  plan.context,
			Contexts: contextIDs,
			Claims:   claims,
			Round:    plan.round,
		})
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if errors.Is(err, llm.ErrProvidersExhausted) {
			return out, err
		}
		if err != nil {
			snap.Error = err.Error()
			out.warnings = append(out.warnings, researchWarning(model.WarnExtractFailed, err.Error()))
		}
		out.sources = append(out.sources, snap)
		out.items = append(out.items, items...)
	}
	return out, nil
}

// planQueries picks up to QueriesPerRound unused queries for a context. The
// third candidate of the first round looks for criticism of the claim.
func (p *Pipeline) planQueries(c model.AnalysisContext, u contexts.Understanding, used map[string]bool) []string {
	limit := p.cfg.Pipeline.QueriesPerRound
	if limit <= 0 {
		limit = defaultQueriesPerRound
	}
	claim := u.ImpliedClaim
	focus := c.Name
	if c.Fallback {
		focus = ""
	}

	primary := []string{joinQuery(focus, claim)}
	primary = append(primary, u.Queries...)
	primary = append(primary,
		joinQuery(focus, c.Subject),
		joinQuery(focus, claim, "evidence"),
		joinQuery(focus, c.Temporal, claim),
		joinQuery(claim, "fact check"),
	)
	counter := joinQuery(claim, "criticism dispute")

	var out []string
	picked := make(map[string]bool)
	take := func(q string) bool {
		key := strings.ToLower(q)
		if q == "" || used[q] || picked[key] {
			return false
		}
		picked[key] = true
		out = append(out, q)
		return true
	}
	next := 0
	fill := func(n int) {
		for ; next < len(primary) && len(out) < n; next++ {
			take(primary[next])
		}
	}
	fill(min(limit, 2))
	if len(out) < limit {
		take(counter)
	}
	fill(limit)
	return out
}

func joinQuery(parts ...string) string {
	var fields []string
	for _, p := range parts {
		fields = append(fields, strings.Fields(p)...)
	}
	return strings.Join(fields, " ")
}

// prefetchReliability evaluates newly seen domains so verdicts can read
// their scores from the cache
func (p *Pipeline) prefetchReliability(ctx context.Context, domains []string) {
	if p.reliability == nil || !p.cfg.SourceReliability.Enabled || len(domains) == 0 {
		return
	}
	scores := p.reliability.EvaluateAll(ctx, domains, "")
	p.logger.Debug("source reliability prefetched", zap.Int("domains", len(scores)))
}

// claimsIn returns the claims that apply to a context
func claimsIn(claims []model.Claim, contextID string) []model.Claim {
	var out []model.Claim
	for _, c := range claims {
		if c.InContext(contextID) {
			out = append(out, c)
		}
	}
	return out
}

// researchProgress maps research rounds onto the 15..75 progress range
func researchProgress(b *Budget, wave int) int {
	snap := b.Snapshot()
	if snap.MaxTotalRounds > 0 {
		return 15 + min(60, 60*snap.TotalRounds/snap.MaxTotalRounds)
	}
	return 15 + min(60, 10*wave)
}

func researchWarning(code, msg string) model.Warning {
	return model.Warning{Phase: PhaseResearch, Code: code, Message: msg}
}
