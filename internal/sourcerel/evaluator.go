package sourcerel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/validate"
	"github.com/ppiankov/factlens/internal/worker"
)

// ErrInvalidDomain is returned for input that has no usable host
var ErrInvalidDomain = errors.New("invalid domain")

const evaluationSystemPrompt = `You rate the reliability of news and information sources by domain.
Consider editorial standards, corrections policy, transparency of ownership and funding,
track record in independent fact-checks, and whether the domain is a primary source.
Respond with JSON only:
{"score": <0.0-1.0>, "confidence": <0.0-1.0>, "reasoning": "<one or two sentences>"}
score 0 means fabricated or systematically misleading, 0.5 means unknown or mixed,
1 means consistently accurate. confidence reflects how well you know this domain.`

// Searcher runs grounding searches
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

type assessment struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func validateAssessment(a *assessment) error {
	if math.IsNaN(a.Score) || a.Score < 0 || a.Score > 1 {
		return fmt.Errorf("score %v outside [0,1]", a.Score)
	}
	if math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", a.Confidence)
	}
	return nil
}

// Evaluator scores source domains with one or two models and caches the result
type Evaluator struct {
	cfg           model.SourceReliabilityConfig
	store         Store
	primary       llm.Client
	primaryName   string
	secondary     llm.Client
	secondaryName string
	searcher      Searcher
	ipLimiter     *worker.Limiter
	domainLimiter *worker.Limiter
	flight        singleflight.Group
	logger        *zap.Logger
	now           func() time.Time
}

// Options wires an Evaluator's collaborators
type Options struct {
	Store    Store
	Gateway  *llm.Gateway
	Searcher Searcher // Optional, used when grounding is enabled
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewEvaluator creates an evaluator. The primary and secondary models are
// picked from the gateway by provider name; without a matching primary the
// whole gateway serves as primary. A missing secondary disables consensus.
func NewEvaluator(cfg model.SourceReliabilityConfig, opts Options) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Evaluator{
		cfg:           cfg,
		store:         opts.Store,
		searcher:      opts.Searcher,
		ipLimiter:     worker.NewHourlyLimiter(cfg.PerIPPerHour),
		domainLimiter: worker.NewHourlyLimiter(cfg.PerDomainPerHour),
		logger:        logger,
		now:           now,
	}

	if g := opts.Gateway; g != nil {
		if p, ok := g.Using(cfg.PrimaryProvider); ok {
			e.primary, e.primaryName = p, strings.ToLower(cfg.PrimaryProvider)
		} else {
			e.primary, e.primaryName = g, strings.Join(g.Providers(), "|")
		}
		if cfg.SecondaryProvider != "" && !strings.EqualFold(cfg.SecondaryProvider, cfg.PrimaryProvider) {
			if s, ok := g.Using(cfg.SecondaryProvider); ok {
				e.secondary, e.secondaryName = s, strings.ToLower(cfg.SecondaryProvider)
			}
		}
	}
	return e
}

// Default is the neutral score used for unknown, skipped or unevaluated domains
func (e *Evaluator) Default(domain string) model.CachedScore {
	score := e.cfg.DefaultScore
	if score <= 0 || score > 1 {
		score = 0.5
	}
	return model.CachedScore{
		Domain:        domain,
		Score:         score,
		Confidence:    e.cfg.DefaultConfidence,
		LowConfidence: true,
		Default:       true,
	}
}

// Lookup returns the cached, non-expired score for domain or the default.
// It never calls a model and never fails.
func (e *Evaluator) Lookup(ctx context.Context, domain string) model.CachedScore {
	d := NormalizeDomain(domain)
	if d == "" || e.store == nil {
		return e.Default(d)
	}
	score, ok, err := e.store.Get(ctx, d)
	if err != nil {
		e.logger.Warn("source score lookup failed", zap.String("domain", d), zap.Error(err))
		return e.Default(d)
	}
	if !ok || score.Expired(e.now()) {
		return e.Default(d)
	}
	return score
}

// Forget drops the cached score for domain so the next Evaluate calls a model
func (e *Evaluator) Forget(ctx context.Context, domain string) error {
	d := NormalizeDomain(domain)
	if d == "" {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	if e.store == nil {
		return nil
	}
	return e.store.Delete(ctx, d)
}

// Evaluate returns a domain's score, evaluating and caching it when the
// cache has no live entry. Skipped and rate-limited domains get the default
// without an error; a failed model call returns the default and the error.
func (e *Evaluator) Evaluate(ctx context.Context, domain, requester string) (model.CachedScore, error) {
	d := NormalizeDomain(domain)
	if d == "" {
		return e.Default(""), fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	if e.store != nil {
		score, ok, err := e.store.Get(ctx, d)
		if err != nil {
			e.logger.Warn("source score lookup failed", zap.String("domain", d), zap.Error(err))
		} else if ok && !score.Expired(e.now()) {
			metrics.SourceEvaluations.WithLabelValues("cached").Inc()
			return score, nil
		}
	}

	if reason := e.skipReason(d); reason != "" {
		metrics.SourceEvaluations.WithLabelValues("skipped").Inc()
		e.logger.Debug("source skipped by importance filter", zap.String("domain", d), zap.String("reason", reason))
		score := e.Default(d)
		score.Skipped = true
		score.Reasoning = reason
		return score, nil
	}

	if e.primary == nil {
		return e.Default(d), fmt.Errorf("evaluate %s: %w", d, llm.ErrNoProviders)
	}

	if requester != "" && !e.ipLimiter.AllowKey(requester) {
		metrics.SourceEvaluations.WithLabelValues("rate_limited").Inc()
		e.logger.Warn("source evaluation rate limited", zap.String("requester", requester), zap.String("domain", d))
		return e.Default(d), nil
	}
	if !e.domainLimiter.AllowKey(d) {
		metrics.SourceEvaluations.WithLabelValues("rate_limited").Inc()
		e.logger.Warn("source evaluation rate limited", zap.String("domain", d))
		return e.Default(d), nil
	}

	if err := ctx.Err(); err != nil {
		return e.Default(d), err
	}
	v, err, _ := e.flight.Do(d, func() (any, error) {
		return e.evaluate(ctx, d)
	})
	if ctx.Err() != nil {
		return e.Default(d), ctx.Err()
	}
	if err != nil {
		metrics.SourceEvaluations.WithLabelValues("failed").Inc()
		return e.Default(d), err
	}
	metrics.SourceEvaluations.WithLabelValues("evaluated").Inc()
	return v.(model.CachedScore), nil
}

// evaluate scores one domain. Model calls and the cache write run to
// completion once issued; the caller discards the result if ctx ended.
func (e *Evaluator) evaluate(ctx context.Context, domain string) (model.CachedScore, error) {
	prompt := e.buildPrompt(ctx, domain)
	if err := ctx.Err(); err != nil {
		return model.CachedScore{}, err
	}
	req := llm.Request{System: evaluationSystemPrompt, User: prompt, MaxTokens: 400, Deterministic: true}
	issued := context.WithoutCancel(ctx)

	primary, err := llm.CallJSON(issued, e.primary, req, validateAssessment)
	if err != nil {
		return model.CachedScore{}, fmt.Errorf("evaluate %s: %w", domain, err)
	}

	now := e.now().UTC()
	score := model.CachedScore{
		Domain:        domain,
		Score:         primary.Score,
		Confidence:    primary.Confidence,
		Models:        []string{e.primaryName},
		Reasoning:     strings.TrimSpace(primary.Reasoning),
		LowConfidence: primary.Confidence < e.cfg.MinConfidence,
		EvaluatedAt:   now,
		ExpiresAt:     now.Add(e.cfg.CacheTTL),
	}

	if e.secondary != nil {
		// A score without its consensus check is not cached
		if err := ctx.Err(); err != nil {
			return model.CachedScore{}, err
		}
		secondary, err := llm.CallJSON(issued, e.secondary, req, validateAssessment)
		if err != nil {
			e.logger.Warn("secondary source evaluation failed",
				zap.String("domain", domain),
				zap.String("provider", e.secondaryName),
				zap.Error(err))
		} else {
			score.Models = append(score.Models, e.secondaryName)
			if math.Abs(primary.Score-secondary.Score) < e.cfg.ConsensusThreshold {
				score.Consensus = true
				score.Score = (primary.Score + secondary.Score) / 2
			}
		}
	}

	if e.store != nil {
		if err := e.store.Put(issued, score); err != nil {
			e.logger.Warn("failed to cache source score", zap.String("domain", domain), zap.Error(err))
		}
	}

	e.logger.Info("source evaluated",
		zap.String("domain", domain),
		zap.Float64("score", score.Score),
		zap.Float64("confidence", score.Confidence),
		zap.Bool("consensus", score.Consensus),
		zap.Bool("low_confidence", score.LowConfidence))

	return score, nil
}

func (e *Evaluator) buildPrompt(ctx context.Context, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", domain)

	if !e.cfg.Grounding || e.searcher == nil {
		return b.String()
	}

	query := fmt.Sprintf("%q reliability fact-check media bias", domain)
	results, err := e.searcher.Search(ctx, query, search.Options{MaxResults: 5, DomainBlacklist: []string{domain}})
	if err != nil {
		e.logger.Debug("grounding search failed", zap.String("domain", domain), zap.Error(err))
		return b.String()
	}
	if len(results) > 0 {
		b.WriteString("\nWhat others write about this domain:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
		}
	}
	return b.String()
}

// EvaluateAll evaluates domains with bounded concurrency. Failures are
// logged and resolve to the default score.
func (e *Evaluator) EvaluateAll(ctx context.Context, domains []string, requester string) map[string]model.CachedScore {
	unique := make(map[string]bool)
	for _, d := range domains {
		if n := NormalizeDomain(d); n != "" {
			unique[n] = true
		}
	}
	list := make([]string, 0, len(unique))
	for d := range unique {
		list = append(list, d)
	}
	sort.Strings(list)

	results := make([]model.CachedScore, len(list))
	var g errgroup.Group
	g.SetLimit(max(e.cfg.PrefetchWorkers, 1))
	for i, d := range list {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = e.Default(d)
				return nil
			}
			score, err := e.Evaluate(ctx, d, requester)
			if err != nil {
				e.logger.Warn("source evaluation failed", zap.String("domain", d), zap.Error(err))
			}
			results[i] = score
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]model.CachedScore, len(list))
	for i, d := range list {
		out[d] = results[i]
	}
	return out
}

// skipReason applies the importance filter
func (e *Evaluator) skipReason(domain string) string {
	if net.ParseIP(strings.Trim(domain, "[]")) != nil {
		return "ip_literal"
	}
	if search.MatchesDomain(domain, e.cfg.PlatformHosts) {
		return "platform_host"
	}
	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		tld := domain[idx+1:]
		for _, t := range e.cfg.DisposableTLDs {
			if strings.EqualFold(strings.TrimPrefix(t, "."), tld) {
				return "disposable_tld"
			}
		}
	}
	return ""
}

// NormalizeDomain accepts a bare domain or a URL and returns the lowercased
// host without port or www. prefix
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		return validate.DomainOf(s)
	}
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	return validate.NormalizeHost(s)
}
