// Package pipeline drives one analysis through its phases: UNDERSTAND,
// RESEARCH, CONTEXT_REFINEMENT and VERDICT.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/contexts"
	"github.com/ppiankov/factlens/internal/extract"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/score"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/sourcerel"
	"github.com/ppiankov/factlens/internal/validate"
)

// Phase names
const (
	PhaseInput      = "INPUT"
	PhaseUnderstand = contexts.PhaseUnderstand
	PhaseResearch   = "RESEARCH"
	PhaseRefinement = contexts.PhaseRefinement
	PhaseVerdict    = "VERDICT"
)

// ErrInputUnfetchable is returned when a URL input cannot be fetched
var ErrInputUnfetchable = errors.New("input URL could not be fetched")

// Searcher runs web searches
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// PageFetcher retrieves the readable text of a URL
type PageFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error)
}

// ProgressFunc receives progress updates during a run
type ProgressFunc func(percent int, message string)

// Options wires the collaborators of a Pipeline. Every field is optional:
// without a gateway the run uses heuristics only, without a searcher or
// fetcher the research phase finds nothing.
type Options struct {
	Gateway     *llm.Gateway
	Searcher    Searcher
	Fetcher     PageFetcher
	Reliability *sourcerel.Evaluator
	Logger      *zap.Logger
	Now         func() time.Time
}

// Pipeline orchestrates the complete analysis process
type Pipeline struct {
	cfg         model.Config
	client      llm.Client
	searcher    Searcher
	fetcher     PageFetcher
	reliability *sourcerel.Evaluator
	detector    *contexts.Detector
	refiner     *contexts.Refiner
	extractor   *extract.EvidenceExtractor
	filter      *validate.EvidenceFilter
	classifier  *validate.SourceClassifier
	aggregator  *score.Aggregator
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a pipeline for one configuration snapshot
func New(cfg model.Config, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var client llm.Client
	if opts.Gateway != nil {
		client = opts.Gateway
	}
	var reliability score.ReliabilitySource
	if opts.Reliability != nil {
		reliability = opts.Reliability
	}
	classifier := validate.NewSourceClassifier(&cfg.Authority)

	return &Pipeline{
		cfg:         cfg,
		client:      client,
		searcher:    opts.Searcher,
		fetcher:     opts.Fetcher,
		reliability: opts.Reliability,
		detector:    contexts.NewDetector(cfg, client, extract.NewClaimExtractor(), logger.Named("contexts")),
		refiner:     contexts.NewRefiner(cfg, client, logger.Named("contexts")),
		extractor:   extract.NewEvidenceExtractor(cfg.Pipeline, client, classifier, logger.Named("extract")),
		filter:      validate.NewEvidenceFilter(cfg.Pipeline.Filter),
		classifier:  classifier,
		aggregator:  score.NewAggregator(cfg.Calculation, reliability, logger.Named("score")),
		tracer:      otel.Tracer("github.com/ppiankov/factlens/internal/pipeline"),
		logger:      logger,
		now:         now,
	}
}

// Analyze runs one analysis. See Run.
func (p *Pipeline) Analyze(ctx context.Context, input model.Input) (*model.Report, error) {
	return p.Run(ctx, input, nil)
}

// Run drives input through every phase and assembles the report. Fatal
// failures and cancellation return a report with status FAILED or
// CANCELLED alongside the error; no verdicts are fabricated for them.
// Running without any model provider, or losing every provider mid-run,
// is fatal.
func (p *Pipeline) Run(ctx context.Context, input model.Input, progress ProgressFunc) (*model.Report, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	meter := llm.NewMeter()
	ctx = llm.WithMeter(ctx, meter)
	ctx, span := p.tracer.Start(ctx, "analysis")
	defer span.End()

	report := &model.Report{
		RunID:     uuid.NewString(),
		Status:    model.StatusRunning,
		Input:     input,
		StartedAt: p.now().UTC(),
	}
	span.SetAttributes(attribute.String("run_id", report.RunID), attribute.String("input.kind", string(input.Kind)))
	metrics.AnalysesStarted.Inc()
	logger := p.logger.With(zap.String("run_id", report.RunID))
	logger.Info("analysis started", zap.String("kind", string(input.Kind)))

	budget := NewBudget(p.cfg.Pipeline, meter.Tokens)
	finish := func(err error) (*model.Report, error) {
		report.FinishedAt = p.now().UTC()
		report.Budget = budget.Snapshot()
		calls, tokens, byProvider := meter.Snapshot()
		report.LLM = model.LLMUsage{Calls: calls, Tokens: tokens, ByProvider: byProvider}
		switch {
		case err == nil:
			report.Status = model.StatusSucceeded
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			report.Status = model.StatusCancelled
			report.Error = err.Error()
		default:
			report.Status = model.StatusFailed
			report.Error = err.Error()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.AnalysesCompleted.WithLabelValues(string(report.Status)).Inc()
		logger.Info("analysis finished",
			zap.String("status", string(report.Status)),
			zap.Int("verdicts", len(report.Verdicts)),
			zap.Int("evidence", len(report.Evidence)),
			zap.Int("tokens", tokens),
			zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
		return report, err
	}

	// INPUT
	progress(2, "preparing input")
	text, err := p.prepareInput(ctx, report)
	if err != nil {
		return finish(err)
	}
	if p.client == nil {
		return finish(fmt.Errorf("analyze: %w", llm.ErrNoProviders))
	}

	// UNDERSTAND
	progress(5, "detecting contexts and claims")
	var u contexts.Understanding
	err = p.phase(ctx, PhaseUnderstand, func(ctx context.Context) error {
		var err error
		u, err = p.detector.Understand(ctx, text)
		return err
	})
	if err != nil {
		return finish(err)
	}
	report.ImpliedClaim = u.ImpliedClaim
	report.Claims = u.Claims
	report.Contexts = u.Contexts.All()
	report.Transitions = append(report.Transitions, u.Transition)
	report.Warnings = append(report.Warnings, u.Warnings...)

	// RESEARCH
	progress(15, "researching evidence")
	var res researchResult
	err = p.phase(ctx, PhaseResearch, func(ctx context.Context) error {
		var err error
		res, err = p.research(ctx, researchInput{
			text:     text,
			excluded: input.URL,
			u:        u,
			budget:   budget,
			progress: progress,
		})
		return err
	})
	report.Evidence = res.evidence
	report.Rejected = res.rejected
	report.Warnings = append(report.Warnings, res.warnings...)
	if err != nil {
		report.Sources = p.snapshotSources(ctx, res.sources)
		return finish(err)
	}

	// CONTEXT_REFINEMENT
	progress(80, "refining contexts")
	var refined contexts.Refined
	err = p.phase(ctx, PhaseRefinement, func(ctx context.Context) error {
		var err error
		refined, err = p.refiner.Refine(ctx, text, u.Contexts, u.Claims, res.evidence)
		return err
	})
	if err != nil {
		report.Sources = p.snapshotSources(ctx, res.sources)
		return finish(err)
	}
	report.Contexts = refined.Contexts.All()
	report.Claims = refined.Claims
	report.Evidence = refined.Evidence
	report.Transitions = append(report.Transitions, refined.Transition)
	report.Warnings = append(report.Warnings, refined.Warnings...)
	for _, problem := range contexts.CheckInvariants(refined.Contexts, refined.Evidence, true) {
		logger.Warn("context invariant violated after refinement", zap.String("problem", problem))
	}

	// VERDICT
	progress(90, "aggregating verdicts")
	err = p.phase(ctx, PhaseVerdict, func(ctx context.Context) error {
		verdicts, err := p.aggregator.VerdictAll(ctx, refined.Contexts.All(), refined.Claims, refined.Evidence, p.cfg.Concurrency.ContextWorkers)
		if err != nil {
			return err
		}
		report.Verdicts = verdicts
		return nil
	})
	report.Sources = p.snapshotSources(ctx, countEvidence(res.sources, report.Evidence))
	if err != nil {
		return finish(err)
	}

	progress(100, "done")
	return finish(nil)
}

// phase runs one phase under its own span and duration metric
func (p *Pipeline) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := p.tracer.Start(ctx, "phase."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.PhaseDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.logger.Debug("phase finished", zap.String("phase", name), zap.Duration("elapsed", elapsed), zap.Error(err))
	return err
}

// prepareInput returns the text to analyze, fetching URL inputs first
func (p *Pipeline) prepareInput(ctx context.Context, report *model.Report) (string, error) {
	input := report.Input
	if input.Kind != model.KindURL {
		if input.Text == "" {
			return "", contexts.ErrEmptyInput
		}
		return input.Text, nil
	}
	if p.fetcher == nil {
		return "", fmt.Errorf("%w: %s: no fetcher configured", ErrInputUnfetchable, input.URL)
	}

	page, err := p.fetcher.FetchWithRetry(ctx, input.URL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %w", ErrInputUnfetchable, input.URL, err)
	}
	text, truncated := extract.Truncate(page.Text, p.cfg.Pipeline.SourceTextMaxChars)
	if text == "" {
		return "", fmt.Errorf("%w: %s: no readable text", ErrInputUnfetchable, input.URL)
	}
	if truncated || page.Truncated {
		report.Warnings = append(report.Warnings, model.Warning{
			Phase:   PhaseInput,
			Code:    model.WarnFetchFailed,
			Message: "input document truncated",
		})
	}
	report.Input.Text = text
	return text, nil
}

// snapshotSources attaches reliability scores to the sources seen. Scores
// come from the cache only; nothing is evaluated here.
func (p *Pipeline) snapshotSources(ctx context.Context, sources []model.SourceSnapshot) []model.SourceSnapshot {
	out := make([]model.SourceSnapshot, len(sources))
	lookupCtx := context.WithoutCancel(ctx)
	for i, s := range sources {
		if s.SourceType == "" {
			s.SourceType = p.classifier.Classify(s.URL)
		}
		if p.reliability != nil {
			s.Score = p.reliability.Lookup(lookupCtx, s.Domain)
		} else {
			s.Score = model.CachedScore{
				Domain:        s.Domain,
				Score:         0.5,
				Confidence:    0.1,
				LowConfidence: true,
				Default:       true,
			}
		}
		out[i] = s
	}
	return out
}

// countEvidence sets each source's accepted evidence count from the final items
func countEvidence(sources []model.SourceSnapshot, evidence []model.EvidenceItem) []model.SourceSnapshot {
	counts := make(map[string]int)
	for _, e := range evidence {
		counts[e.SourceURL]++
	}
	out := make([]model.SourceSnapshot, len(sources))
	for i, s := range sources {
		s.Evidence = counts[s.URL]
		out[i] = s
	}
	return out
}
