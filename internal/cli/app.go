package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/cache"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/sourcerel"
	"github.com/ppiankov/factlens/internal/worker"
)

// app holds the wired components shared by every command
type app struct {
	cfg       model.Config
	logger    *zap.Logger
	pipeline  *pipeline.Pipeline
	evaluator *sourcerel.Evaluator // nil when source reliability is disabled

	closers []func() error
}

// newApp wires the gateway, search chain, fetcher and reliability evaluator
// from cfg. Missing search credentials degrade the run; without any model
// provider the app still starts but analyses fail.
func newApp(ctx context.Context, cfg model.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	gateway, err := llm.NewGatewayFromConfig(cfg, logger.Named("llm"))
	switch {
	case errors.Is(err, llm.ErrNoProviders):
		logger.Warn("no LLM provider configured; analyses will fail")
	case err != nil:
		return nil, fmt.Errorf("create LLM gateway: %w", err)
	}

	var searcher pipeline.Searcher
	var srSearcher sourcerel.Searcher
	if chain := search.NewChainFromConfig(ctx, cfg.Search, logger.Named("search")); chain.Len() > 0 {
		searcher = chain
		srSearcher = chain
	} else {
		logger.Warn("no search provider configured; research will be skipped")
	}

	fetchOpts := pipeline.FetcherOptions{CacheTTL: cfg.Cache.TTL, Logger: logger.Named("fetch")}
	if cfg.Cache.Enabled {
		c, err := cache.New(cache.Options{
			Backend:  cfg.Cache.Backend,
			Dir:      cfg.Cache.Dir,
			TTL:      cfg.Cache.TTL,
			RedisURL: cfg.Cache.RedisURL,
			Name:     cache.NamespacePage,
		})
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		fetchOpts.Cache = c
		if closer, ok := c.(interface{ Close() error }); ok {
			a.closers = append(a.closers, closer.Close)
		}
	}
	if cfg.RateLimiting.Enabled {
		fetchOpts.Limiter = worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.Burst)
	}

	if cfg.SourceReliability.Enabled {
		store, err := sourcerel.NewStore(cfg.SourceReliability)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create source reliability store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.evaluator = sourcerel.NewEvaluator(cfg.SourceReliability, sourcerel.Options{
			Store:    store,
			Gateway:  gateway,
			Searcher: srSearcher,
			Logger:   logger.Named("sourcerel"),
		})
	}

	a.pipeline = pipeline.New(cfg, pipeline.Options{
		Gateway:     gateway,
		Searcher:    searcher,
		Fetcher:     pipeline.NewFetcher(cfg.HTTP, fetchOpts),
		Reliability: a.evaluator,
		Logger:      logger.Named("pipeline"),
	})
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
