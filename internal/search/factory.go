package search

import (
	"context"
	"os"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
	"go.uber.org/zap"
)

// NewChainFromConfig builds a chain over every configured provider that has
// credentials; keys fall back to GOOGLE_SEARCH_API_KEY, GOOGLE_SEARCH_CX and
// SERPAPI_API_KEY
func NewChainFromConfig(ctx context.Context, cfg model.SearchConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}

	var providers []Provider
	for _, name := range cfg.Providers {
		switch strings.ToLower(name) {
		case "google":
			key := firstNonEmpty(cfg.GoogleAPIKey, os.Getenv("GOOGLE_SEARCH_API_KEY"))
			cx := firstNonEmpty(cfg.GoogleCX, os.Getenv("GOOGLE_SEARCH_CX"))
			p, err := NewGoogleProvider(ctx, key, cx)
			if err != nil {
				logger.Debug("skipping search provider", zap.String("provider", name), zap.Error(err))
				continue
			}
			providers = append(providers, p)
		case "serpapi":
			key := firstNonEmpty(cfg.SerpAPIKey, os.Getenv("SERPAPI_API_KEY"))
			p, err := NewSerpAPIProvider(key, cfg.SerpAPIBaseURL, cfg.Timeout)
			if err != nil {
				logger.Debug("skipping search provider", zap.String("provider", name), zap.Error(err))
				continue
			}
			providers = append(providers, p)
		default:
			logger.Warn("unknown search provider", zap.String("provider", name))
		}
	}
	return NewChain(logger, providers...)
}

// OptionsFromConfig builds default search options
func OptionsFromConfig(cfg model.SearchConfig) Options {
	return Options{
		MaxResults:      cfg.MaxResults,
		DomainWhitelist: cfg.DomainWhitelist,
		DomainBlacklist: cfg.DomainBlacklist,
		DateRestrict:    cfg.DateRestrict,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
