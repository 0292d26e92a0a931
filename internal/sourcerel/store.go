// Package sourcerel scores the reliability of evidence source domains and
// caches the scores.
package sourcerel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/cache"
	"github.com/ppiankov/factlens/internal/model"
)

// Store persists reliability scores keyed by domain. Writes are upserts and
// the last write wins. Stores return expired entries; callers check expiry.
type Store interface {
	Get(ctx context.Context, domain string) (model.CachedScore, bool, error)
	Put(ctx context.Context, score model.CachedScore) error
	Delete(ctx context.Context, domain string) error
	Close() error
}

// NewStore builds the configured score store
func NewStore(cfg model.SourceReliabilityConfig) (Store, error) {
	path := cache.ExpandHome(cfg.Path)

	switch strings.ToLower(cfg.Store) {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "memory", "disk", "layered", "redis":
		c, err := cache.New(cache.Options{
			Backend:  cfg.Store,
			Dir:      filepath.Join(filepath.Dir(path), "source-reliability"),
			TTL:      cfg.CacheTTL,
			RedisURL: cfg.RedisURL,
			Name:     "source",
		})
		if err != nil {
			return nil, fmt.Errorf("create source cache: %w", err)
		}
		return NewCacheStore(c), nil
	default:
		return nil, fmt.Errorf("unknown source reliability store %q", cfg.Store)
	}
}

// CacheStore keeps scores in any cache backend as JSON
type CacheStore struct {
	cache cache.Cache
}

// NewCacheStore wraps a cache
func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{cache: c}
}

// Get returns the stored score for domain
func (s *CacheStore) Get(_ context.Context, domain string) (model.CachedScore, bool, error) {
	data, ok := s.cache.Get(cache.Key(cache.NamespaceSource, domain))
	if !ok {
		return model.CachedScore{}, false, nil
	}
	var score model.CachedScore
	if err := json.Unmarshal(data, &score); err != nil {
		return model.CachedScore{}, false, fmt.Errorf("decode cached score for %s: %w", domain, err)
	}
	return score, true, nil
}

// Put upserts a score. The cache entry lives until the score expires.
func (s *CacheStore) Put(_ context.Context, score model.CachedScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	ttl := time.Duration(0)
	if !score.ExpiresAt.IsZero() {
		ttl = time.Until(score.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	return s.cache.Set(cache.Key(cache.NamespaceSource, score.Domain), data, ttl)
}

// Delete removes a domain's score
func (s *CacheStore) Delete(_ context.Context, domain string) error {
	return s.cache.Delete(cache.Key(cache.NamespaceSource, domain))
}

// Close releases the underlying cache connection if it has one
func (s *CacheStore) Close() error {
	if closer, ok := s.cache.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
