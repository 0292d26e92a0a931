package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/metrics"
)

// Cache defines the byte-oriented cache shared by the page cache and the
// source reliability store
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key namespaces
const (
	NamespacePage   = "page"
	NamespaceSource = "source"
)

// Key builds a namespaced cache key from an arbitrary identifier
func Key(namespace, id string) string {
	hash := sha256.Sum256([]byte(id))
	return "factlens:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}

// Options selects and configures a cache backend
type Options struct {
	Backend  string // memory, disk, layered, redis
	Dir      string
	TTL      time.Duration
	RedisURL string
	Name     string // Label used for hit/miss metrics
}

// New builds the configured backend, instrumented with hit/miss counters
func New(opts Options) (Cache, error) {
	var c Cache
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		c = NewMemoryCache(opts.TTL, 10*time.Minute)
	case "disk":
		c = NewDiskCache(ExpandHome(opts.Dir), opts.TTL)
	case "layered":
		c = NewLayeredCache(opts.TTL, ExpandHome(opts.Dir), opts.TTL)
	case "redis":
		rc, err := NewRedisCache(opts.RedisURL, opts.TTL)
		if err != nil {
			return nil, err
		}
		c = rc
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
	return &instrumented{Cache: c, name: opts.Name}, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

type instrumented struct {
	Cache
	name string
}

func (c *instrumented) Get(key string) ([]byte, bool) {
	val, ok := c.Cache.Get(key)
	if ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
	}
	return val, ok
}

// Close releases the backend's connection, if it holds one
func (c *instrumented) Close() error {
	if closer, ok := c.Cache.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
