package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// minIdleTTL is the shortest time an unused key is remembered
const minIdleTTL = 10 * time.Minute

// Limiter implements keyed rate limiting. Keys are fetch domains, requester
// IPs or evaluated domains depending on the caller. A key unused for longer
// than its bucket takes to refill is forgotten.
type Limiter struct {
	limiters     *gocache.Cache
	mu           sync.Mutex
	idleTTL      time.Duration
	lastSweep    time.Time
	defaultRate  rate.Limit
	defaultBurst int
}

func newKeyedLimiter(r rate.Limit, burst int) *Limiter {
	ttl := minIdleTTL
	if r != rate.Inf && r > 0 {
		refill := time.Duration(float64(burst) / float64(r) * float64(time.Second)).Round(time.Second)
		if refill > ttl {
			ttl = refill
		}
	}
	// No janitor goroutine; expired keys are swept as new keys arrive
	return &Limiter{
		limiters:     gocache.New(ttl, 0),
		idleTTL:      ttl,
		lastSweep:    time.Now(),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// NewLimiter creates a new rate limiter
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	return newKeyedLimiter(rate.Limit(requestsPerSecond), burst)
}

// NewHourlyLimiter allows perHour events per key per hour, all of which may
// be spent at once. A non-positive perHour disables limiting.
func NewHourlyLimiter(perHour int) *Limiter {
	if perHour <= 0 {
		return newKeyedLimiter(rate.Inf, 1)
	}
	return newKeyedLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
}

// Len returns the number of keys currently remembered
func (l *Limiter) Len() int {
	return l.limiters.ItemCount()
}

// Wait waits for rate limit clearance for the host of the given URL
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return err
	}
	return l.WaitKey(ctx, domain)
}

// WaitKey waits for rate limit clearance for an arbitrary key
func (l *Limiter) WaitKey(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// AllowKey reports whether an event for key may happen now, consuming a token if so
func (l *Limiter) AllowKey(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, exp, found := l.limiters.GetWithExpiration(key); found {
		limiter := v.(*rate.Limiter)
		// Pinned keys never expire; the rest stay alive while in use
		if !exp.IsZero() {
			l.limiters.SetDefault(key, limiter)
		}
		return limiter
	}

	if now := time.Now(); now.Sub(l.lastSweep) >= l.idleTTL/2 {
		l.limiters.DeleteExpired()
		l.lastSweep = now
	}
	limiter := rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters.SetDefault(key, limiter)
	return limiter
}

// SetKeyRate sets a custom rate limit for a specific key, e.g. a robots.txt
// crawl delay. Such keys are never forgotten.
func (l *Limiter) SetKeyRate(key string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters.Set(key, rate.NewLimiter(rate.Limit(requestsPerSecond), burst), gocache.NoExpiration)
}

func extractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}

// WaitWithDelay waits for rate limit and adds an additional delay
func (l *Limiter) WaitWithDelay(ctx context.Context, rawURL string, additionalDelay time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}

	if additionalDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(additionalDelay):
		}
	}

	return nil
}
