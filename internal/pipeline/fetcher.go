package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/cache"
	"github.com/ppiankov/factlens/internal/extract/adapters"
	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/util"
	"github.com/ppiankov/factlens/internal/worker"
)

// ErrRobotsDisallowed is returned when robots.txt forbids fetching a URL
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// fetchSleepFunc is replaced in tests to skip backoff delays
var fetchSleepFunc = time.Sleep

// FetcherOptions carries the optional collaborators of a Fetcher
type FetcherOptions struct {
	Cache    cache.Cache     // Page cache; nil disables caching
	CacheTTL time.Duration   // Zero uses the cache default
	Limiter  *worker.Limiter // Per-domain rate limiter; nil disables limiting
	Logger   *zap.Logger
}

// Fetcher fetches documents and reduces them to readable text
type Fetcher struct {
	httpClient   *http.Client
	userAgent    string
	maxBytes     int64
	maxRetries   int
	allowPrivate bool
	robots       *util.RobotsChecker
	limiter      *worker.Limiter
	cache        cache.Cache
	cacheTTL     time.Duration
	adapters     *adapters.Registry
	logger       *zap.Logger
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig, opts FetcherOptions) *Fetcher {
	client := util.NewHTTPClient(util.ClientOptions{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		AllowPrivate: cfg.AllowPrivateNetworks,
		Proxy:        cfg.Proxy,
	})

	f := &Fetcher{
		httpClient:   client,
		userAgent:    cfg.UserAgent,
		maxBytes:     cfg.MaxBodyBytes,
		maxRetries:   cfg.MaxRetries,
		allowPrivate: cfg.AllowPrivateNetworks,
		limiter:      opts.Limiter,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		adapters:     adapters.NewRegistry(),
		logger:       opts.Logger,
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 5 * 1024 * 1024
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(client, cfg.UserAgent)
	}
	return f
}

// FetchResult contains the readable text of a fetched document
type FetchResult struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	Title       string `json:"title,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
	StatusCode  int    `json:"status_code"`
	Adapter     string `json:"adapter,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"` // Body hit the byte ceiling
	FromCache   bool   `json:"-"`
}

// Fetch retrieves a document and extracts its text. HTML goes through the
// site adapters, PDF through the PDF text reader, text/plain is kept as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if _, err := util.ValidateURL(rawURL, f.allowPrivate); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	key := cache.Key(cache.NamespacePage, rawURL)
	if f.cache != nil {
		if data, ok := f.cache.Get(key); ok {
			var cached FetchResult
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	var crawlDelay time.Duration
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrRobotsDisallowed)
		}
		crawlDelay = delay
	}
	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	// Read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	finalURL := resp.Request.URL.String()
	result := &FetchResult{
		URL:         rawURL,
		FinalURL:    finalURL,
		Subject:     extractSubject(finalURL),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Truncated:   truncated,
	}
	if err := f.decode(result, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if f.cache != nil && result.Text != "" {
		if data, err := json.Marshal(result); err == nil {
			if err := f.cache.Set(key, data, f.cacheTTL); err != nil {
				f.logger.Debug("page cache write failed", zap.String("url", rawURL), zap.Error(err))
			}
		}
	}
	return result, nil
}

func (f *Fetcher) decode(result *FetchResult, body []byte) error {
	mediaType, _, _ := mime.ParseMediaType(result.ContentType)
	switch {
	case mediaType == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")):
		if result.Truncated {
			return errors.New("pdf exceeds size limit")
		}
		text, err := pdfText(body)
		if err != nil {
			return err
		}
		result.Text = text
		result.Adapter = "pdf"
	case mediaType == "text/plain":
		result.Text = strings.TrimSpace(string(body))
		result.Adapter = "plain"
	default:
		page, err := f.adapters.ExtractHTML(bytes.NewReader(body), result.FinalURL, mediaType)
		if err != nil {
			return err
		}
		result.Title = page.Title
		result.Text = page.Text
		result.Adapter = page.Adapter
	}
	return nil
}

func pdfText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// FetchWithRetry fetches a URL, retrying transient failures (5xx, 429,
// connection errors) with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(time.Duration(1<<uint(attempt-1)) * time.Second)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			outcome := "success"
			if result.FromCache {
				outcome = "cached"
			}
			metrics.FetchResults.WithLabelValues(outcome).Inc()
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			break
		}
		f.logger.Debug("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	outcome := "error"
	if errors.Is(lastErr, ErrRobotsDisallowed) {
		outcome = "robots"
	} else if errors.Is(lastErr, util.ErrBlockedAddress) {
		outcome = "blocked"
	}
	metrics.FetchResults.WithLabelValues(outcome).Inc()
	return nil, lastErr
}

// isRetryableFetchError reports whether a fetch error is worth retrying
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, util.ErrBlockedAddress) || errors.Is(err, context.Canceled) {
		return false
	}

	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "unexpected status: "); ok {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return false
		}
		code, convErr := strconv.Atoi(fields[0])
		if convErr != nil {
			return false
		}
		return code == http.StatusTooManyRequests || code >= 500
	}
	return strings.HasPrefix(msg, "fetch: ")
}

// extractSubject extracts a human-readable subject from the URL
func extractSubject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	// Extract last path segment
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]

	// De-slugify: replace underscores and hyphens with spaces
	last = strings.ReplaceAll(last, "_", " ")
	last = strings.ReplaceAll(last, "-", " ")

	// Remove file extensions
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}

	return last
}
