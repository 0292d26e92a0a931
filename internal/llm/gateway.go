package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/metrics"
	"go.uber.org/zap"
)

// gatewayAfterFunc times the backoff between retries (overridable in tests)
var gatewayAfterFunc = time.After

// GatewayOptions configures a Gateway
type GatewayOptions struct {
	// Timeout bounds a single provider attempt
	Timeout time.Duration

	// MaxRetries is the number of extra attempts per provider
	MaxRetries int

	// MaxTokens is the default response budget
	MaxTokens int

	// Temperature is used unless Deterministic is set
	Temperature float32

	// Deterministic pins temperature to 0
	Deterministic bool

	Logger *zap.Logger
}

// Gateway calls providers in order, falling back to the next one when a
// provider keeps failing
type Gateway struct {
	providers []Provider
	opts      GatewayOptions
	logger    *zap.Logger
}

// NewGateway creates a gateway over the given ordered providers
func NewGateway(providers []Provider, opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		providers: providers,
		opts:      opts,
		logger:    logger,
	}
}

// Providers returns the provider names in fallback order
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Using returns a gateway restricted to the named provider, sharing this
// gateway's options. The second return value is false if no provider matches.
func (g *Gateway) Using(name string) (*Gateway, bool) {
	for _, p := range g.providers {
		if strings.EqualFold(p.Name(), name) {
			return &Gateway{providers: []Provider{p}, opts: g.opts, logger: g.logger}, true
		}
	}
	return nil, false
}

// Deterministic reports whether temperature is pinned to 0
func (g *Gateway) Deterministic() bool {
	return g.opts.Deterministic
}

// Available checks every provider
func (g *Gateway) Available(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(g.providers))
	for _, p := range g.providers {
		out[p.Name()] = p.IsAvailable(ctx)
	}
	return out
}

// Text runs a plain-text completion
func (g *Gateway) Text(ctx context.Context, system, user string) (*Response, error) {
	return g.Generate(ctx, Request{System: system, User: user})
}

// Generate tries each provider in order with bounded retries. Successful
// calls are recorded on the meter attached to ctx.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(g.providers) == 0 {
		return nil, ErrNoProviders
	}

	if g.opts.Deterministic || req.Deterministic {
		req.Temperature = 0
	} else if req.Temperature == 0 {
		req.Temperature = g.opts.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.opts.MaxTokens
	}

	var errs []error
	for _, p := range g.providers {
		resp, err := g.tryProvider(ctx, p, req)
		if err == nil {
			MeterFrom(ctx).Record(p.Name(), resp.TokensUsed)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		g.logger.Warn("LLM provider failed, falling back",
			zap.String("provider", p.Name()),
			zap.Error(err))
	}

	return nil, fmt.Errorf("%w: %w", ErrProvidersExhausted, errors.Join(errs...))
}

func (g *Gateway) tryProvider(ctx context.Context, p Provider, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-gatewayAfterFunc(backoff):
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		callCtx := ctx
		cancel := func() {}
		if g.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		}
		start := time.Now()
		resp, err := p.Generate(callCtx, req)
		cancel()
		metrics.LLMLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

		if err == nil {
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			metrics.LLMCalls.WithLabelValues(p.Name(), "success").Inc()
			metrics.LLMTokens.WithLabelValues(p.Name()).Add(float64(resp.TokensUsed))
			return resp, nil
		}

		metrics.LLMCalls.WithLabelValues(p.Name(), "error").Inc()
		lastErr = err
		g.logger.Debug("LLM attempt failed",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}
