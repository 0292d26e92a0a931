package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProvidersExhausted is returned when every configured provider failed
	ErrProvidersExhausted = errors.New("all LLM providers failed")

	// ErrSchemaViolation is returned when a response could not be parsed or
	// validated even after the stricter retry
	ErrSchemaViolation = errors.New("LLM response violated the expected schema")

	// ErrNoProviders is returned when no provider is configured
	ErrNoProviders = errors.New("no LLM providers configured")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs a single completion
	Generate(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Client is anything that can run a completion. Providers and the Gateway both satisfy it.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-neutral completion request
type Request struct {
	// System carries the role and output contract
	System string

	// User carries the task input
	User string

	// Model overrides the provider's configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature is filled in by the gateway when left at 0
	Temperature float32

	// Deterministic forces temperature 0 for this call
	Deterministic bool

	// JSON asks the provider for a JSON object response where supported
	JSON bool
}

// Response is a provider-neutral completion result
type Response struct {
	Text       string
	Provider   string
	Model      string
	TokensUsed int
}

// Config holds configuration for one provider
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama or an OpenAI-compatible proxy)
	BaseURL string

	// Timeout for a single API request
	Timeout time.Duration

	// MaxTokens default for response generation
	MaxTokens int

	// Proxy URL for outbound requests
	Proxy string
}

func (c Config) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1024
}

func (c Config) model(req Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}
