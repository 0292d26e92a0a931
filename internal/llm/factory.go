package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/model"
	"go.uber.org/zap"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, gemini, ollama)", config.Provider)
	}
}

// ConfigFromModel converts one configured provider to llm.Config, filling
// credentials from the environment when the config leaves them empty
func ConfigFromModel(pc model.ProviderConfig, timeout time.Duration, maxTokens int, proxy string) Config {
	cfg := Config{
		Provider:  pc.Name,
		Model:     pc.Model,
		APIKey:    pc.APIKey,
		BaseURL:   pc.BaseURL,
		Timeout:   timeout,
		MaxTokens: maxTokens,
		Proxy:     proxy,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = apiKeyFromEnv(pc.Name)
	}
	if cfg.BaseURL == "" && strings.EqualFold(pc.Name, "ollama") {
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	return cfg
}

func apiKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini", "google":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// NewGatewayFromConfig builds a gateway over every provider that can be
// constructed. Providers without credentials are skipped with a log line.
func NewGatewayFromConfig(cfg model.Config, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var providers []Provider
	for _, pc := range cfg.LLM.Providers {
		p, err := NewProvider(ConfigFromModel(pc, cfg.LLM.Timeout, cfg.LLM.MaxTokens, cfg.HTTP.Proxy))
		if err != nil {
			logger.Debug("skipping LLM provider", zap.String("provider", pc.Name), zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	return NewGateway(providers, GatewayOptions{
		Timeout:       cfg.LLM.Timeout,
		MaxRetries:    cfg.LLM.MaxRetries,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Deterministic: cfg.Pipeline.Deterministic,
		Logger:        logger,
	}), nil
}
