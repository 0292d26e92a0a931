package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/ppiankov/factlens/internal/util"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude models
type AnthropicProvider struct {
	client *anthropic.Client
	config Config
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var opts []anthropic.ClientOption
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(config.BaseURL, "/")+"/v1"))
	}
	if config.Proxy != "" {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: util.NewProxyFunc(config.Proxy)},
		}))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(config.APIKey, opts...),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable reports whether the provider has credentials. A live check
// would spend tokens, so it is not performed.
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	return p.client != nil
}

// Generate runs a Messages API call
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := p.config.model(req, "claude-3-5-haiku-latest")

	user := req.User
	if req.JSON {
		user += "\n\nRespond with a single JSON object only."
	}

	temperature := req.Temperature
	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		System:      req.System,
		MaxTokens:   p.config.maxTokens(req),
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(user),
				},
			},
		},
	}

	resp, err := p.client.CreateMessages(ctx, msgReq)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Text != nil {
			text.WriteString(*c.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no content in Anthropic response")
	}

	return &Response{
		Text:       strings.TrimSpace(text.String()),
		Provider:   p.Name(),
		Model:      string(resp.Model),
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
