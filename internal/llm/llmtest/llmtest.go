// Package llmtest provides a scripted LLM provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/factlens/internal/llm"
)

// Reply is one scripted provider answer
type Reply struct {
	Text   string
	Err    error
	Tokens int
}

// Text returns a successful plain-text reply
func Text(s string) Reply { return Reply{Text: s, Tokens: len(s) / 4} }

// JSON returns a successful reply containing v marshaled as JSON
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("llmtest: marshal reply: %v", err))
	}
	return Reply{Text: string(b), Tokens: len(b) / 4}
}

// Fail returns a failing reply
func Fail(err error) Reply { return Reply{Err: err} }

// Provider replays scripted replies in order, or routes every request
// through Handler when one is set
type Provider struct {
	name    string
	mu      sync.Mutex
	replies []Reply
	calls   []llm.Request

	// Handler, when set, answers every request instead of the script
	Handler func(req llm.Request) Reply

	// OnCall runs as each call starts
	OnCall func()

	// Delay holds every answer back; a call whose ctx ends first is aborted
	Delay time.Duration

	aborted int
}

// New creates a scripted provider
func New(name string, replies ...Reply) *Provider {
	return &Provider{name: name, replies: replies}
}

// NewRouted creates a provider that answers through handler
func NewRouted(name string, handler func(req llm.Request) Reply) *Provider {
	return &Provider{name: name, Handler: handler}
}

// Name returns the provider name
func (p *Provider) Name() string { return p.name }

// IsAvailable always reports true
func (p *Provider) IsAvailable(ctx context.Context) bool { return true }

// Generate returns the next scripted reply
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.OnCall != nil {
		p.OnCall()
	}
	if p.Delay > 0 {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.aborted++
			p.mu.Unlock()
			return nil, ctx.Err()
		case <-time.After(p.Delay):
		}
	}

	p.mu.Lock()
	var reply Reply
	switch {
	case p.Handler != nil:
		p.mu.Unlock()
		reply = p.Handler(req)
	case len(p.replies) == 0:
		p.mu.Unlock()
		return nil, fmt.Errorf("llmtest: %s has no scripted reply left", p.name)
	default:
		reply = p.replies[0]
		p.replies = p.replies[1:]
		p.mu.Unlock()
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.Response{
		Text:       reply.Text,
		Provider:   p.name,
		Model:      "scripted",
		TokensUsed: reply.Tokens,
	}, nil
}

// Calls returns a copy of every request received
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// Aborted returns the number of calls cut short by their ctx
func (p *Provider) Aborted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

// CallCount returns the number of requests received
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Gateway wraps providers in a gateway with no retries or timeouts
func Gateway(providers ...llm.Provider) *llm.Gateway {
	return llm.NewGateway(providers, llm.GatewayOptions{Deterministic: true, MaxTokens: 1024})
}
