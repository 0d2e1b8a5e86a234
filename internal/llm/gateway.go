package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/reviewloop/reviewloop/internal/config"
)

// Gateway is the uniform chat interface every pipeline stage uses.
// Invoke submits the full message history and returns the assistant reply.
// WithTools returns a gateway that binds the given tools on each call;
// the receiver is unchanged.
type Gateway interface {
	Invoke(ctx context.Context, messages []Message) (Message, error)
	WithTools(tools []ToolDef) Gateway
}

// New builds the configured provider gateway, wrapped with rate limiting
// when llm.requests_per_second is set.
func New(cfg config.LLMConfig) (Gateway, error) {
	var gw Gateway
	switch cfg.Provider {
	case "openai":
		gw = NewOpenAIGateway(cfg)
	case "gemini":
		g, err := NewGeminiGateway(cfg)
		if err != nil {
			return nil, err
		}
		gw = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		gw = Throttle(gw, rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1))
	}
	return gw, nil
}

// throttled wraps a gateway with a shared token-bucket limiter
type throttled struct {
	inner   Gateway
	limiter *rate.Limiter
}

// Throttle caps the call rate of a gateway. The limiter is shared across
// WithTools derivatives so tool-bound calls draw from the same budget.
func Throttle(inner Gateway, limiter *rate.Limiter) Gateway {
	return &throttled{inner: inner, limiter: limiter}
}

func (t *throttled) Invoke(ctx context.Context, messages []Message) (Message, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Message{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.inner.Invoke(ctx, messages)
}

func (t *throttled) WithTools(tools []ToolDef) Gateway {
	return &throttled{inner: t.inner.WithTools(tools), limiter: t.limiter}
}
