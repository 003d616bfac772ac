package llm

import (
	"context"

	"github.com/postpilot/postpilot/pkg/config"
)

// GrokProvider implements Provider for the X.AI Grok API, which exposes an
// OpenAI-compatible chat completions endpoint.
type GrokProvider struct {
	*chatClient
}

// NewGrokProvider creates a Grok client.
func NewGrokProvider(cfg config.ProviderConfig) *GrokProvider {
	model := cfg.Model
	if model == "" {
		model = "grok-4-latest"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}

	return &GrokProvider{
		chatClient: newChatClient(chatClientConfig{
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			ModelName: model,
		}),
	}
}

// Name returns the registry key.
func (p *GrokProvider) Name() string { return "grok" }

// Request implements Provider.
func (p *GrokProvider) Request(ctx context.Context, messages []Message, opts RequestOptions) (string, error) {
	return p.request(ctx, messages, opts)
}
