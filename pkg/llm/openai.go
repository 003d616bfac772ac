package llm

import (
	"context"

	"github.com/postpilot/postpilot/pkg/config"
)

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	*chatClient
}

// NewOpenAIProvider creates an OpenAI client. An empty model falls back to
// the default; an empty API key is allowed and surfaces as an auth error on
// the first request.
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		chatClient: newChatClient(chatClientConfig{
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			ModelName: model,
		}),
	}
}

// Name returns the registry key.
func (p *OpenAIProvider) Name() string { return "openai" }

// Request implements Provider.
func (p *OpenAIProvider) Request(ctx context.Context, messages []Message, opts RequestOptions) (string, error) {
	return p.request(ctx, messages, opts)
}
