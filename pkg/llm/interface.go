// Package llm provides provider-neutral access to hosted LLM APIs.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a provider-neutral conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestOptions controls a single completion request.
type RequestOptions struct {
	Temperature float64
	MaxTokens   int
}

// withDefaults fills in the zero values used across all providers.
func (o RequestOptions) withDefaults() RequestOptions {
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 4000
	}
	return o
}

// Provider is a vendor-specific client implementing a uniform
// "send messages, get text" contract. Implementations hold no mutable
// state beyond configuration and are safe to construct per call.
type Provider interface {
	// Name returns the registry key of the provider.
	Name() string

	// Request sends the conversation and returns the response text.
	// It fails on network errors, non-success HTTP status, and malformed
	// response envelopes; callers own retry policy.
	Request(ctx context.Context, messages []Message, opts RequestOptions) (string, error)
}
