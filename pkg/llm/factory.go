package llm

import (
	"fmt"
	"strings"

	"github.com/postpilot/postpilot/pkg/config"
)

// constructor builds a provider from its settings.
type constructor func(config.ProviderConfig) Provider

// registration pairs a provider key with its constructor; order is the
// order keys are reported by Available.
type registration struct {
	key  string
	ctor constructor
}

// Factory constructs provider adapters from configuration.
type Factory struct {
	cfg      *config.Config
	registry []registration
}

// NewFactory creates a factory over the given configuration with all
// supported providers registered.
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
		registry: []registration{
			{"openai", func(pc config.ProviderConfig) Provider { return NewOpenAIProvider(pc) }},
			{"grok", func(pc config.ProviderConfig) Provider { return NewGrokProvider(pc) }},
			{"gemini", func(pc config.ProviderConfig) Provider { return NewGeminiProvider(pc) }},
		},
	}
}

// Create constructs the provider registered under key.
func (f *Factory) Create(key string) (Provider, error) {
	for _, reg := range f.registry {
		if reg.key == key {
			return reg.ctor(f.cfg.Provider(key)), nil
		}
	}
	return nil, fmt.Errorf("unsupported provider %q (available: %s)", key, strings.Join(f.Available(), ", "))
}

// Available returns the registered provider keys in registration order.
func (f *Factory) Available() []string {
	keys := make([]string, len(f.registry))
	for i, reg := range f.registry {
		keys[i] = reg.key
	}
	return keys
}

// Default constructs the provider selected by the configuration, falling
// back to openai when unset.
func (f *Factory) Default() (Provider, error) {
	key := f.cfg.AI.DefaultProvider
	if key == "" {
		key = "openai"
	}
	return f.Create(key)
}
