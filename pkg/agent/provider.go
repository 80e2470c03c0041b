package agent

import (
	"context"
	"fmt"
)

// Provider is a model-completion client. Implementations are stateless
// and safe for concurrent use.
type Provider interface {
	// Complete makes one completion call.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// NewProvider creates a provider by name.
func NewProvider(provider, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for provider %s", provider)
	}

	switch provider {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
