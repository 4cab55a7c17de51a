package llm

import (
	"context"
	"fmt"
)

// ProviderConfig carries what NewProvider needs to build a client.
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
}

// NewProvider builds the named provider. Hosted providers need an API key;
// without one ErrProviderNotAvailable is returned so callers can treat the
// provider as unconfigured.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL), nil
	case "openai", "anthropic", "gemini", "huggingface":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Name, ErrProviderNotAvailable)
	}
	switch cfg.Name {
	case "openai":
		if cfg.BaseURL != "" {
			return NewOpenAIProviderWithBaseURL(cfg.APIKey, cfg.BaseURL), nil
		}
		return NewOpenAIProvider(cfg.APIKey), nil
	case "anthropic":
		if cfg.BaseURL != "" {
			return NewAnthropicProviderWithBaseURL(cfg.APIKey, cfg.BaseURL), nil
		}
		return NewAnthropicProvider(cfg.APIKey), nil
	case "gemini":
		g, err := NewGeminiProvider(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL), nil
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-3.5-turbo"
	case "anthropic":
		return "claude-3-5-haiku-20241022"
	case "gemini":
		return DefaultGeminiModel
	case "huggingface":
		return "mistralai/Mixtral-8x7B-Instruct-v0.1"
	case "ollama":
		return "llama3.1"
	}
	return ""
}
