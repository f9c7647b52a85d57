package llm

import (
	"context"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Provider        string
	Model           string
	BaseURL         string
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "":
		return nil, ErrUnsupportedProvider{Provider: "(empty)"}
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// Configured reports whether the config carries a credential for its
// selected provider. Callers fall back to deterministic output when not.
func (c Config) Configured() bool {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	default:
		return false
	}
}
