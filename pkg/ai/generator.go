package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// GenerateJSON asks the provider for a JSON document instead of prose.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
	ProviderDeepseek     = "deepseek"

	defaultDeepseekModel = "deepseek-chat"
)

// GeneratorConfig selects and configures a provider.
type GeneratorConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// NewGenerator builds the configured provider. A missing API key for a hosted
// provider returns (nil, nil) so callers can run without AI.
func NewGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	switch provider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, nil
		}
		gen, err := NewGeminiGenerator(cfg.APIKey, cfg.Model, WithGeminiBaseURL(cfg.BaseURL))
		if err != nil {
			return nil, err
		}
		return gen, nil
	case ProviderDeepseek:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, nil
		}
		model := cfg.Model
		if strings.TrimSpace(model) == "" {
			model = defaultDeepseekModel
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, model), nil
	case ProviderOpenAICompat:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai-compat base url required")
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
