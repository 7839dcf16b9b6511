// factory.go maps llm.provider names to StructuredCompleter constructors.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dandi-dev/dandi/internal/config"
)

// ErrMissingAPIKey is returned when a provider needs credentials and none were configured.
var ErrMissingAPIKey = errors.New("llm api key is not configured")

// FactoryFunc builds a completer from the LLM configuration.
type FactoryFunc func(ctx context.Context, cfg *config.LLMConfig) (StructuredCompleter, error)

var factories = map[string]FactoryFunc{
	"gemini": newGemini,
	"openai": newOpenAI,
}

// Providers lists the registered provider names.
func Providers() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCompleter creates the completer selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg *config.LLMConfig) (StructuredCompleter, error) {
	factory, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %s (must be one of: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	return factory(ctx, cfg)
}

func newGemini(ctx context.Context, cfg *config.LLMConfig) (StructuredCompleter, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return NewGeminiCompleter(ctx, GeminiOptions{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		Timeout:     cfg.Timeout,
		BaseURL:     cfg.BaseURL,
	})
}

func newOpenAI(_ context.Context, cfg *config.LLMConfig) (StructuredCompleter, error) {
	// Self-hosted OpenAI-compatible servers often run without credentials.
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrMissingAPIKey
	}
	return NewOpenAICompleter(OpenAIOptions{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		Timeout:     cfg.Timeout,
		BaseURL:     cfg.BaseURL,
	}), nil
}
