package ai

import (
	"context"
	"fmt"
	"strings"

	"traffic-quiz-service/internal/config"
	"traffic-quiz-service/internal/logger"
)

// NewChainFromConfig builds the ordered provider chain, each provider wrapped
// with request logging. Providers without an API key are skipped.
func NewChainFromConfig(ctx context.Context, providers []config.Provider, log *logger.Logger) (*Chain, error) {
	var built []Provider
	for _, pc := range providers {
		if pc.APIKey == "" {
			log.Warn("ai provider has no api key, skipping", "provider", pc.Name)
			continue
		}
		var (
			p   Provider
			err error
		)
		switch strings.ToLower(pc.Name) {
		case "openai":
			p, err = NewOpenAIProvider(pc.APIKey, pc.Model, pc.BaseURL)
		case "openrouter":
			p, err = NewOpenRouterProvider(pc.APIKey, pc.Model, pc.BaseURL)
		case "anthropic":
			p, err = NewAnthropicProvider(pc.APIKey, pc.Model, pc.BaseURL)
		case "gemini":
			p, err = NewGeminiProvider(ctx, pc.APIKey, pc.Model)
		default:
			return nil, fmt.Errorf("unknown ai provider %q", pc.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("init %s provider: %w", pc.Name, err)
		}
		built = append(built, WithLogging(p, log))
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("no ai provider configured")
	}
	return NewChain(log, built...), nil
}
