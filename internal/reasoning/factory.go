// File: internal/reasoning/factory.go

// Package reasoning holds the interchangeable reasoning backend: provider
// clients, the fast/powerful tier router, and the credit-gated wrapper
// the agent actually talks to.
package reasoning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
)

// NewClient is a factory that builds the tier router for the configured
// provider. Provider "none" returns (nil, nil): the caller runs with deep
// mode disabled.
func NewClient(ctx context.Context, cfg config.ReasoningConfig, logger *zap.Logger) (schemas.ReasoningClient, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderGemini:
		powerful, err := NewGeminiClient(ctx, cfg, cfg.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create powerful-tier gemini client: %w", err)
		}
		fast, err := NewGeminiClient(ctx, cfg, fastModel(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fast-tier gemini client: %w", err)
		}
		return NewRouter(logger, fast, powerful)
	case config.ProviderOpenAI, config.ProviderOllama:
		powerful, err := NewOpenAIClient(cfg, cfg.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create powerful-tier client: %w", err)
		}
		fast, err := NewOpenAIClient(cfg, fastModel(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fast-tier client: %w", err)
		}
		return NewRouter(logger, fast, powerful)
	default:
		return nil, fmt.Errorf("unknown reasoning provider configured: %q", cfg.Provider)
	}
}

func fastModel(cfg config.ReasoningConfig) string {
	if cfg.FastModel != "" {
		return cfg.FastModel
	}
	return cfg.Model
}
