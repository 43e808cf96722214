// Package provider constructs the configured hosted model.
package provider

import (
	"context"
	"fmt"

	"github.com/harora-WM/chaos-engineering-api/internal/config"
	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/bedrock"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/gemini"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// Factory returns an invoker for a request's model selection.
type Factory func(ctx context.Context, sel models.ModelSelection) (*llm.Invoker, error)

// NewModel constructs the TextModel named by cfg.Provider.
func NewModel(ctx context.Context, cfg config.ModelConfig) (models.TextModel, error) {
	switch cfg.Provider {
	case config.ProviderBedrock:
		return bedrock.New(ctx, bedrock.Config{
			Region:   cfg.Bedrock.Region,
			ModelID:  cfg.Bedrock.ModelID,
			Endpoint: cfg.Bedrock.Endpoint,
		})
	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q: must be one of bedrock, gemini", cfg.Provider)
	}
}

// Apply returns cfg with the selection's non-empty fields applied to the
// active provider. Region only applies to Bedrock.
func Apply(cfg config.ModelConfig, sel models.ModelSelection) config.ModelConfig {
	switch cfg.Provider {
	case config.ProviderBedrock:
		if sel.Model != "" {
			cfg.Bedrock.ModelID = sel.Model
		}
		if sel.Region != "" {
			cfg.Bedrock.Region = sel.Region
		}
	case config.ProviderGemini:
		if sel.Model != "" {
			cfg.Gemini.Model = sel.Model
		}
	}
	return cfg
}

// NewFactory returns a Factory that reuses base for requests without an
// override and builds a fresh model otherwise.
func NewFactory(cfg config.ModelConfig, base models.TextModel) Factory {
	return func(ctx context.Context, sel models.ModelSelection) (*llm.Invoker, error) {
		model := base
		if applied := Apply(cfg, sel); applied != cfg {
			m, err := NewModel(ctx, applied)
			if err != nil {
				return nil, err
			}
			model = m
		}
		return llm.NewInvoker(model, llm.WithAttemptTimeout(cfg.InvokeTimeout)), nil
	}
}
