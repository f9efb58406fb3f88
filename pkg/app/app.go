// Package app wires the configured models, content source and engine so the
// server and the CLI run research the same way.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/llm"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

// Research bundles a ready engine with the report writer for its results.
type Research struct {
	Engine  *research.ResearchEngine
	Reports *llm.ReportWriter
}

// APIKey returns the key of the configured LLM provider.
func APIKey(cfg *config.Config) string {
	switch cfg.LLMProvider {
	case clients.ProviderAnthropic:
		return cfg.AnthropicApiKey
	case clients.ProviderOpenAI:
		return cfg.OpenAIApiKey
	default:
		return cfg.GoogleApiKey
	}
}

// NewResearch builds the engine described by cfg. The fast model plans and
// extracts; the reasoning model writes reports.
func NewResearch(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Research, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := research.BreadthPolicyByName(cfg.BreadthPolicy)
	if err != nil {
		return nil, err
	}

	models, err := clients.NewModels(ctx, cfg.LLMProvider, APIKey(cfg),
		clients.ModelType(cfg.FastModel), clients.ModelType(cfg.ReasoningModel))
	if err != nil {
		return nil, fmt.Errorf("init models: %w", err)
	}

	src, err := tools.NewSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	llmOpts := []llm.Option{llm.WithLogger(logger)}
	planner := llm.NewPlanner(models.Fast, llmOpts...)
	extractor := llm.NewExtractor(models.Fast, llm.ExtractorConfig{
		MaxLearnings: cfg.MaxLearnings,
		MaxFollowUps: cfg.MaxFollowUps,
		ContextChars: cfg.ContextChars,
	}, llmOpts...)

	engine, err := research.NewEngine(src, planner, extractor,
		research.WithConcurrency(cfg.ConcurrencyLimit),
		research.WithBreadthPolicy(policy),
		research.WithBudgetLimits(cfg.MaxDepth, cfg.MaxBreadth),
		research.WithFindingLimits(cfg.MaxLearnings, cfg.MaxFollowUps),
		research.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &Research{
		Engine:  engine,
		Reports: llm.NewReportWriter(models.Reasoning, llmOpts...),
	}, nil
}
