package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelType names a concrete model of one of the providers.
type ModelType string

const (
	// DefaultModel is the default model to use if none is specified
	DefaultModel ModelType = "gemini-3-flash-preview"
	ProModel     ModelType = "gemini-3-pro-preview"

	Claude4Sonnet ModelType = "claude-sonnet-4-20250514"
	Claude35Haiku ModelType = "claude-3-5-haiku-20241022"

	GPT41     ModelType = "gpt-4.1"
	GPT41Mini ModelType = "gpt-4.1-mini"
)

const (
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Models is the pair of models a research run uses: a fast one for planning and
// extraction and a reasoning one for the final report.
type Models struct {
	Fast      llms.Model
	Reasoning llms.Model
}

// DefaultModels returns the fast and reasoning model names of a provider.
func DefaultModels(provider string) (fast, reasoning ModelType, err error) {
	switch provider {
	case ProviderGoogle:
		return DefaultModel, ProModel, nil
	case ProviderAnthropic:
		return Claude35Haiku, Claude4Sonnet, nil
	case ProviderOpenAI:
		return GPT41Mini, GPT41, nil
	default:
		return "", "", fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// NewModel creates a langchaingo model for provider. An empty model name picks
// the provider's fast default.
func NewModel(ctx context.Context, provider string, model ModelType, apiKey string) (llms.Model, error) {
	if apiKey == "" {
		return nil, errors.New("missing API key for " + provider)
	}
	if model == "" {
		fast, _, err := DefaultModels(provider)
		if err != nil {
			return nil, err
		}
		model = fast
	}

	var (
		llm llms.Model
		err error
	)
	switch provider {
	case ProviderGoogle:
		// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
		llm, err = googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(string(model)))
	case ProviderAnthropic:
		llm, err = anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(string(model)))
	case ProviderOpenAI:
		llm, err = openai.New(openai.WithToken(apiKey), openai.WithModel(string(model)))
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s model %s: %w", provider, model, err)
	}
	return llm, nil
}

// NewModels creates the fast and reasoning models. Empty names fall back to
// the provider defaults.
func NewModels(ctx context.Context, provider, apiKey string, fast, reasoning ModelType) (Models, error) {
	defFast, defReasoning, err := DefaultModels(provider)
	if err != nil {
		return Models{}, err
	}
	if fast == "" {
		fast = defFast
	}
	if reasoning == "" {
		reasoning = defReasoning
	}

	f, err := NewModel(ctx, provider, fast, apiKey)
	if err != nil {
		return Models{}, err
	}
	r, err := NewModel(ctx, provider, reasoning, apiKey)
	if err != nil {
		return Models{}, err
	}
	return Models{Fast: f, Reasoning: r}, nil
}
