// Package llm implements the research planner, finding extractor and report
// writer on top of a langchaingo model.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Option configures the shared generation behaviour of Planner, Extractor and
// ReportWriter.
type Option func(*generator)

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRetry sets the number of attempts and the linear backoff step between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(g *generator) {
		if attempts > 0 {
			g.maxRetries = attempts
		}
		g.backoff = backoff
	}
}

type generator struct {
	model      llms.Model
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

func newGenerator(model llms.Model, opts []Option) generator {
	g := generator{
		model:      model,
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// generateWithRetry attempts to generate content and validates it using the provided function.
// It retries up to maxRetries times if the LLM fails or the validator returns an error.
func (g *generator) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error, options ...llms.CallOption) (string, error) {
	var lastErr error

	for i := 0; i < g.maxRetries; i++ {
		if i > 0 {
			g.logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.backoff * time.Duration(i)): // Linear backoff
			}
		}

		resp, err := g.model.GenerateContent(ctx, prompts, options...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", g.maxRetries, lastErr)
}

// stripCodeFence removes a markdown code fence some models put around JSON
// even in JSON mode.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func responseFormat(schema string) string {
	return "\n\n# Response Format:\n\n" + schema
}

func nowLine() string {
	return "Today is " + time.Now().UTC().Format("2006-01-02") + "."
}
