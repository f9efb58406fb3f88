package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ReportWriter composes a markdown report from a research result.
type ReportWriter struct {
	gen generator
}

// NewReportWriter creates a report writer backed by model.
func NewReportWriter(model llms.Model, opts ...Option) *ReportWriter {
	return &ReportWriter{gen: newGenerator(model, opts)}
}

// Write returns the report body followed by a sources section.
func (w *ReportWriter) Write(ctx context.Context, query string, result research.ResearchResult) (string, error) {
	w.gen.logger.Info("Compiling final report", "learnings", len(result.Learnings))

	var learnings strings.Builder
	for _, l := range result.Learnings {
		learnings.WriteString("<learning>\n")
		learnings.WriteString(l)
		learnings.WriteString("\n</learning>\n")
	}

	prompt := fmt.Sprintf(`Given the following prompt from the user, write a final report on the topic using the learnings from research. Make it as detailed as possible, aim for 3 or more pages, include ALL the learnings from research.

<prompt>%s</prompt>

Here are all the learnings from previous research:

<learnings>
%s</learnings>

Format as Markdown with Introduction, Key Findings, Discussion, and Conclusion.`, query, learnings.String())

	report, err := w.gen.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, nowLine()),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, func(content string) error {
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("empty report")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	report = strings.TrimSpace(report) + SourcesSection(result.Sources)
	w.gen.logger.Info("Final report generated", "length", len(report))
	return report, nil
}

// SourcesSection renders sources as a markdown list, or nothing when empty.
func SourcesSection(sources []string) string {
	if len(sources) == 0 {
		return "\n"
	}
	var b strings.Builder
	b.WriteString("\n\n## Sources\n\n")
	for _, s := range sources {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}
