package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/research"
)

const plannerSystemPrompt = `You are an expert researcher. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff, assume the user is right when presented with news.
- Be highly organized and detailed; the user is a highly experienced analyst.
- Generate search queries that each cover a distinct aspect of the topic. Never repeat a query.
- Use the previous learnings to make queries more specific instead of asking for things already known.`

// Planner turns a topic into focused search queries.
type Planner struct {
	gen generator
}

// NewPlanner creates a planner backed by model.
func NewPlanner(model llms.Model, opts ...Option) *Planner {
	return &Planner{gen: newGenerator(model, opts)}
}

type subQueriesResponse struct {
	Queries []research.SubQuery `json:"queries"`
}

// Plan asks the model for at most maxQueries sub-queries. The result is
// deduplicated on normalized text and never longer than maxQueries.
func (p *Planner) Plan(ctx context.Context, topic string, priorLearnings []string, maxQueries int) ([]research.SubQuery, error) {
	if maxQueries <= 0 {
		return nil, nil
	}

	var resp subQueriesResponse
	_, err := p.gen.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, plannerSystemPrompt+"\n"+nowLine()+responseFormat(SubQueriesSchema(maxQueries))),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPlannerPrompt(topic, priorLearnings, maxQueries)),
	}, func(content string) error {
		// Reset for retry
		resp = subQueriesResponse{}
		if err := json.Unmarshal([]byte(stripCodeFence(content)), &resp); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrPlanningFailure, err)
	}

	out := make([]research.SubQuery, 0, min(len(resp.Queries), maxQueries))
	seen := make(map[string]struct{}, len(resp.Queries))
	for _, q := range resp.Queries {
		if len(out) >= maxQueries {
			break
		}
		q.Query = strings.TrimSpace(q.Query)
		key := research.NormalizeQuery(q.Query)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		q.ResearchGoal = strings.TrimSpace(q.ResearchGoal)
		out = append(out, q)
	}

	p.gen.logger.Debug("Generated sub-queries", "topic", topic, "count", len(out))
	return out, nil
}

func buildPlannerPrompt(topic string, priorLearnings []string, maxQueries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following prompt from the user, generate a list of search queries to research the topic. Return a maximum of %d queries, but feel free to return less if the original prompt is clear. Make sure each query is unique and not similar to each other.\n\n", maxQueries)
	b.WriteString("<prompt>")
	b.WriteString(topic)
	b.WriteString("</prompt>\n")
	if len(priorLearnings) > 0 {
		b.WriteString("\nHere are some learnings from previous research, use them to generate more specific queries:\n")
		for _, l := range priorLearnings {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}
