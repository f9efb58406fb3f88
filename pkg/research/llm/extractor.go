package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

const (
	DefaultContextChars = 25000
	trimChunkSize       = 1000
)

const extractorSystemPrompt = `You are an expert researcher extracting knowledge from search results.
- Learnings must be unique and not similar to each other.
- Make each learning concise and information dense.
- Include entities like people, places, companies, products and things, as well as exact metrics, numbers and dates.
- Only state what the contents support. Never add information from internal knowledge.`

// ExtractorConfig bounds the size of the prompt and of the returned finding.
type ExtractorConfig struct {
	MaxLearnings int
	MaxFollowUps int
	// ContextChars caps the characters taken from each document.
	ContextChars int
}

// Extractor distills learnings and follow-up questions from documents.
type Extractor struct {
	gen      generator
	cfg      ExtractorConfig
	splitter *splitter.TextSplitter
}

// NewExtractor creates an extractor backed by model. Unset MaxLearnings and
// ContextChars fall back to the defaults; MaxFollowUps may be zero.
func NewExtractor(model llms.Model, cfg ExtractorConfig, opts ...Option) *Extractor {
	if cfg.MaxLearnings <= 0 {
		cfg.MaxLearnings = research.DefaultMaxLearnings
	}
	if cfg.MaxFollowUps < 0 {
		cfg.MaxFollowUps = research.DefaultMaxFollowUps
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = DefaultContextChars
	}
	return &Extractor{
		gen:      newGenerator(model, opts),
		cfg:      cfg,
		splitter: splitter.NewRecursiveCharacterTextSplitter(trimChunkSize, 0),
	}
}

// Extract returns an empty finding without calling the model when docs is empty.
func (x *Extractor) Extract(ctx context.Context, q research.SubQuery, docs []research.Document) (research.Finding, error) {
	if len(docs) == 0 {
		return research.Finding{}, nil
	}

	contents, err := x.buildContents(docs)
	if err != nil {
		return research.Finding{}, fmt.Errorf("%w: trim documents: %w", research.ErrExtractionFailure, err)
	}
	if len(contents) == 0 {
		return research.Finding{}, nil
	}

	var finding research.Finding
	_, err = x.gen.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractorSystemPrompt+"\n"+nowLine()+responseFormat(FindingSchema(x.cfg.MaxLearnings, x.cfg.MaxFollowUps))),
		llms.TextParts(llms.ChatMessageTypeHuman, x.buildPrompt(q, contents)),
	}, func(content string) error {
		finding = research.Finding{}
		if err := json.Unmarshal([]byte(stripCodeFence(content)), &finding); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return research.Finding{}, fmt.Errorf("%w: %w", research.ErrExtractionFailure, err)
	}

	finding.Learnings = capStrings(finding.Learnings, x.cfg.MaxLearnings)
	finding.FollowUpQuestions = capStrings(finding.FollowUpQuestions, x.cfg.MaxFollowUps)
	return finding, nil
}

func (x *Extractor) buildContents(docs []research.Document) ([]string, error) {
	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		text, err := x.splitter.Trim(d.Text, x.cfg.ContextChars)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		var b strings.Builder
		b.WriteString("<content")
		if d.Title != "" {
			fmt.Fprintf(&b, " title=%q", d.Title)
		}
		if d.SourceID != "" {
			fmt.Fprintf(&b, " source=%q", d.SourceID)
		}
		b.WriteString(">\n")
		b.WriteString(text)
		b.WriteString("\n</content>")
		contents = append(contents, b.String())
	}
	return contents, nil
}

func (x *Extractor) buildPrompt(q research.SubQuery, contents []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following contents from a search for the query <query>%s</query>, generate a list of learnings from the contents. Return a maximum of %d learnings, but feel free to return less if the contents are clear. ", q.Query, x.cfg.MaxLearnings)
	fmt.Fprintf(&b, "Also generate a maximum of %d follow-up questions that would deepen the research.\n", x.cfg.MaxFollowUps)
	if q.ResearchGoal != "" {
		b.WriteString("\nResearch goal: ")
		b.WriteString(q.ResearchGoal)
		b.WriteString("\n")
	}
	b.WriteString("\n<contents>")
	b.WriteString(strings.Join(contents, "\n"))
	b.WriteString("</contents>")
	return b.String()
}

// capStrings drops blanks and keeps at most n entries.
func capStrings(items []string, n int) []string {
	out := make([]string, 0, min(len(items), n))
	for _, s := range items {
		if len(out) >= n {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
