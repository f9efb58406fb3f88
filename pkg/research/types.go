package research

import "context"

// MaxQueryLength bounds the length (in runes) of a dispatched sub-query.
const MaxQueryLength = 400

// Document is a single normalized snippet returned by a ContentSource.
type Document struct {
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
}

// SubQuery is a focused question produced by the Planner.
type SubQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"research_goal"`
}

// Finding is what the Extractor distills from the documents of one SubQuery.
type Finding struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// ResearchResult is the merged output of a frame or a whole run.
type ResearchResult struct {
	Learnings []string `json:"learnings"`
	Sources   []string `json:"sources"`
}

// ProgressState is a point-in-time view of a run's traversal.
type ProgressState struct {
	CurrentDepth     int    `json:"current_depth"`
	TotalDepth       int    `json:"total_depth"`
	CurrentBreadth   int    `json:"current_breadth"`
	TotalBreadth     int    `json:"total_breadth"`
	CurrentQuery     string `json:"current_query,omitempty"`
	TotalQueries     int    `json:"total_queries"`
	CompletedQueries int    `json:"completed_queries"`
}

// Frame is one node of the research tree. Frames are passed by value and every
// child gets its own copies of the slices and the issued set.
type Frame struct {
	Topic            string
	DepthRemaining   int
	BreadthRemaining int
	Learnings        []string
	Sources          []string
	// Issued holds normalized queries already dispatched on the path from the root.
	Issued map[string]struct{}
}

// child derives the frame for a follow-up question.
func (f Frame) child(topic string, depth, breadth int, learnings, sources []string, issued []string) Frame {
	c := Frame{
		Topic:            topic,
		DepthRemaining:   depth,
		BreadthRemaining: breadth,
		Learnings:        append(append(make([]string, 0, len(f.Learnings)+len(learnings)), f.Learnings...), learnings...),
		Sources:          append(append(make([]string, 0, len(f.Sources)+len(sources)), f.Sources...), sources...),
		Issued:           make(map[string]struct{}, len(f.Issued)+len(issued)),
	}
	for q := range f.Issued {
		c.Issued[q] = struct{}{}
	}
	for _, q := range issued {
		c.Issued[q] = struct{}{}
	}
	return c
}

// ContentSource performs one query -> documents lookup. Returning zero documents
// is not an error.
type ContentSource interface {
	Fetch(ctx context.Context, query string) ([]Document, error)
}

// Planner produces at most maxQueries sub-queries for a topic.
type Planner interface {
	Plan(ctx context.Context, topic string, priorLearnings []string, maxQueries int) ([]SubQuery, error)
}

// Extractor distills learnings and follow-up questions from documents.
type Extractor interface {
	Extract(ctx context.Context, q SubQuery, docs []Document) (Finding, error)
}

// ProgressFunc receives progress snapshots during a run.
type ProgressFunc func(state ProgressState)
