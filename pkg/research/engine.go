package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency  = 2
	DefaultMaxDepth     = 5
	DefaultMaxBreadth   = 5
	DefaultMaxLearnings = 3
	DefaultMaxFollowUps = 3
)

// ResearchEngine drives the recursive plan -> fetch -> extract -> recurse loop.
// It holds no per-run state and can serve concurrent runs.
type ResearchEngine struct {
	Source    ContentSource
	Planner   Planner
	Extractor Extractor
	Logger    *slog.Logger

	concurrency  int
	maxDepth     int
	maxBreadth   int
	narrow       BreadthPolicy
	maxLearnings int
	maxFollowUps int
}

// Option configures a ResearchEngine.
type Option func(*ResearchEngine)

// WithConcurrency sets how many fetch+extract units of one run may be in flight.
func WithConcurrency(n int) Option {
	return func(e *ResearchEngine) { e.concurrency = n }
}

// WithBreadthPolicy sets how breadth narrows from a frame to its children.
func WithBreadthPolicy(p BreadthPolicy) Option {
	return func(e *ResearchEngine) {
		if p != nil {
			e.narrow = p
		}
	}
}

// WithBudgetLimits sets the largest depth and breadth a caller may request.
func WithBudgetLimits(maxDepth, maxBreadth int) Option {
	return func(e *ResearchEngine) {
		e.maxDepth = maxDepth
		e.maxBreadth = maxBreadth
	}
}

// WithFindingLimits caps learnings and follow-up questions kept per sub-query.
func WithFindingLimits(learnings, followUps int) Option {
	return func(e *ResearchEngine) {
		e.maxLearnings = learnings
		e.maxFollowUps = followUps
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *ResearchEngine) {
		if l != nil {
			e.Logger = l
		}
	}
}

// NewEngine validates the collaborators and returns a ready engine.
func NewEngine(src ContentSource, planner Planner, extractor Extractor, opts ...Option) (*ResearchEngine, error) {
	e := &ResearchEngine{
		Source:       src,
		Planner:      planner,
		Extractor:    extractor,
		Logger:       slog.Default(),
		concurrency:  DefaultConcurrency,
		maxDepth:     DefaultMaxDepth,
		maxBreadth:   DefaultMaxBreadth,
		narrow:       HalveBreadth,
		maxLearnings: DefaultMaxLearnings,
		maxFollowUps: DefaultMaxFollowUps,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch {
	case src == nil:
		return nil, invalidConfig("content source is required")
	case planner == nil:
		return nil, invalidConfig("planner is required")
	case extractor == nil:
		return nil, invalidConfig("extractor is required")
	case e.concurrency < 1:
		return nil, invalidConfig("concurrency must be at least 1, got %d", e.concurrency)
	case e.maxDepth < 1 || e.maxBreadth < 1:
		return nil, invalidConfig("budget limits must be positive, got depth %d breadth %d", e.maxDepth, e.maxBreadth)
	case e.maxLearnings < 1 || e.maxFollowUps < 0:
		return nil, invalidConfig("finding limits out of range: learnings %d follow-ups %d", e.maxLearnings, e.maxFollowUps)
	}
	return e, nil
}

// ForLogger returns a shallow copy of the engine that logs to l. Used to attach
// a per-job logger without touching the shared engine.
func (e *ResearchEngine) ForLogger(l *slog.Logger) *ResearchEngine {
	c := *e
	c.Logger = l
	return &c
}

// Concurrency reports the per-run in-flight unit limit.
func (e *ResearchEngine) Concurrency() int {
	return e.concurrency
}

// BudgetLimits reports the largest depth and breadth Run accepts.
func (e *ResearchEngine) BudgetLimits() (maxDepth, maxBreadth int) {
	return e.maxDepth, e.maxBreadth
}

// Run researches query down to maxDepth levels with at most maxBreadth sub-queries
// at the root. Branch failures only reduce the result; the returned error is
// non-nil for invalid arguments (ErrInvalidConfig, nothing dispatched) or when ctx
// ends before the tree resolves (ErrRunAborted, partial result returned).
func (e *ResearchEngine) Run(ctx context.Context, query string, maxDepth, maxBreadth int, onProgress ProgressFunc) (ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ResearchResult{}, invalidConfig("query is empty")
	}
	if maxDepth < 1 || maxDepth > e.maxDepth {
		return ResearchResult{}, invalidConfig("depth must be between 1 and %d, got %d", e.maxDepth, maxDepth)
	}
	if maxBreadth < 1 || maxBreadth > e.maxBreadth {
		return ResearchResult{}, invalidConfig("breadth must be between 1 and %d, got %d", e.maxBreadth, maxBreadth)
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &run{
		engine:   e,
		sem:      semaphore.NewWeighted(int64(e.concurrency)),
		progress: NewProgress(maxDepth, maxBreadth, onProgress),
		log:      logger,
	}

	start := time.Now()
	r.log.Info("Starting research run", "query", query, "depth", maxDepth, "breadth", maxBreadth, "concurrency", e.concurrency)

	root := Frame{
		Topic:            query,
		DepthRemaining:   maxDepth,
		BreadthRemaining: maxBreadth,
		Issued:           map[string]struct{}{},
	}
	result := r.frame(ctx, root, 1)
	runDuration.Observe(time.Since(start).Seconds())

	snap := r.progress.Snapshot()
	if err := ctx.Err(); err != nil {
		runsTotal.WithLabelValues("aborted").Inc()
		r.log.Warn("Research run aborted", "error", err, "completed", snap.CompletedQueries, "total", snap.TotalQueries)
		return result, fmt.Errorf("%w: %w", ErrRunAborted, err)
	}

	runsTotal.WithLabelValues("completed").Inc()
	r.log.Info("Research run complete",
		"learnings", len(result.Learnings),
		"sources", len(result.Sources),
		"queries", snap.CompletedQueries,
		"duration", time.Since(start))
	return result, nil
}

// run carries the state shared by every frame of one Run call.
type run struct {
	engine   *ResearchEngine
	sem      *semaphore.Weighted
	progress *Progress
	log      *slog.Logger
}

// frame plans a frame, runs its units concurrently and merges everything below it.
func (r *run) frame(ctx context.Context, f Frame, level int) ResearchResult {
	own := ResearchResult{Learnings: f.Learnings, Sources: f.Sources}
	if f.DepthRemaining <= 0 || f.BreadthRemaining <= 0 || ctx.Err() != nil {
		return Merge(own)
	}

	r.progress.enterLevel(level, f.BreadthRemaining, f.Topic)

	planned, err := r.engine.Planner.Plan(ctx, f.Topic, f.Learnings, f.BreadthRemaining)
	if err != nil {
		planFailures.Inc()
		r.log.Warn("Planning failed, frame yields nothing",
			"level", level,
			"error", &StageError{Stage: StagePlan, Query: f.Topic, Err: err})
		return Merge(own)
	}

	queries := r.sanitize(planned, f)
	if len(queries) == 0 {
		r.log.Info("No sub-queries for frame", "level", level, "topic", f.Topic)
		return Merge(own)
	}

	issued := make([]string, len(queries))
	for i, q := range queries {
		issued[i] = NormalizeQuery(q.Query)
	}
	r.progress.dispatched(len(queries), queries[0].Query)
	r.log.Info("Dispatching sub-queries", "level", level, "count", len(queries), "depth_remaining", f.DepthRemaining)

	results := make([]ResearchResult, len(queries)+1)
	results[0] = own

	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			results[i+1] = r.unit(ctx, f, q, level, issued)
			return nil
		})
	}
	_ = g.Wait()

	return Merge(results...)
}

// sanitize enforces the planner contract: non-empty, bounded, unique within the
// sibling set, not already issued on this branch, at most BreadthRemaining.
func (r *run) sanitize(planned []SubQuery, f Frame) []SubQuery {
	out := make([]SubQuery, 0, min(len(planned), f.BreadthRemaining))
	seen := make(map[string]struct{}, len(planned))

	for _, q := range planned {
		if len(out) >= f.BreadthRemaining {
			break
		}
		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" || utf8.RuneCountInString(q.Query) > MaxQueryLength {
			continue
		}
		key := NormalizeQuery(q.Query)
		if _, dup := seen[key]; dup {
			r.log.Debug("Dropping duplicate sub-query", "query", q.Query)
			continue
		}
		if _, done := f.Issued[key]; done {
			r.log.Debug("Dropping sub-query already issued on branch", "query", q.Query)
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// unit fetches and extracts one sub-query, then recurses into its follow-ups.
func (r *run) unit(ctx context.Context, f Frame, q SubQuery, level int, issued []string) ResearchResult {
	out := r.investigate(ctx, q)
	r.logOutcome(q, out)
	r.progress.completed(q.Query)

	finding := out.finding
	own := ResearchResult{Learnings: finding.Learnings, Sources: out.sources}
	if f.DepthRemaining <= 1 || len(finding.FollowUpQuestions) == 0 {
		return own
	}
	if ctx.Err() != nil {
		r.log.Debug("Run no longer wanted, not recursing", "query", q.Query)
		return own
	}

	breadth := min(r.engine.narrow(f.BreadthRemaining), f.BreadthRemaining)
	results := make([]ResearchResult, len(finding.FollowUpQuestions)+1)
	results[0] = own

	var g errgroup.Group
	for i, question := range finding.FollowUpQuestions {
		child := f.child(question, f.DepthRemaining-1, breadth, finding.Learnings, out.sources, issued)
		g.Go(func() error {
			results[i+1] = r.frame(ctx, child, level+1)
			return nil
		})
	}
	_ = g.Wait()

	return Merge(results...)
}

// unitOutcome is what one unit produced. status is the metrics label.
type unitOutcome struct {
	finding Finding
	sources []string
	status  string
	err     error
}

// investigate runs Fetch and Extract while holding one concurrency slot. Every
// failure is turned into an empty contribution. Nothing is logged while the
// slot is held.
func (r *run) investigate(ctx context.Context, q SubQuery) (out unitOutcome) {
	defer func() { unitsTotal.WithLabelValues(out.status).Inc() }()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return unitOutcome{status: "aborted"}
	}
	unitsInFlight.Inc()
	start := time.Now()
	defer func() {
		unitDuration.Observe(time.Since(start).Seconds())
		unitsInFlight.Dec()
		r.sem.Release(1)
	}()

	docs, err := r.engine.Source.Fetch(ctx, q.Query)
	if err != nil {
		return unitOutcome{status: "fetch_failed", err: &StageError{Stage: StageFetch, Query: q.Query, Err: err}}
	}
	if len(docs) == 0 {
		return unitOutcome{status: "no_results"}
	}

	finding, err := r.engine.Extractor.Extract(ctx, q, docs)
	if err != nil {
		return unitOutcome{status: "extract_failed", err: &StageError{Stage: StageExtract, Query: q.Query, Err: err}}
	}
	if ctx.Err() != nil {
		return unitOutcome{status: "aborted"}
	}

	return unitOutcome{finding: r.bound(finding), sources: sourceIDs(docs), status: "ok"}
}

func (r *run) logOutcome(q SubQuery, out unitOutcome) {
	switch out.status {
	case "fetch_failed":
		r.log.Warn("Fetch failed", "error", out.err)
	case "extract_failed":
		r.log.Warn("Extraction failed", "error", out.err)
	case "no_results":
		r.log.Info("No documents found", "query", q.Query)
	case "ok":
		r.log.Info("Extracted finding", "query", q.Query, "learnings", len(out.finding.Learnings), "follow_ups", len(out.finding.FollowUpQuestions))
	}
}

// bound trims blanks and duplicates and applies the per-finding caps.
func (r *run) bound(f Finding) Finding {
	learnings := Merge(ResearchResult{Learnings: f.Learnings}).Learnings
	if len(learnings) > r.engine.maxLearnings {
		learnings = learnings[:r.engine.maxLearnings]
	}

	followUps := make([]string, 0, len(f.FollowUpQuestions))
	seen := make(map[string]struct{})
	for _, q := range f.FollowUpQuestions {
		if len(followUps) >= r.engine.maxFollowUps {
			break
		}
		q = strings.TrimSpace(q)
		key := NormalizeQuery(q)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		followUps = append(followUps, q)
	}
	return Finding{Learnings: learnings, FollowUpQuestions: followUps}
}

func sourceIDs(docs []Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.SourceID != "" {
			ids = append(ids, d.SourceID)
		}
	}
	return ids
}
