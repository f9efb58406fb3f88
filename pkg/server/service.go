package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/llm"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

var (
	// ErrInvalidRequest marks caller mistakes; the handler answers 400.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSearchUnavailable is returned when no learning index is configured.
	ErrSearchUnavailable = errors.New("learning search is not configured")
	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("service is shutting down")
)

const (
	DefaultDepth    = 2
	DefaultBreadth  = 2
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JobStore persists jobs, their progress and their logs.
type JobStore interface {
	LogWriter
	CreateJob(ctx context.Context, query string, depth, breadth int) (*database.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]database.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, state research.ProgressState) error
	CompleteJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, report string) error
	FailJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, reason string) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
	Ping(ctx context.Context) error
}

// ReportWriter turns a finished run into a markdown report.
type ReportWriter interface {
	Write(ctx context.Context, query string, result research.ResearchResult) (string, error)
}

// LearningIndex makes the learnings of finished jobs searchable.
type LearningIndex interface {
	IndexLearnings(ctx context.Context, jobID, query string, learnings []string) error
	Search(ctx context.Context, jobID, text string, topK int) ([]vectorstore.LearningMatch, error)
}

type Service struct {
	Store   JobStore
	Engine  *research.ResearchEngine
	Reports ReportWriter  // optional; without it the report lists the learnings
	Index   LearningIndex // optional
	Logger  *slog.Logger

	runTimeout time.Duration
	slots      chan struct{}
	wake       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  []database.Job // waiting jobs, oldest first
	closed bool
}

// ServiceConfig bounds how the service runs jobs.
type ServiceConfig struct {
	MaxConcurrentRuns int
	RunTimeout        time.Duration
}

func NewService(store JobStore, engine *research.ResearchEngine, cfg ServiceConfig) *Service {
	if cfg.MaxConcurrentRuns < 1 {
		cfg.MaxConcurrentRuns = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		Store:      store,
		Engine:     engine,
		Logger:     slog.Default(),
		runTimeout: cfg.RunTimeout,
		slots:      make(chan struct{}, cfg.MaxConcurrentRuns),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

type CreateJobRequest struct {
	Query   string `json:"query"`
	Depth   int    `json:"depth"`
	Breadth int    `json:"breadth"`
}

// Normalize applies defaults and validates the request.
func (r *CreateJobRequest) Normalize(maxDepth, maxBreadth int) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.Depth == 0 {
		r.Depth = DefaultDepth
	}
	if r.Breadth == 0 {
		r.Breadth = DefaultBreadth
	}
	if r.Depth < 1 || r.Depth > maxDepth {
		return fmt.Errorf("%w: depth must be between 1 and %d", ErrInvalidRequest, maxDepth)
	}
	if r.Breadth < 1 || r.Breadth > maxBreadth {
		return fmt.Errorf("%w: breadth must be between 1 and %d", ErrInvalidRequest, maxBreadth)
	}
	return nil
}

// CreateJob stores a pending job and queues it. Jobs start in creation order
// as run slots free up.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*database.Job, error) {
	if err := req.Normalize(s.Engine.BudgetLimits()); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrShuttingDown
	}

	job, err := s.Store.CreateJob(ctx, req.Query, req.Depth, req.Breadth)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.abandon(*job)
		return nil, ErrShuttingDown
	}
	s.queue = append(s.queue, *job)
	jobsQueued.Inc()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job, nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	return s.Store.GetJob(ctx, id)
}

// ListJobs returns one page of jobs, newest first. A zero limit means the
// default page size; larger limits are clamped.
func (s *Service) ListJobs(ctx context.Context, limit, offset int) ([]database.Job, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidRequest)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	return s.Store.ListJobs(ctx, limit, offset)
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	if _, err := s.Store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.Store.GetJobLogs(ctx, jobID)
}

func (s *Service) SearchLearnings(ctx context.Context, jobID uuid.UUID, text string, topK int) ([]vectorstore.LearningMatch, error) {
	if s.Index == nil {
		return nil, ErrSearchUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: search text is required", ErrInvalidRequest)
	}
	if _, err := s.Store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.Index.Search(ctx, jobID.String(), text, topK)
}

// Health reports whether the job store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

// Shutdown stops accepting jobs, cancels running ones and waits for their
// workers to record the outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch starts queued jobs one at a time, oldest first, each once a run
// slot is free. On shutdown every job still waiting is failed.
func (s *Service) dispatch() {
	defer s.wg.Done()
	for {
		job, ok := s.nextJob()
		if !ok {
			s.abandonQueued()
			return
		}
		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			jobsQueued.Dec()
			s.abandon(job)
			s.abandonQueued()
			return
		}
		jobsQueued.Dec()
		s.wg.Add(1)
		go s.runJob(job)
	}
}

// nextJob blocks until a job is queued. It reports false once the service
// is shutting down.
func (s *Service) nextJob() (database.Job, bool) {
	for {
		if s.ctx.Err() != nil {
			return database.Job{}, false
		}
		s.mu.Lock()
		if len(s.queue) > 0 {
			job := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return job, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.ctx.Done():
		}
	}
}

func (s *Service) abandonQueued() {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, job := range queued {
		jobsQueued.Dec()
		s.abandon(job)
	}
}

// abandon fails a job that never got to run.
func (s *Service) abandon(job database.Job) {
	s.failJob(context.Background(), s.jobLogger(job.ID), job.ID, research.ResearchResult{}, ErrShuttingDown.Error())
}

func (s *Service) jobLogger(id uuid.UUID) *slog.Logger {
	return slog.New(NewDBLogHandler(s.Store, id, s.Logger.Handler())).With("job_id", id.String())
}

// runJob runs one job in a slot acquired by dispatch.
func (s *Service) runJob(job database.Job) {
	defer s.wg.Done()
	jobsRunning.Inc()
	defer func() {
		jobsRunning.Dec()
		<-s.slots
	}()

	// Store writes outlive cancellation so that the outcome is always recorded.
	storeCtx := context.Background()
	logger := s.jobLogger(job.ID)

	if err := s.Store.MarkRunning(storeCtx, job.ID); err != nil {
		logger.Error("Failed to mark job running", "error", err)
	}

	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.research(ctx, logger, job)
	if err != nil {
		s.failJob(storeCtx, logger, job.ID, result, fmt.Sprintf("Research failed: %v", err))
		return
	}

	report, err := s.writeReport(ctx, job.Query, result)
	if err != nil {
		s.failJob(storeCtx, logger, job.ID, result, fmt.Sprintf("Report generation failed: %v", err))
		return
	}

	if s.Index != nil && len(result.Learnings) > 0 {
		if err := s.Index.IndexLearnings(ctx, job.ID.String(), job.Query, result.Learnings); err != nil {
			logger.Warn("Failed to index learnings", "error", err)
		}
	}

	if err := s.Store.CompleteJob(storeCtx, job.ID, result, report); err != nil {
		logger.Error("Failed to save final report to DB", "error", err)
		return
	}
	jobsTotal.WithLabelValues(string(database.StatusCompleted)).Inc()
	logger.Info("Research job completed", "learnings", len(result.Learnings), "sources", len(result.Sources))
}

// research runs the engine and persists the latest progress snapshot in the
// background so that a slow store never holds up the run.
func (s *Service) research(ctx context.Context, logger *slog.Logger, job database.Job) (research.ResearchResult, error) {
	latest := make(chan research.ProgressState, 1)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		for state := range latest {
			if err := s.Store.UpdateProgress(context.Background(), job.ID, state); err != nil {
				logger.Error("Failed to save progress to DB", "error", err)
			}
		}
	}()

	// Callbacks are serialized, so draining and refilling cannot race.
	onProgress := func(state research.ProgressState) {
		select {
		case <-latest:
		default:
		}
		latest <- state
	}

	result, err := s.Engine.ForLogger(logger).Run(ctx, job.Query, job.Depth, job.Breadth, onProgress)
	close(latest)
	<-flushed
	return result, err
}

func (s *Service) writeReport(ctx context.Context, query string, result research.ResearchResult) (string, error) {
	if s.Reports == nil {
		return LearningsReport(query, result), nil
	}
	return s.Reports.Write(ctx, query, result)
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, result research.ResearchResult, reason string) {
	logger.Error(reason)
	jobsTotal.WithLabelValues(string(database.StatusFailed)).Inc()
	if err := s.Store.FailJob(ctx, jobID, result, reason); err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
}

// LearningsReport renders a result as a plain markdown list.
func LearningsReport(query string, result research.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Learnings\n\n", query)
	if len(result.Learnings) == 0 {
		b.WriteString("No learnings were gathered.\n")
	}
	for _, l := range result.Learnings {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(llm.SourcesSection(result.Sources))
	return b.String()
}
