package server

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type storedLog struct {
	level    string
	message  string
	metadata []byte
}

// memoryStore is an in-memory JobStore.
type memoryStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*database.Job
	logs     map[uuid.UUID][]storedLog
	updates  int
	pingErr  error
	listArgs [2]int
	started  []uuid.UUID

	// beforeCreate runs at the start of CreateJob, outside the store lock.
	beforeCreate func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs: make(map[uuid.UUID]*database.Job),
		logs: make(map[uuid.UUID][]storedLog),
	}
}

func (m *memoryStore) CreateJob(_ context.Context, query string, depth, breadth int) (*database.Job, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job := &database.Job{
		ID:        uuid.New(),
		Query:     query,
		Depth:     depth,
		Breadth:   breadth,
		Status:    database.StatusPending,
		Learnings: []string{},
		Sources:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memoryStore) GetJob(_ context.Context, id uuid.UUID) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryStore) ListJobs(_ context.Context, limit, offset int) ([]database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listArgs = [2]int{limit, offset}
	jobs := make([]database.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	return jobs[:min(limit, len(jobs))], nil
}

func (m *memoryStore) update(id uuid.UUID, fn func(j *database.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memoryStore) MarkRunning(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(j *database.Job) {
		m.started = append(m.started, id)
		j.Status = database.StatusRunning
	})
}

func (m *memoryStore) UpdateProgress(_ context.Context, id uuid.UUID, state research.ProgressState) error {
	return m.update(id, func(j *database.Job) {
		m.updates++
		j.Progress = &state
	})
}

func (m *memoryStore) CompleteJob(_ context.Context, id uuid.UUID, result research.ResearchResult, report string) error {
	result = research.Merge(result)
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusCompleted
		j.Learnings = result.Learnings
		j.Sources = result.Sources
		j.Report = &report
	})
}

func (m *memoryStore) FailJob(_ context.Context, id uuid.UUID, result research.ResearchResult, reason string) error {
	result = research.Merge(result)
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusFailed
		j.Learnings = result.Learnings
		j.Sources = result.Sources
		j.Error = &reason
	})
}

func (m *memoryStore) InsertLog(_ context.Context, jobID uuid.UUID, _ time.Time, level, message string, metadata []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[jobID] = append(m.logs[jobID], storedLog{level: level, message: message, metadata: metadata})
	return nil
}

func (m *memoryStore) GetJobLogs(_ context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.LogEntry
	for i, l := range m.logs[jobID] {
		out = append(out, database.LogEntry{ID: i + 1, Level: l.level, Message: l.message, Metadata: l.metadata})
	}
	return out, nil
}

func (m *memoryStore) Ping(context.Context) error {
	return m.pingErr
}

func (m *memoryStore) startOrder() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.started...)
}

func (m *memoryStore) job(id uuid.UUID) database.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

type plannerFunc func(ctx context.Context, topic string, prior []string, maxQueries int) ([]research.SubQuery, error)

func (f plannerFunc) Plan(ctx context.Context, topic string, prior []string, maxQueries int) ([]research.SubQuery, error) {
	return f(ctx, topic, prior, maxQueries)
}

type sourceFunc func(ctx context.Context, query string) ([]research.Document, error)

func (f sourceFunc) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	return f(ctx, query)
}

type extractorFunc func(ctx context.Context, q research.SubQuery, docs []research.Document) (research.Finding, error)

func (f extractorFunc) Extract(ctx context.Context, q research.SubQuery, docs []research.Document) (research.Finding, error) {
	return f(ctx, q, docs)
}

type reportFunc func(ctx context.Context, query string, result research.ResearchResult) (string, error)

func (f reportFunc) Write(ctx context.Context, query string, result research.ResearchResult) (string, error) {
	return f(ctx, query, result)
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string][]string
	err     error
}

func (f *fakeIndex) IndexLearnings(_ context.Context, jobID, _ string, learnings []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.indexed == nil {
		f.indexed = make(map[string][]string)
	}
	f.indexed[jobID] = learnings
	return nil
}

func (f *fakeIndex) Search(_ context.Context, jobID, text string, topK int) ([]vectorstore.LearningMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vectorstore.LearningMatch
	for _, l := range f.indexed[jobID] {
		out = append(out, vectorstore.LearningMatch{Learning: l, Score: 1})
	}
	return out[:min(max(topK, 1), len(out))], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// twoQueryEngine plans two sub-queries for the topic and never recurses
// because the extractor returns no follow-up questions.
func twoQueryEngine(t *testing.T, fetch sourceFunc, opts ...research.Option) *research.ResearchEngine {
	t.Helper()
	if fetch == nil {
		fetch = func(_ context.Context, query string) ([]research.Document, error) {
			return []research.Document{{Text: "about " + query, SourceID: "https://example.com/" + query}}, nil
		}
	}
	planner := plannerFunc(func(_ context.Context, topic string, _ []string, maxQueries int) ([]research.SubQuery, error) {
		return []research.SubQuery{{Query: topic + " history"}, {Query: topic + " outlook"}}[:min(2, maxQueries)], nil
	})
	extractor := extractorFunc(func(_ context.Context, q research.SubQuery, _ []research.Document) (research.Finding, error) {
		return research.Finding{Learnings: []string{"learned " + q.Query}}, nil
	})
	e, err := research.NewEngine(fetch, planner, extractor, append([]research.Option{research.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return e
}

func newTestService(t *testing.T, store *memoryStore, engine *research.ResearchEngine, cfg ServiceConfig) *Service {
	t.Helper()
	s := NewService(store, engine, cfg)
	s.Logger = quietLogger()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitForStatus(t *testing.T, store *memoryStore, id uuid.UUID, status database.JobStatus) database.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		return store.job(id).Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return store.job(id)
}
