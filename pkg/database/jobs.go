package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("research job not found")

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether a job in this status will not change anymore.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID        uuid.UUID               `json:"id"`
	Query     string                  `json:"query"`
	Depth     int                     `json:"depth"`
	Breadth   int                     `json:"breadth"`
	Status    JobStatus               `json:"status"`
	Progress  *research.ProgressState `json:"progress,omitempty"`
	Learnings []string                `json:"learnings"`
	Sources   []string                `json:"sources"`
	Report    *string                 `json:"report,omitempty"`
	Error     *string                 `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// JobRepository stores research jobs and their logs.
type JobRepository struct {
	DB *PostgresDB
}

func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{DB: db}
}

const jobColumns = `id, query, depth, breadth, status, progress, learnings, sources, report, error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job                          Job
		progress, learnings, sources []byte
	)
	err := row.Scan(&job.ID, &job.Query, &job.Depth, &job.Breadth, &job.Status,
		&progress, &learnings, &sources, &job.Report, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJobJSON(&job, progress, learnings, sources); err != nil {
		return nil, err
	}
	return &job, nil
}

func decodeJobJSON(job *Job, progress, learnings, sources []byte) error {
	if len(progress) > 0 {
		job.Progress = &research.ProgressState{}
		if err := json.Unmarshal(progress, job.Progress); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
	}
	job.Learnings = []string{}
	if len(learnings) > 0 {
		if err := json.Unmarshal(learnings, &job.Learnings); err != nil {
			return fmt.Errorf("decode learnings: %w", err)
		}
	}
	job.Sources = []string{}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &job.Sources); err != nil {
			return fmt.Errorf("decode sources: %w", err)
		}
	}
	return nil
}

func (r *JobRepository) CreateJob(ctx context.Context, query string, depth, breadth int) (*Job, error) {
	q := `
		INSERT INTO research_jobs (id, query, depth, breadth, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + jobColumns
	job, err := scanJob(r.DB.Pool.QueryRow(ctx, q, uuid.New(), query, depth, breadth))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(r.DB.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "mark job running",
		"UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", id)
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, state research.ProgressState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return r.exec(ctx, "save progress",
		"UPDATE research_jobs SET progress = $2, updated_at = NOW() WHERE id = $1", id, stateJSON)
}

func (r *JobRepository) CompleteJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, report string) error {
	learnings, sources, err := marshalResult(result)
	if err != nil {
		return err
	}
	return r.exec(ctx, "complete job", `
		UPDATE research_jobs
		SET status = 'completed', learnings = $2, sources = $3, report = $4, error = NULL, updated_at = NOW()
		WHERE id = $1`, id, learnings, sources, report)
}

// FailJob stores the reason together with whatever was learned before the failure.
func (r *JobRepository) FailJob(ctx context.Context, id uuid.UUID, result research.ResearchResult, reason string) error {
	learnings, sources, err := marshalResult(result)
	if err != nil {
		return err
	}
	return r.exec(ctx, "fail job", `
		UPDATE research_jobs
		SET status = 'failed', learnings = $2, sources = $3, error = $4, updated_at = NOW()
		WHERE id = $1`, id, learnings, sources, reason)
}

func (r *JobRepository) InsertLog(ctx context.Context, jobID uuid.UUID, ts time.Time, level, message string, metadata []byte) error {
	return r.exec(ctx, "insert log", `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)`, jobID, ts, level, message, metadata)
}

func (r *JobRepository) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	logs := []LogEntry{}
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Ping checks that the database is reachable.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

func (r *JobRepository) exec(ctx context.Context, what, query string, args ...any) error {
	tag, err := r.DB.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 && tag.Update() {
		return ErrJobNotFound
	}
	return nil
}

func marshalResult(result research.ResearchResult) ([]byte, []byte, error) {
	result = research.Merge(result)
	learnings, err := json.Marshal(result.Learnings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal learnings: %w", err)
	}
	sources, err := json.Marshal(result.Sources)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal sources: %w", err)
	}
	return learnings, sources, nil
}
