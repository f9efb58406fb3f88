package database

import (
	"testing"

	"github.com/mikeboe/deep-research/pkg/research"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDecodeJobJSON(t *testing.T) {
	var job Job
	err := decodeJobJSON(&job,
		[]byte(`{"current_depth":2,"total_depth":3,"total_queries":5,"completed_queries":4}`),
		[]byte(`["a","b"]`),
		nil)
	if err != nil {
		t.Fatalf("decodeJobJSON() error = %v", err)
	}
	if job.Progress == nil || job.Progress.CompletedQueries != 4 || job.Progress.CurrentDepth != 2 {
		t.Errorf("Progress = %+v", job.Progress)
	}
	if len(job.Learnings) != 2 {
		t.Errorf("Learnings = %v, want 2 entries", job.Learnings)
	}
	if job.Sources == nil || len(job.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil slice", job.Sources)
	}

	var pending Job
	if err := decodeJobJSON(&pending, nil, nil, nil); err != nil {
		t.Fatalf("decodeJobJSON() error = %v", err)
	}
	if pending.Progress != nil {
		t.Errorf("Progress = %+v, want nil for a job that never ran", pending.Progress)
	}

	if err := decodeJobJSON(&Job{}, nil, []byte(`{`), nil); err == nil {
		t.Error("decodeJobJSON() want error for malformed learnings")
	}
}

func TestMarshalResultDedupes(t *testing.T) {
	learnings, sources, err := marshalResult(research.ResearchResult{
		Learnings: []string{"x", "x", ""},
	})
	if err != nil {
		t.Fatalf("marshalResult() error = %v", err)
	}
	if string(learnings) != `["x"]` {
		t.Errorf("learnings = %s", learnings)
	}
	if string(sources) != `[]` {
		t.Errorf("sources = %s, want []", sources)
	}
}
