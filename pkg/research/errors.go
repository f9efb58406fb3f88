package research

import (
	"errors"
	"fmt"
)

var (
	// ErrAdapterFailure marks a failed content source lookup (network, timeout, rate limit).
	ErrAdapterFailure = errors.New("content source failure")
	// ErrPlanningFailure marks a failed sub-query generation.
	ErrPlanningFailure = errors.New("planning failure")
	// ErrExtractionFailure marks a failed finding extraction.
	ErrExtractionFailure = errors.New("extraction failure")
	// ErrRunAborted is returned when the caller abandons a run.
	ErrRunAborted = errors.New("research run aborted")
	// ErrInvalidConfig is returned before any work is dispatched.
	ErrInvalidConfig = errors.New("invalid research configuration")
)

// Stage names the step of a unit or frame where a failure happened.
type Stage string

const (
	StagePlan    Stage = "plan"
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
)

// StageError wraps a branch failure. It matches both its stage sentinel and the
// underlying cause with errors.Is.
type StageError struct {
	Stage Stage
	Query string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Query, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Stage.sentinel(), e.Err}
}

func (s Stage) sentinel() error {
	switch s {
	case StagePlan:
		return ErrPlanningFailure
	case StageFetch:
		return ErrAdapterFailure
	default:
		return ErrExtractionFailure
	}
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
