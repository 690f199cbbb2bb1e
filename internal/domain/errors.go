package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidState    = errors.New("invalid state")
	ErrExpired         = errors.New("expired")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrStoreFailed     = errors.New("store failed")
	ErrTransformFailed = errors.New("transform failed")
	ErrConflict        = errors.New("conflict")
	ErrDuplicate       = errors.New("duplicate job")
	ErrBusy            = errors.New("worker pool saturated")
)

// StateError reports an operation that is illegal for the job's current state.
type StateError struct {
	Current JobState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: job is %s", e.Current)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// CurrentState extracts the state carried by a StateError.
func CurrentState(err error) (JobState, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se.Current, true
	}
	return "", false
}

// Pipeline stages used to tag failures.
const (
	StageFetch      = "fetch"
	StagePreprocess = "preprocess"
	StageTransform  = "transform"
	StageStore      = "store"
	StagePipeline   = "pipeline"
	StageTimeout    = "timeout"
)

// StageError tags a background pipeline failure with the stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Stage + ": failed"
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
