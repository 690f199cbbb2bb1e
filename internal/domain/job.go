package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobState enumerates job lifecycle states.
type JobState string

const (
	JobStateCreated    JobState = "created"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateExpired    JobState = "expired"
)

// ExpiredDetail is the error detail recorded when the staleness guard trips.
const ExpiredDetail = "expired"

// Terminal reports whether no further transitions are permitted from s.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known states.
func (s JobState) Valid() bool {
	switch s {
	case JobStateCreated, JobStateProcessing, JobStateCompleted, JobStateFailed, JobStateExpired:
		return true
	default:
		return false
	}
}

// ParseJobState normalizes free-form input into a known state.
func ParseJobState(raw string) (JobState, error) {
	s := JobState(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidInput, raw)
	}
	return s, nil
}

// Job tracks one uploaded artifact from upload through its transformed result.
//
// Version is the compare-and-swap stamp maintained by the JobStore; callers
// never bump it themselves.
type Job struct {
	ID          string     `json:"jobId"`
	State       JobState   `json:"status"`
	SourceRef   string     `json:"originalImage"`
	ResultRef   string     `json:"stagedImage,omitempty"`
	ErrorDetail string     `json:"error,omitempty"`
	Requester   string     `json:"email,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Version     int64      `json:"version"`
}

// NewJob returns a freshly created job.
func NewJob(id, sourceRef, requester string, now time.Time) *Job {
	return &Job{
		ID:        id,
		State:     JobStateCreated,
		SourceRef: sourceRef,
		Requester: requester,
		CreatedAt: now.UTC(),
	}
}

// Clone returns a deep copy so snapshots never alias store-owned records.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Age returns how long ago the job was created.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// Begin moves a created job into processing.
func (j *Job) Begin(now time.Time) error {
	if j.State != JobStateCreated {
		return &StateError{Current: j.State}
	}
	t := now.UTC()
	j.State = JobStateProcessing
	j.StartedAt = &t
	return nil
}

// Complete records a successful pipeline run.
func (j *Job) Complete(resultRef string, now time.Time) error {
	if j.State != JobStateProcessing {
		return &StateError{Current: j.State}
	}
	if strings.TrimSpace(resultRef) == "" {
		return fmt.Errorf("%w: result reference is required", ErrInvalidInput)
	}
	j.State = JobStateCompleted
	j.ResultRef = resultRef
	j.ErrorDetail = ""
	j.CompletedAt = j.terminalTime(now)
	return nil
}

// Fail records a terminal pipeline failure.
func (j *Job) Fail(detail string, now time.Time) error {
	if j.State != JobStateProcessing {
		return &StateError{Current: j.State}
	}
	if strings.TrimSpace(detail) == "" {
		detail = "unknown failure"
	}
	j.State = JobStateFailed
	j.ResultRef = ""
	j.ErrorDetail = detail
	j.CompletedAt = j.terminalTime(now)
	return nil
}

// Expire records that the staleness guard tripped. Permitted from created
// and processing.
func (j *Job) Expire(now time.Time) error {
	if j.State != JobStateCreated && j.State != JobStateProcessing {
		return &StateError{Current: j.State}
	}
	j.State = JobStateExpired
	j.ResultRef = ""
	j.ErrorDetail = ExpiredDetail
	j.CompletedAt = j.terminalTime(now)
	return nil
}

// terminalTime clamps to CreatedAt so createdAt <= completedAt holds even
// under clock skew.
func (j *Job) terminalTime(now time.Time) *time.Time {
	t := now.UTC()
	if t.Before(j.CreatedAt) {
		t = j.CreatedAt
	}
	return &t
}

// Validate checks the record invariants.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidInput)
	}
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	if !j.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidInput, j.State)
	}
	if strings.TrimSpace(j.SourceRef) == "" {
		return fmt.Errorf("%w: source reference is required", ErrInvalidInput)
	}
	if (j.ResultRef != "") != (j.State == JobStateCompleted) {
		return fmt.Errorf("%w: result reference present in state %s", ErrInvalidInput, j.State)
	}
	hasErr := j.ErrorDetail != ""
	wantErr := j.State == JobStateFailed || j.State == JobStateExpired
	if hasErr != wantErr {
		return fmt.Errorf("%w: error detail present in state %s", ErrInvalidInput, j.State)
	}
	if j.CompletedAt != nil && j.CompletedAt.Before(j.CreatedAt) {
		return fmt.Errorf("%w: completed before created", ErrInvalidInput)
	}
	return nil
}
