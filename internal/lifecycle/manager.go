// Package lifecycle owns every state change of a job: creation, the
// triggered transition into processing, the background pipeline and its
// terminal write, and reclaiming jobs stuck in processing.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stager/internal/domain"
	"stager/internal/infra"
	"stager/internal/transform"
	"stager/internal/worker"
)

const (
	DefaultMaxAge          = 5 * time.Minute
	DefaultPipelineTimeout = 3 * time.Minute
	DefaultStuckAfter      = 10 * time.Minute

	maxRequesterLen   = 254
	completionTimeout = 15 * time.Second
	sweepBatch        = 500
)

// Blobs is the blob gateway as seen by the manager.
type Blobs interface {
	StoreOriginal(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error)
	FetchOriginal(ctx context.Context, sourceRef string) ([]byte, error)
	StoreResult(ctx context.Context, jobID string, data []byte) (string, error)
	FetchResult(ctx context.Context, resultRef string) ([]byte, error)
}

// Preprocessor prepares source bytes before the transform.
type Preprocessor interface {
	Prepare(ctx context.Context, data []byte) ([]byte, error)
}

// Deps are the collaborators injected at construction.
type Deps struct {
	Store        domain.JobStore
	Blobs        Blobs
	Invoker      transform.Invoker
	Preprocessor Preprocessor
	Pool         *worker.Pool
	Reporter     Reporter
	Logger       *infra.Logger
	Now          func() time.Time
	NewID        func() string
}

// Policy holds the tunable constants.
type Policy struct {
	MaxAge          time.Duration
	PipelineTimeout time.Duration
	// StuckAfter bounds how long a job may stay processing before the
	// watchdog fails it. Zero disables the watchdog sweep.
	StuckAfter time.Duration
	Prompt     *transform.Prompt
}

// Manager drives jobs through their state machine.
type Manager struct {
	store        domain.JobStore
	blobs        Blobs
	invoker      transform.Invoker
	preprocessor Preprocessor
	pool         *worker.Pool
	reporter     Reporter
	logger       infra.Logger
	now          func() time.Time
	newID        func() string

	policy Policy
	locks  *keyedMutex
	stats  counters
}

// NewManager validates deps and fills policy defaults.
func NewManager(deps Deps, policy Policy) (*Manager, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("lifecycle: store is required")
	case deps.Blobs == nil:
		return nil, errors.New("lifecycle: blob gateway is required")
	case deps.Invoker == nil:
		return nil, errors.New("lifecycle: transform invoker is required")
	case deps.Pool == nil:
		return nil, errors.New("lifecycle: worker pool is required")
	}

	logger := zerolog.New(io.Discard)
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return "job_" + uuid.NewString() }
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = LogReporter{Logger: logger}
	}

	if policy.MaxAge <= 0 {
		policy.MaxAge = DefaultMaxAge
	}
	if policy.PipelineTimeout <= 0 {
		policy.PipelineTimeout = DefaultPipelineTimeout
	}
	if policy.StuckAfter < 0 {
		policy.StuckAfter = 0
	}
	if policy.Prompt == nil {
		policy.Prompt = transform.DefaultPrompt()
	}

	return &Manager{
		store:        deps.Store,
		blobs:        deps.Blobs,
		invoker:      deps.Invoker,
		preprocessor: deps.Preprocessor,
		pool:         deps.Pool,
		reporter:     reporter,
		logger:       logger,
		now:          now,
		newID:        newID,
		policy:       policy,
		locks:        newKeyedMutex(),
	}, nil
}

// Policy returns the effective policy.
func (m *Manager) Policy() Policy { return m.policy }

// CreateInput is an uploaded artifact.
type CreateInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Requester   string
}

// Create stores the artifact and records a new job in the created state.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*domain.Job, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: no artifact supplied", domain.ErrInvalidInput)
	}
	requester := strings.TrimSpace(in.Requester)
	if len(requester) > maxRequesterLen {
		return nil, fmt.Errorf("%w: requester too long", domain.ErrInvalidInput)
	}

	id := m.newID()
	sourceRef, err := m.blobs.StoreOriginal(ctx, id, in.Filename, in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}

	job := domain.NewJob(id, sourceRef, requester, m.now())
	if err := m.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	m.stats.created.Add(1)
	m.logger.Info().
		Str("job_id", id).
		Str("source_ref", sourceRef).
		Int("bytes", len(in.Data)).
		Msg("lifecycle: job created")
	return job.Clone(), nil
}

// Trigger moves a created job into processing and dispatches its pipeline.
// A job older than MaxAge is expired instead and ErrExpired is returned along
// with the expired snapshot.
func (m *Manager) Trigger(ctx context.Context, id string) (*domain.Job, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != domain.JobStateCreated {
		m.stats.rejected.Add(1)
		return job, &domain.StateError{Current: job.State}
	}

	now := m.now()
	if job.Age(now) > m.policy.MaxAge {
		return m.expire(ctx, job, now)
	}

	ticket, err := m.pool.Reserve()
	if err != nil {
		m.stats.busy.Add(1)
		m.logger.Warn().Err(err).Str("job_id", id).Msg("lifecycle: trigger refused, pool unavailable")
		return job, fmt.Errorf("%w: %v", domain.ErrBusy, err)
	}

	expected := job.Version
	if err := job.Begin(now); err != nil {
		ticket.Cancel()
		return nil, err
	}
	if err := m.store.Update(ctx, job, expected); err != nil {
		ticket.Cancel()
		return m.lostRace(ctx, id, err)
	}
	m.logTransition(job.ID, domain.JobStateCreated, domain.JobStateProcessing)

	dispatched := job.Clone()
	if err := ticket.Submit(func(base context.Context) { m.runPipeline(base, dispatched) }); err != nil {
		// Pool stopped between reservation and submit. The job is already
		// processing, so it is failed and reported as such; a retry cannot help.
		m.settle(ctx, dispatched, "", &domain.StageError{Stage: domain.StagePipeline, Err: err})
		current, getErr := m.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, &domain.StateError{Current: current.State}
	}
	m.stats.triggered.Add(1)
	return job.Clone(), nil
}

func (m *Manager) expire(ctx context.Context, job *domain.Job, now time.Time) (*domain.Job, error) {
	from := job.State
	expected := job.Version
	if err := job.Expire(now); err != nil {
		return nil, err
	}
	if err := m.store.Update(ctx, job, expected); err != nil {
		return m.lostRace(ctx, job.ID, err)
	}
	m.stats.expired.Add(1)
	m.logTransition(job.ID, from, domain.JobStateExpired)
	return job.Clone(), domain.ErrExpired
}

// lostRace converts a failed conditional write into the caller-facing error.
func (m *Manager) lostRace(ctx context.Context, id string, err error) (*domain.Job, error) {
	if !errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("update job: %w", err)
	}
	m.stats.rejected.Add(1)
	current, getErr := m.store.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return current, &domain.StateError{Current: current.State}
}

// Query returns the current snapshot of a job.
func (m *Manager) Query(ctx context.Context, id string) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

// FetchResult returns the produced bytes of a completed job.
func (m *Manager) FetchResult(ctx context.Context, id string) ([]byte, *domain.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.State != domain.JobStateCompleted {
		return nil, job, &domain.StateError{Current: job.State}
	}
	data, err := m.blobs.FetchResult(ctx, job.ResultRef)
	if err != nil {
		return nil, job, err
	}
	return data, job, nil
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// PoolStats returns worker pool occupancy.
func (m *Manager) PoolStats() worker.Stats {
	return m.pool.Stats()
}

func (m *Manager) logTransition(id string, from, to domain.JobState) {
	m.logger.Info().
		Str("job_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("lifecycle: transition")
}
