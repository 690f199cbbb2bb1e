package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"stager/internal/domain"
	"stager/internal/transform"
)

// runPipeline executes fetch, preprocess, transform and store for a job
// dispatched at dispatched.Version, then records the outcome.
func (m *Manager) runPipeline(base context.Context, dispatched *domain.Job) {
	m.stats.inFlight.Add(1)
	defer m.stats.inFlight.Add(-1)

	start := time.Now()
	ctx, cancel := context.WithTimeout(base, m.policy.PipelineTimeout)
	resultRef, runErr := m.guardedExecute(ctx, dispatched)
	cancel()

	m.logger.Debug().
		Str("job_id", dispatched.ID).
		Dur("elapsed", time.Since(start)).
		Bool("ok", runErr == nil).
		Msg("lifecycle: pipeline finished")

	m.finish(dispatched, resultRef, runErr)
}

func (m *Manager) guardedExecute(ctx context.Context, job *domain.Job) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ref = ""
			err = &domain.StageError{Stage: domain.StagePipeline, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return m.execute(ctx, job)
}

func (m *Manager) execute(ctx context.Context, job *domain.Job) (string, error) {
	source, err := m.blobs.FetchOriginal(ctx, job.SourceRef)
	if err != nil {
		return "", &domain.StageError{Stage: domain.StageFetch, Err: err}
	}
	contentType := http.DetectContentType(source)

	if m.preprocessor != nil {
		source, err = m.preprocessor.Prepare(ctx, source)
		if err != nil {
			return "", &domain.StageError{Stage: domain.StagePreprocess, Err: err}
		}
		contentType = "image/png"
	}

	output, err := m.invoker.Transform(ctx, transform.Request{
		JobID:       job.ID,
		Image:       source,
		ContentType: contentType,
		Prompt:      m.policy.Prompt,
	})
	if err != nil {
		return "", &domain.StageError{Stage: domain.StageTransform, Err: err}
	}

	ref, err := m.blobs.StoreResult(ctx, job.ID, output)
	if err != nil {
		return "", &domain.StageError{Stage: domain.StageStore, Err: err}
	}
	return ref, nil
}

// finish records the pipeline outcome under the job lock. The write goes
// through even if the pool context was cancelled.
func (m *Manager) finish(dispatched *domain.Job, resultRef string, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	unlock := m.locks.Lock(dispatched.ID)
	defer unlock()
	m.settle(ctx, dispatched, resultRef, runErr)
}

// settle writes Completed or Failed if the job is still processing at the
// version it was dispatched with. Callers hold the job lock.
func (m *Manager) settle(ctx context.Context, dispatched *domain.Job, resultRef string, runErr error) {
	current, err := m.store.Get(ctx, dispatched.ID)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", dispatched.ID).Msg("lifecycle: reload before completion failed")
		return
	}
	if current.State != domain.JobStateProcessing || current.Version != dispatched.Version {
		m.discard(current, dispatched, runErr)
		return
	}

	now := m.now()
	expected := current.Version
	to := domain.JobStateCompleted
	if runErr == nil {
		err = current.Complete(resultRef, now)
	} else {
		to = domain.JobStateFailed
		err = current.Fail(runErr.Error(), now)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", current.ID).Msg("lifecycle: completion rejected")
		return
	}

	if err := m.store.Update(ctx, current, expected); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.discard(current, dispatched, runErr)
			return
		}
		m.logger.Error().Err(err).Str("job_id", current.ID).Msg("lifecycle: completion write failed")
		return
	}

	m.logTransition(current.ID, domain.JobStateProcessing, to)
	if runErr != nil {
		m.stats.failed.Add(1)
		m.reporter.Report(ctx, current.Clone(), runErr)
		return
	}
	m.stats.completed.Add(1)
}

func (m *Manager) discard(current, dispatched *domain.Job, runErr error) {
	m.stats.discarded.Add(1)
	ev := m.logger.Warn().
		Str("job_id", dispatched.ID).
		Str("state", string(current.State)).
		Int64("dispatched_version", dispatched.Version).
		Int64("current_version", current.Version)
	if runErr != nil {
		ev = ev.Err(runErr)
	}
	ev.Msg("lifecycle: stale pipeline outcome discarded")
}
