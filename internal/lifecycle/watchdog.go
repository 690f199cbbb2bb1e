package lifecycle

import (
	"context"
	"fmt"
	"time"

	"stager/internal/domain"
)

// SweepStuck fails processing jobs whose pipeline has run longer than
// StuckAfter. It returns how many jobs it failed.
func (m *Manager) SweepStuck(ctx context.Context) (int, error) {
	if m.policy.StuckAfter <= 0 {
		return 0, nil
	}
	jobs, err := m.store.ListByState(ctx, domain.JobStateProcessing, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}

	failed := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if !m.stuck(job, m.now()) {
			continue
		}
		if m.reclaim(ctx, job.ID) {
			failed++
		}
	}
	return failed, nil
}

func (m *Manager) stuck(job *domain.Job, now time.Time) bool {
	return job.State == domain.JobStateProcessing &&
		job.StartedAt != nil &&
		now.Sub(*job.StartedAt) > m.policy.StuckAfter
}

func (m *Manager) reclaim(ctx context.Context, id string) bool {
	unlock := m.locks.Lock(id)
	defer unlock()

	current, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", id).Msg("lifecycle: watchdog reload failed")
		return false
	}
	now := m.now()
	if !m.stuck(current, now) {
		return false
	}

	expected := current.Version
	cause := &domain.StageError{Stage: domain.StageTimeout, Err: fmt.Errorf("processing exceeded %s", m.policy.StuckAfter)}
	if err := current.Fail(cause.Error(), now); err != nil {
		return false
	}
	if err := m.store.Update(ctx, current, expected); err != nil {
		m.logger.Warn().Err(err).Str("job_id", id).Msg("lifecycle: watchdog write lost")
		return false
	}
	m.stats.failed.Add(1)
	m.logTransition(id, domain.JobStateProcessing, domain.JobStateFailed)
	m.reporter.Report(ctx, current.Clone(), cause)
	return true
}

// RunWatchdog sweeps every interval until ctx ends.
func (m *Manager) RunWatchdog(ctx context.Context, interval time.Duration) {
	if m.policy.StuckAfter <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.logger.Info().
		Dur("interval", interval).
		Dur("stuck_after", m.policy.StuckAfter).
		Msg("lifecycle: watchdog started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("lifecycle: watchdog stopped")
			return
		case <-ticker.C:
			n, err := m.SweepStuck(ctx)
			if err != nil && ctx.Err() == nil {
				m.logger.Error().Err(err).Msg("lifecycle: watchdog sweep failed")
				continue
			}
			if n > 0 {
				m.logger.Warn().Int("failed", n).Msg("lifecycle: watchdog reclaimed stuck jobs")
			}
		}
	}
}
