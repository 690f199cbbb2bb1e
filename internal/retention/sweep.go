// Package retention deletes old terminal jobs from the store.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"stager/internal/domain"
	"stager/internal/infra"
)

// Purger deletes the blobs referenced by a job.
type Purger interface {
	Purge(ctx context.Context, sourceRef, resultRef string) error
}

// Options selects what a sweep removes.
type Options struct {
	OlderThan  time.Duration
	States     []domain.JobState
	Limit      int
	DryRun     bool
	// PurgeBlobs also deletes source and result objects. Needs a Purger.
	PurgeBlobs bool
}

// Report summarizes a sweep.
type Report struct {
	Scanned     int `json:"scanned"`
	Deleted     int `json:"deleted"`
	BlobsPurged int `json:"blobsPurged"`
	Failed      int `json:"failed"`
	WouldDelete int `json:"wouldDelete,omitempty"`
}

// Sweeper removes jobs whose terminal time is older than a cutoff.
type Sweeper struct {
	store  domain.JobStore
	blobs  Purger
	now    func() time.Time
	logger infra.Logger
}

func NewSweeper(store domain.JobStore, blobs Purger, logger *infra.Logger) *Sweeper {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Sweeper{store: store, blobs: blobs, now: time.Now, logger: l}
}

// Run sweeps each state in turn. Per-job failures are logged and counted;
// only listing errors abort the sweep.
func (s *Sweeper) Run(ctx context.Context, opts Options) (Report, error) {
	var report Report
	if opts.OlderThan <= 0 {
		return report, errors.New("retention: older-than must be positive")
	}
	if opts.PurgeBlobs && s.blobs == nil {
		return report, errors.New("retention: blob purge requested without a blob gateway")
	}
	for _, state := range opts.States {
		if !state.Terminal() {
			return report, fmt.Errorf("retention: refusing to sweep non-terminal state %q", state)
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	cutoff := s.now().Add(-opts.OlderThan)

	for _, state := range opts.States {
		jobs, err := s.store.ListByState(ctx, state, limit)
		if err != nil {
			return report, fmt.Errorf("retention: list %s jobs: %w", state, err)
		}
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Scanned++
			if !terminalBefore(job, cutoff) {
				continue
			}
			if opts.DryRun {
				report.WouldDelete++
				s.logger.Info().Str("job_id", job.ID).Str("state", string(job.State)).Msg("retention: would delete")
				continue
			}
			s.remove(ctx, job, opts.PurgeBlobs, &report)
		}
	}
	return report, nil
}

func (s *Sweeper) remove(ctx context.Context, job *domain.Job, purge bool, report *Report) {
	if purge {
		if err := s.blobs.Purge(ctx, job.SourceRef, job.ResultRef); err != nil {
			report.Failed++
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("retention: blob purge failed; job kept")
			return
		}
		report.BlobsPurged++
	}
	if err := s.store.Delete(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		report.Failed++
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("retention: delete failed")
		return
	}
	report.Deleted++
	s.logger.Debug().Str("job_id", job.ID).Str("state", string(job.State)).Msg("retention: deleted")
}

func terminalBefore(job *domain.Job, cutoff time.Time) bool {
	at := job.CreatedAt
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	return at.Before(cutoff)
}
