package lifecycle

import (
	"context"
	"errors"

	"stager/internal/domain"
	"stager/internal/infra"
)

// Reporter receives every background pipeline failure.
type Reporter interface {
	Report(ctx context.Context, job *domain.Job, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, job *domain.Job, err error)

func (f ReporterFunc) Report(ctx context.Context, job *domain.Job, err error) {
	f(ctx, job, err)
}

// LogReporter writes failures to the service logger.
type LogReporter struct {
	Logger infra.Logger
}

func (r LogReporter) Report(ctx context.Context, job *domain.Job, err error) {
	stage := domain.StagePipeline
	var se *domain.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	r.Logger.Error().
		Err(err).
		Str("job_id", job.ID).
		Str("stage", stage).
		Str("requester", job.Requester).
		Msg("lifecycle: pipeline failed")
}
