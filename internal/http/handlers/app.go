package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"stager/internal/domain"
	"stager/internal/infra"
	"stager/internal/lifecycle"
	"stager/internal/middleware"
	"stager/internal/worker"
)

const ServiceName = "stager"

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Lifecycle is the job manager as seen by the HTTP layer.
type Lifecycle interface {
	Create(ctx context.Context, in lifecycle.CreateInput) (*domain.Job, error)
	Trigger(ctx context.Context, id string) (*domain.Job, error)
	Query(ctx context.Context, id string) (*domain.Job, error)
	FetchResult(ctx context.Context, id string) ([]byte, *domain.Job, error)
	Stats() lifecycle.Stats
	PoolStats() worker.Stats
}

type App struct {
	Jobs           Lifecycle
	Logger         infra.Logger
	MaxUploadBytes int64
	StartedAt      time.Time
}

func NewApp(jobs Lifecycle, logger *infra.Logger, maxUploadBytes int64) *App {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &App{Jobs: jobs, Logger: l, MaxUploadBytes: maxUploadBytes, StartedAt: time.Now()}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string) {
	a.json(w, status, errorResponse{
		Error:   code,
		Message: message(middleware.LocaleFromContext(r.Context()), code),
	})
}

// fail maps a lifecycle error onto its HTTP status.
func (a *App) fail(w http.ResponseWriter, r *http.Request, jobID string, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	resp := errorResponse{JobID: jobID}
	var status int
	status, resp.Error, resp.Status = classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	resp.Message = message(locale, resp.Error)

	if status >= http.StatusInternalServerError {
		a.Logger.Error().
			Err(err).
			Str("job_id", jobID).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("request failed")
	}
	a.json(w, status, resp)
}

// classify returns the HTTP status, error code and, when known, the job
// status for a lifecycle error.
func classify(err error) (int, string, string) {
	var se *domain.StateError
	switch {
	case errors.As(err, &se):
		return http.StatusConflict, "invalid_state", string(se.Current)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", ""
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", ""
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, "expired", string(domain.JobStateExpired)
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable, "busy", ""
	case errors.Is(err, domain.ErrFetchFailed), errors.Is(err, domain.ErrStoreFailed):
		return http.StatusBadGateway, "storage_unavailable", ""
	default:
		return http.StatusInternalServerError, "internal", ""
	}
}
