package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stager/internal/domain"
	"stager/internal/infra"
	"stager/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Migrate creates the jobs table when missing.
func (r *JobRepositoryPG) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sqlinline.QJobsCreateTable); err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	return nil
}

// Insert stores a new job record.
func (r *JobRepositoryPG) Insert(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QJobsInsert,
		job.ID,
		string(job.State),
		job.SourceRef,
		job.ResultRef,
		job.ErrorDetail,
		job.Requester,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicate
	}
	job.Version = 0
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, sqlinline.QJobsGet, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update writes the record when the stored version still equals expectedVersion.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job, expectedVersion int64) error {
	if err := job.Validate(); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QJobsUpdateVersioned,
		job.ID,
		expectedVersion,
		string(job.State),
		job.ResultRef,
		job.ErrorDetail,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		if err := r.db.QueryRow(ctx, sqlinline.QJobsVersion, job.ID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("update job: %w", err)
		}
		return domain.ErrConflict
	}
	job.Version = expectedVersion + 1
	return nil
}

// ListByState returns up to limit jobs in state, oldest first.
func (r *JobRepositoryPG) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, sqlinline.QJobsListByState, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job record.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QJobsDelete, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		state       string
		startedAt   *time.Time
		completedAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&state,
		&job.SourceRef,
		&job.ResultRef,
		&job.ErrorDetail,
		&job.Requester,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.Version,
	); err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	job.CreatedAt = job.CreatedAt.UTC()
	if startedAt != nil {
		t := startedAt.UTC()
		job.StartedAt = &t
	}
	if completedAt != nil {
		t := completedAt.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
