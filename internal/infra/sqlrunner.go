package infra

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stager/internal/sqlinline"
)

// SQLExecutor is the query surface the Postgres job repository needs.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// SQLRunner executes marked statements from sqlinline and logs them by
// marker id. Statements without a marker are refused before reaching the pool.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger.With().Str("component", "sql").Logger()}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := sqlinline.Split(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.Pool.Exec(ctx, stmt, args...)
	if err != nil {
		r.Logger.Error().Err(err).Str("marker", marker).Str("op", "exec").Msg("sql failed")
		return tag, err
	}
	r.Logger.Debug().
		Str("marker", marker).
		Str("op", "exec").
		Int64("rows", tag.RowsAffected()).
		Dur("elapsed", time.Since(start)).
		Msg("sql ok")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := sqlinline.Split(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{
		row:    r.Pool.QueryRow(ctx, stmt, args...),
		logger: r.Logger,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, stmt, err := sqlinline.Split(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.Pool.Query(ctx, stmt, args...)
	if err != nil {
		r.Logger.Error().Err(err).Str("marker", marker).Str("op", "query").Msg("sql failed")
		return nil, err
	}
	return loggingRows{Rows: rows, logger: r.Logger, marker: marker, start: start}, nil
}

type loggingRow struct {
	row    pgx.Row
	logger Logger
	marker string
	start  time.Time
}

// Scan logs pgx.ErrNoRows at debug; callers translate it to not-found.
func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	switch {
	case err == nil:
		l.logger.Debug().Str("marker", l.marker).Str("op", "query_row").Dur("elapsed", time.Since(l.start)).Msg("sql ok")
	case errors.Is(err, pgx.ErrNoRows):
		l.logger.Debug().Str("marker", l.marker).Str("op", "query_row").Msg("sql no rows")
	default:
		l.logger.Error().Err(err).Str("marker", l.marker).Str("op", "query_row").Msg("sql scan failed")
	}
	return err
}

type loggingRows struct {
	pgx.Rows
	logger Logger
	marker string
	start  time.Time
}

func (l loggingRows) Close() {
	l.Rows.Close()
	if err := l.Rows.Err(); err != nil {
		l.logger.Error().Err(err).Str("marker", l.marker).Str("op", "query").Msg("sql rows failed")
		return
	}
	l.logger.Debug().Str("marker", l.marker).Str("op", "query").Dur("elapsed", time.Since(l.start)).Msg("sql ok")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

var _ SQLExecutor = (*SQLRunner)(nil)
