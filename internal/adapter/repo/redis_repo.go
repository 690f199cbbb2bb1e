package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"stager/internal/domain"
)

// RedisJobStore keeps each job as a JSON document under <prefix>job:<id>
// and indexes ids per state in sorted sets scored by creation time.
// Versioned updates run inside WATCH/MULTI so concurrent writers from
// several processes cannot both succeed.
type RedisJobStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisJobStore creates a store on an existing client. The caller owns
// the client lifecycle.
func NewRedisJobStore(client goredis.UniversalClient, prefix string) *RedisJobStore {
	return &RedisJobStore{client: client, prefix: prefix}
}

// Ping verifies the Redis connection is alive.
func (s *RedisJobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisJobStore) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisJobStore) stateKey(state domain.JobState) string {
	return s.prefix + "state:" + string(state)
}

func (s *RedisJobStore) Insert(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	job.Version = 0
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis insert encode: %w", err)
	}

	key := s.jobKey(job.ID)
	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, s.stateKey(job.State), goredis.Z{Score: stateScore(job), Member: job.ID})
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, goredis.TxFailedErr):
		return domain.ErrDuplicate
	default:
		return fmt.Errorf("redis insert: %w", err)
	}
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.read(ctx, s.client, id)
}

func (s *RedisJobStore) Update(ctx context.Context, job *domain.Job, expectedVersion int64) error {
	if err := job.Validate(); err != nil {
		return err
	}
	key := s.jobKey(job.ID)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := s.read(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrConflict
		}

		next := job.Clone()
		next.Version = expectedVersion + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("redis update encode: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if current.State != next.State {
				pipe.ZRem(ctx, s.stateKey(current.State), job.ID)
			}
			pipe.ZAdd(ctx, s.stateKey(next.State), goredis.Z{Score: stateScore(next), Member: job.ID})
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		job.Version = expectedVersion + 1
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		return err
	default:
		return fmt.Errorf("redis update: %w", err)
	}
}

func (s *RedisJobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRange(ctx, s.stateKey(state), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.read(ctx, s.client, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if job.State != state {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	job, err := s.read(ctx, s.client, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.jobKey(id))
	pipe.ZRem(ctx, s.stateKey(job.State), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *RedisJobStore) read(ctx context.Context, c stringGetter, id string) (*domain.Job, error) {
	raw, err := c.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("redis decode job %s: %w", id, err)
	}
	return &job, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func stateScore(job *domain.Job) float64 {
	return float64(job.CreatedAt.UnixMilli())
}

var _ domain.JobStore = (*RedisJobStore)(nil)
