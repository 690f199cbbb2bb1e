package repo

import (
	"context"
	"sort"
	"sync"

	"stager/internal/domain"
)

// MemoryJobStore keeps jobs in process memory. Records are lost on restart.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemoryJobStore returns an empty in-memory store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryJobStore) Insert(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrDuplicate
	}
	job.Version = 0
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *domain.Job, expectedVersion int64) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConflict
	}
	job.Version = expectedVersion + 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	out := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.State == state {
			out = append(out, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
