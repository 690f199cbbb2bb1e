package domain

import "context"

// JobStore persists job records keyed by job id. It provides no locking
// beyond the versioned Update; coordination belongs to the lifecycle manager.
type JobStore interface {
	// Insert stores a new record. Returns ErrDuplicate if the id exists.
	Insert(ctx context.Context, job *Job) error
	// Get returns a copy of the current record or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Update replaces the whole record when the stored version equals
	// expectedVersion and writes the new version back into job. Returns
	// ErrConflict when the version moved and ErrNotFound when absent.
	Update(ctx context.Context, job *Job, expectedVersion int64) error
	// ListByState returns up to limit records in the given state.
	ListByState(ctx context.Context, state JobState, limit int) ([]*Job, error)
	// Delete removes a record. Only retention tooling calls this.
	Delete(ctx context.Context, id string) error
}
