package resumes

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// MemoryStore keeps resumes in memory and is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Resume
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Resume)}
}

// Get returns a resume by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Resume, error) {
	if err := ctx.Err(); err != nil {
		return Resume{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	resume, ok := s.byID[id]
	if !ok {
		return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resume.clone(), nil
}

// Put creates or replaces a resume according to opts.
func (s *MemoryStore) Put(ctx context.Context, resume Resume, opts PutOptions) (Resume, error) {
	if err := ctx.Err(); err != nil {
		return Resume{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[resume.ID]
	if opts.MustNotExist {
		if ok {
			return Resume{}, fmt.Errorf("%w: resume %s already exists", ErrConflict, resume.ID)
		}
		stored := resume.clone()
		s.byID[resume.ID] = stored
		return stored.clone(), nil
	}

	if !ok {
		return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, resume.ID)
	}
	if opts.ExpectedVersion > 0 && existing.Version != opts.ExpectedVersion {
		return Resume{}, fmt.Errorf("%w: resume %s is at version %d", ErrConflict, resume.ID, existing.Version)
	}
	existing.Payload = cloneDocument(resume.Payload)
	existing.UpdatedAt = resume.UpdatedAt
	existing.Version++
	s.byID[resume.ID] = existing
	return existing.clone(), nil
}

// Delete removes a resume by id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.byID, id)
	return nil
}

// Scan yields a snapshot of the stored resumes taken when iteration starts.
func (s *MemoryStore) Scan(ctx context.Context) iter.Seq2[Resume, error] {
	return func(yield func(Resume, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Resume{}, err)
			return
		}
		s.mu.RLock()
		snapshot := make([]Resume, 0, len(s.byID))
		for _, r := range s.byID {
			snapshot = append(snapshot, r.clone())
		}
		s.mu.RUnlock()

		for _, r := range snapshot {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pinger = (*MemoryStore)(nil)
)
