package resumes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resumes-api/internal/shared/metrics"
	"resumes-api/internal/shared/telemetry"
)

// maxIDAttempts bounds how many generated ids a create tries before giving up.
const maxIDAttempts = 3

// Service contains the resume operations.
type Service struct {
	Store Store
	IDs   IDGenerator
	Retry RetryPolicy
	Now   func() time.Time
}

// NewService constructs a Service with UUIDv7 ids and the default retry policy.
func NewService(store Store) *Service {
	return &Service{
		Store: store,
		IDs:   UUIDGenerator{},
		Retry: DefaultRetryPolicy(),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new resume. A body id is used as is and fails with
// ErrConflict when taken; otherwise ids are generated until one is free.
func (s *Service) Create(ctx context.Context, in Input) (resume Resume, err error) {
	defer observe("create", time.Now(), &err)

	now := s.now()
	record := Resume{
		ID:        in.ID,
		Payload:   in.Document,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.Payload == nil {
		record.Payload = Document{}
	}

	if record.ID != "" {
		created, _, err := s.insert(ctx, record)
		return created, err
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := s.IDs.NewID()
		if err != nil {
			return Resume{}, fmt.Errorf("generate resume id: %w", err)
		}
		record.ID = id
		created, ambiguous, err := s.insert(ctx, record)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Resume{}, err
		}
		if ambiguous {
			// An earlier attempt may have written a record under this id that
			// has since changed; a fresh id could leave it orphaned.
			return Resume{}, fmt.Errorf("%w: create of %s could not be confirmed", ErrStoreUnavailable, id)
		}
		telemetry.Warn("resume.id_collision", map[string]any{"resume_id": id, "attempt": attempt})
	}
	return Resume{}, fmt.Errorf("%w after %d attempts", ErrIdentifierExhausted, maxIDAttempts)
}

// insert runs a conditional create under the retry policy. When an attempt
// failed with ErrStoreUnavailable the write may still have landed, so a later
// ErrConflict is checked against the stored record: if it is the one this
// call wrote, the create succeeded. ambiguous reports that such a failure
// happened.
func (s *Service) insert(ctx context.Context, record Resume) (created Resume, ambiguous bool, err error) {
	created, err = withRetry(ctx, s.Retry, "create", func(ctx context.Context) (Resume, error) {
		stored, err := s.Store.Put(ctx, record, PutOptions{MustNotExist: true})
		switch {
		case err == nil:
			return stored, nil
		case errors.Is(err, ErrStoreUnavailable):
			ambiguous = true
			return Resume{}, err
		case errors.Is(err, ErrConflict) && ambiguous:
			current, getErr := s.Store.Get(ctx, record.ID)
			if getErr != nil {
				if errors.Is(getErr, ErrStoreUnavailable) {
					return Resume{}, getErr
				}
				return Resume{}, err
			}
			if current.Version == 1 && current.CreatedAt.Equal(record.CreatedAt) {
				telemetry.Info("resume.create_confirmed", map[string]any{"resume_id": record.ID})
				return current, nil
			}
		}
		return Resume{}, err
	})
	return created, ambiguous, err
}

// Get returns a resume by id.
func (s *Service) Get(ctx context.Context, id string) (resume Resume, err error) {
	defer observe("get", time.Now(), &err)

	return withRetry(ctx, s.Retry, "get", func(ctx context.Context) (Resume, error) {
		return s.Store.Get(ctx, id)
	})
}

// List returns every stored resume. A scan that fails part way is restarted
// from scratch on retry.
func (s *Service) List(ctx context.Context) (list []Resume, err error) {
	defer observe("list", time.Now(), &err)

	return withRetry(ctx, s.Retry, "list", func(ctx context.Context) ([]Resume, error) {
		out := []Resume{}
		for r, err := range s.Store.Scan(ctx) {
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	})
}

// Replace overwrites the payload of an existing resume. It never creates one.
func (s *Service) Replace(ctx context.Context, id string, in Input, expectedVersion int64) (resume Resume, err error) {
	defer observe("replace", time.Now(), &err)

	record := Resume{
		ID:        id,
		Payload:   in.Document,
		UpdatedAt: s.now(),
	}
	if record.Payload == nil {
		record.Payload = Document{}
	}
	return s.put(ctx, "replace", record, PutOptions{ExpectedVersion: expectedVersion})
}

// Delete removes a resume by id.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer observe("delete", time.Now(), &err)

	_, err = withRetry(ctx, s.Retry, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Store.Delete(ctx, id)
	})
	return err
}

func (s *Service) put(ctx context.Context, op string, record Resume, opts PutOptions) (Resume, error) {
	return withRetry(ctx, s.Retry, op, func(ctx context.Context) (Resume, error) {
		return s.Store.Put(ctx, record, opts)
	})
}

// now is truncated to microseconds, the resolution Postgres keeps, so a
// created record reads back with the timestamps it was returned with.
func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return s.Now().Truncate(time.Microsecond)
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveOperation(op, ErrorKind(*err), time.Since(start))
}
