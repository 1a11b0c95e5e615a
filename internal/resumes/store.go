package resumes

import (
	"context"
	"iter"
)

// PutOptions controls the precondition of a Put.
type PutOptions struct {
	// MustNotExist makes Put a create: it fails with ErrConflict if the id exists.
	// Otherwise Put replaces an existing record and fails with ErrNotFound if it is absent.
	MustNotExist bool

	// ExpectedVersion, when positive, makes a replace fail with ErrConflict
	// unless the stored version matches.
	ExpectedVersion int64
}

// Store is a key-value record store keyed by resume id. Each call is atomic
// with respect to a single key.
type Store interface {
	Get(ctx context.Context, id string) (Resume, error)

	// Put creates or replaces a record. A create stores the record as given.
	// A replace overwrites Payload and UpdatedAt, increments Version and keeps
	// CreatedAt. The stored record is returned.
	Put(ctx context.Context, resume Resume, opts PutOptions) (Resume, error)

	Delete(ctx context.Context, id string) error

	// Scan yields every current record in store order. The sequence is lazy
	// and can be ranged over once.
	Scan(ctx context.Context) iter.Seq2[Resume, error]
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
