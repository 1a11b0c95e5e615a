package resumes

import (
	"errors"

	"resumes-api/internal/shared/server/respond"
)

var (
	// ErrNotFound indicates the resume does not exist.
	ErrNotFound = errors.New("resume not found")

	// ErrConflict indicates a conditional write failed: the id is taken or the version moved.
	ErrConflict = errors.New("conflict")

	// ErrInvalidPayload indicates the request body failed validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrIdentifierExhausted indicates every generated id collided.
	ErrIdentifierExhausted = errors.New("could not allocate a unique resume id")

	// ErrStoreUnavailable indicates the record store could not be reached.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// ErrorKind maps an operation error to its stable kind. A nil error is "ok".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidPayload):
		return respond.KindInvalidPayload
	case errors.Is(err, ErrNotFound):
		return respond.KindNotFound
	case errors.Is(err, ErrConflict):
		return respond.KindConflict
	case errors.Is(err, ErrIdentifierExhausted):
		return respond.KindIdentifierExhausted
	case errors.Is(err, ErrStoreUnavailable):
		return respond.KindStoreUnavailable
	default:
		return respond.KindInternal
	}
}
