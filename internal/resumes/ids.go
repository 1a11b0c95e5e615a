package resumes

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// idPattern admits RFC 3986 unreserved characters only, so an id never needs
// escaping in a path segment. The leading alphanumeric rules out "." and "..".
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~-]{0,127}$`)

// IDGenerator produces new resume ids.
type IDGenerator interface {
	NewID() (string, error)
}

// UUIDGenerator creates time-ordered UUIDv7 ids.
type UUIDGenerator struct{}

// NewID returns a UUIDv7 string.
func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// ValidID reports whether id is a well-formed resume id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
