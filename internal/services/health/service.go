package health

import (
	"context"
	"time"

	"resumes-api/internal/resumes"
)

const checkTimeout = 2 * time.Second

// Service reports whether the record store is reachable.
type Service struct {
	store   resumes.Pinger
	backend string
}

// NewService constructs a health service. A nil store is always healthy.
func NewService(store resumes.Pinger, backend string) *Service {
	return &Service{store: store, backend: backend}
}

// Status is the health payload.
type Status struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

// Check pings the store with a short deadline.
func (s *Service) Check(ctx context.Context) Status {
	status := Status{OK: true, Backend: s.backend}
	if s.store == nil {
		return status
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		status.OK = false
		status.Error = resumes.ErrorKind(err)
	}
	return status
}
