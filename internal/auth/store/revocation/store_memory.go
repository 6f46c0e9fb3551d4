package revocation

import (
	"context"
	"sync"
	"time"

	"minimizer/internal/auth/models"
)

// InMemoryStore is the revocation list of a single server process.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.RevokedSession
	clock    Clock
}

type Option func(*InMemoryStore)

func WithClock(clock Clock) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[string]models.RevokedSession),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke records the session and sweeps entries that have lapsed.
func (s *InMemoryStore) Revoke(_ context.Context, session models.RevokedSession) error {
	now := s.clock()
	if err := validate(session, now); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, existing := range s.sessions {
		if !existing.Live(now) {
			delete(s.sessions, jti)
		}
	}
	s.sessions[session.JTI] = session
	return nil
}

func (s *InMemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[jti]
	return ok && session.Live(s.clock()), nil
}
