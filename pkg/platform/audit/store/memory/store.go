package memory

import (
	"context"
	"sync"

	id "minimizer/pkg/domain"
	audit "minimizer/pkg/platform/audit"
)

// InMemoryStore keeps events per trial in append order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.TrialID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.TrialID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.TrialID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.TrialID] = append(s.events[event.TrialID], event)
	return nil
}

func (s *InMemoryStore) ListByTrial(_ context.Context, trialID id.TrialID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[trialID]...), nil
}

// ListAll returns every event, grouped by trial.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}
