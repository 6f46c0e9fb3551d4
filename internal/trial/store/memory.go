// Package store persists trials. Every implementation stores the full
// registry as one ordered document per trial and never rewrites the
// configuration after Create.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
)

// InMemory keeps cloned trials in a map. Callers never share state with it.
type InMemory struct {
	mu     sync.RWMutex
	trials map[id.TrialID]*models.Trial
}

func NewInMemory() *InMemory {
	return &InMemory{trials: make(map[id.TrialID]*models.Trial)}
}

// Create stores a new trial, failing with sentinel.ErrAlreadyUsed if the id exists.
func (s *InMemory) Create(_ context.Context, trial *models.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trials[trial.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.trials[trial.ID] = trial.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, trialID id.TrialID) (*models.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trials[trialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

// Save replaces the registry and archive marker. The configuration is kept
// from the stored copy.
func (s *InMemory) Save(_ context.Context, trial *models.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trials[trial.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := trial.Clone()
	updated.Config = existing.Config
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	s.trials[trial.ID] = updated
	return nil
}

// List returns every trial ordered by id.
func (s *InMemory) List(_ context.Context) ([]*models.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Trial, 0, len(s.trials))
	for _, t := range s.trials {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Trial) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}
