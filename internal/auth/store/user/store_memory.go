// Package user stores operator accounts and their trial access lists.
package user

import (
	"context"
	"fmt"
	"sync"

	"minimizer/internal/auth/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map. Reads return copies.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.Username]*models.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.Username]*models.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return fmt.Errorf("user %s: %w", user.Username, sentinel.ErrAlreadyUsed)
	}
	s.users[user.Username] = user.Clone()
	return nil
}

// CreateFirst stores user only when the store is empty.
func (s *InMemoryUserStore) CreateFirst(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 {
		return fmt.Errorf("users already exist: %w", sentinel.ErrConflict)
	}
	s.users[user.Username] = user.Clone()
	return nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username id.Username) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	return user.Clone(), nil
}

// GrantTrial adds trialID to the user's access list. Granting twice is a no-op.
func (s *InMemoryUserStore) GrantTrial(_ context.Context, username id.Username, trialID id.TrialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	user.Grant(trialID)
	return nil
}
