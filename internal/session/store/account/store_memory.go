package account

import (
	"context"
	"sync"

	id "invigil/pkg/domain"
	"invigil/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in a map. Used by tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.UserID]Account
}

// NewInMemoryStore constructs an empty account store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[id.UserID]Account)}
}

// Save inserts or replaces an account.
func (s *InMemoryStore) Save(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

// FindByID returns a copy of the account or sentinel.ErrNotFound.
func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &account, nil
}

// SetActive flips the active flag; unknown subjects return ErrNotFound.
func (s *InMemoryStore) SetActive(_ context.Context, userID id.UserID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	account.Active = active
	s.accounts[userID] = account
	return nil
}
