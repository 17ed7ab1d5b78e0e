// Package memory is the in-memory admin user store for unit tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ourcaldo/indexnow-mono-sub007/pkg/sentinel"
)

// User is the slice of profile state adminops touches.
type User struct {
	ID              uuid.UUID
	Role            string
	PasswordHash    string
	DailyQuotaUsed  int
	QuotaResetDate  *time.Time
	SubscriptionEnd *time.Time
}

// Store holds users in process memory.
type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

// New creates an empty store.
func New() *Store {
	return &Store{users: make(map[uuid.UUID]*User)}
}

// Put seeds a user. Test setup helper.
func (s *Store) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// Get returns a copy of the user, or nil when absent.
func (s *Store) Get(id uuid.UUID) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *Store) UpdateRole(_ context.Context, userID uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	u.Role = role
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	u.PasswordHash = hash
	return nil
}

func (s *Store) ResetDailyQuota(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	u.DailyQuotaUsed = 0
	u.QuotaResetDate = &today
	return nil
}

func (s *Store) ExtendSubscription(_ context.Context, userID uuid.UUID, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	base := time.Now().UTC()
	if u.SubscriptionEnd != nil && u.SubscriptionEnd.After(base) {
		base = *u.SubscriptionEnd
	}
	end := base.AddDate(0, 0, days)
	u.SubscriptionEnd = &end
	return nil
}
