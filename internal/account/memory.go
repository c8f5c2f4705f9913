// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryUserStore is an in-memory UserStore for development and testing.
type MemoryUserStore struct {
	mu      sync.RWMutex
	users   map[ulid.ULID]*User
	byEmail map[string]ulid.ULID
}

// NewMemoryUserStore creates an empty in-memory store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:   make(map[ulid.ULID]*User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (s *MemoryUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(ErrEmailTaken)
	}

	user.ID = ulid.Make()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := *user
	s.users[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

// GetByID retrieves a copy of the user with the given ID.
func (s *MemoryUserStore) GetByID(_ context.Context, id ulid.ULID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	out := *u
	return &out, nil
}

// GetByEmail retrieves a copy of the user with the given email.
func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrNotFound)
	}
	out := *s.users[id]
	return &out, nil
}

// EmailExists reports whether the email is registered.
func (s *MemoryUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

// MarkValidated flags the user as validated.
func (s *MemoryUserStore) MarkValidated(_ context.Context, id ulid.ULID) error {
	return s.update(id, func(u *User) { u.ValidatedAccount = true })
}

// SetPasswordResetToken replaces the pending reset token.
func (s *MemoryUserStore) SetPasswordResetToken(_ context.Context, id ulid.ULID, token string) error {
	return s.update(id, func(u *User) { u.PasswordResetToken = token })
}

// ConsumePasswordResetToken swaps the password hash if token is still pending.
func (s *MemoryUserStore) ConsumePasswordResetToken(_ context.Context, id ulid.ULID, token, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || token == "" || u.PasswordResetToken != token {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = ""
	return true, nil
}

func (s *MemoryUserStore) update(id ulid.ULID, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	fn(u)
	return nil
}
