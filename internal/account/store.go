// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// UserStore manages user persistence.
type UserStore interface {
	// Create stores a new user, assigning its ID and CreatedAt.
	// Returns an error wrapping ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// EmailExists reports whether a user with the exact email exists.
	EmailExists(ctx context.Context, email string) (bool, error)

	// MarkValidated sets ValidatedAccount. Marking an already validated user succeeds.
	MarkValidated(ctx context.Context, id ulid.ULID) error

	// SetPasswordResetToken replaces the pending password reset token.
	SetPasswordResetToken(ctx context.Context, id ulid.ULID, token string) error

	// ConsumePasswordResetToken atomically replaces the password hash and
	// clears the reset token, but only while the stored token equals token.
	// Returns false when the token no longer matches.
	ConsumePasswordResetToken(ctx context.Context, id ulid.ULID, token, passwordHash string) (bool, error)
}
