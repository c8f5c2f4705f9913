// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// User is an identity record.
type User struct {
	ID                 ulid.ULID
	Name               string
	Email              string
	PasswordHash       string
	ValidatedAccount   bool
	PasswordResetToken string // empty when no reset is pending
	CreatedAt          time.Time
}

// HasPendingReset reports whether a password reset token is outstanding.
func (u *User) HasPendingReset() bool {
	return u.PasswordResetToken != ""
}

// SafeUser is the externally visible projection of a User.
type SafeUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Safe strips credentials and internal state from u.
func (u *User) Safe() SafeUser {
	return SafeUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
