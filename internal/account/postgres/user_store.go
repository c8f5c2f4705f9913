// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package postgres implements account.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
)

// poolIface is the subset of pgxpool.Pool used by UserStore.
// It is satisfied by *pgxpool.Pool and pgxmock.PgxPoolIface.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, validated_account, password_reset_token, created_at`

// UserStore implements account.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// Create stores a new user, assigning its ID and creation time.
func (s *UserStore) Create(ctx context.Context, user *account.User) error {
	id := ulid.Make()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, password_hash, validated_account, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`,
		id.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.ValidatedAccount,
		createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				With("constraint", pgErr.ConstraintName).
				Wrap(account.ErrEmailTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// EmailExists reports whether the email is registered.
func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_CHECK_FAILED").
			With("operation", "check email").
			With("email", email).
			Wrap(err)
	}
	return exists, nil
}

// MarkValidated flags the user as validated. Re-validating is a no-op success.
func (s *UserStore) MarkValidated(ctx context.Context, id ulid.ULID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET validated_account = TRUE WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_VALIDATE_FAILED").
			With("operation", "mark validated").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

// SetPasswordResetToken replaces the pending reset token.
func (s *UserStore) SetPasswordResetToken(ctx context.Context, id ulid.ULID, token string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_reset_token = $2 WHERE id = $1`, id.String(), token)
	if err != nil {
		return oops.Code("USER_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

// ConsumePasswordResetToken swaps the password hash and clears the token in a
// single conditional update, so at most one caller can consume a given token.
func (s *UserStore) ConsumePasswordResetToken(ctx context.Context, id ulid.ULID, token, passwordHash string) (bool, error) {
	if token == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3, password_reset_token = NULL
		WHERE id = $1 AND password_reset_token = $2
	`, id.String(), token, passwordHash)
	if err != nil {
		return false, oops.Code("USER_RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUser(row pgx.Row) (*account.User, error) {
	var (
		user       account.User
		idStr      string
		resetToken *string
	)
	if err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.ValidatedAccount,
		&resetToken,
		&user.CreatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	if resetToken != nil {
		user.PasswordResetToken = *resetToken
	}
	return &user, nil
}
