// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes used when Config leaves them unset.
const (
	DefaultValidationTokenTTL = time.Hour
	DefaultResetTokenTTL      = time.Hour
	DefaultSessionTokenTTL    = 7 * 24 * time.Hour
)

// Config holds values the service needs but does not own.
type Config struct {
	// BaseURL prefixes links embedded in notifications.
	BaseURL string

	ValidationTTL time.Duration
	ResetTTL      time.Duration

	// SessionTTL bounds re-identification tokens. Zero issues tokens without expiry.
	SessionTTL time.Duration
}

// Registration is the result of a successful Register.
type Registration struct {
	User SafeUser
	// Token is a re-identification token; empty if it could not be issued.
	Token string
}

// Session is the result of a successful Login.
type Session struct {
	User  SafeUser
	Token string
}

// Service orchestrates the account lifecycle.
type Service struct {
	users     UserStore
	hasher    PasswordHasher
	tokens    *TokenCodec
	notifier  Notifier
	passwords PasswordPolicy
	emails    EmailFormat
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service logging through slog.Default.
func NewService(users UserStore, hasher PasswordHasher, tokens *TokenCodec, notifier Notifier, cfg Config) (*Service, error) {
	return NewServiceWithLogger(users, hasher, tokens, notifier, cfg, slog.Default())
}

// NewServiceWithLogger creates a Service that logs best-effort failures to logger.
func NewServiceWithLogger(
	users UserStore,
	hasher PasswordHasher,
	tokens *TokenCodec,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("token codec is required")
	}
	if notifier == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ValidationTTL <= 0 {
		cfg.ValidationTTL = DefaultValidationTokenTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTokenTTL
	}
	if cfg.SessionTTL < 0 {
		cfg.SessionTTL = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		notifier:  notifier,
		passwords: DefaultPasswordPolicy(),
		emails:    EmailFormat{},
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Register creates an unvalidated account and sends the validation link.
// Password and email violations are reported together with USER_EXISTS.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Registration, error) {
	const op = "register"

	var codes []string
	codes = append(codes, s.passwords.Validate(password).Violations...)
	emailResult := s.emails.Validate(email)
	codes = append(codes, emailResult.Violations...)

	if email != "" {
		exists, err := s.users.EmailExists(ctx, email)
		if err != nil {
			return nil, fail(op, KindStoreError, err)
		}
		if exists {
			codes = append(codes, ViolationUserExists)
		}
	}

	if len(codes) > 0 {
		kind := KindValidationFailure
		if len(codes) == 1 && codes[0] == ViolationUserExists {
			kind = KindUserExists
		}
		return nil, violations(op, kind, codes)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fail(op, KindInternalError, err)
	}

	user := &User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: digest,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, violations(op, KindUserExists, []string{ViolationUserExists})
		}
		return nil, fail(op, KindStoreError, err)
	}

	s.sendValidation(ctx, user)

	reg := &Registration{User: user.Safe()}
	token, err := s.sessionToken(user)
	if err != nil {
		s.logger.WarnContext(ctx, "re-identification token not issued",
			"operation", op,
			"user_id", user.ID.String(),
			"error", err,
		)
		return reg, nil
	}
	reg.Token = token
	return reg, nil
}

// ValidateAccount marks the user named by a validation token as validated.
// Validating an already validated account succeeds.
func (s *Service) ValidateAccount(ctx context.Context, token string) error {
	const op = "validate_account"

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return fail(op, KindInvalidToken, err)
	}
	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		return fail(op, KindInvalidToken, err)
	}

	if err := s.users.MarkValidated(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(op, KindUserNotFound, err)
		}
		return fail(op, KindStoreError, err)
	}
	return nil
}

// Login checks credentials. An unvalidated account gets its validation link
// sent again and the login is refused.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "login"

	if email == "" || password == "" {
		var codes []string
		kind := KindPasswordRequired
		if email == "" {
			kind = KindEmailRequired
			codes = append(codes, string(KindEmailRequired))
		}
		if password == "" {
			codes = append(codes, string(KindPasswordRequired))
		}
		return nil, violations(op, kind, codes)
	}

	user, err := s.lookupByEmail(ctx, op, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fail(op, KindInternalError, err)
	}
	if !ok {
		return nil, fail(op, KindInvalidPassword, nil)
	}

	if !user.ValidatedAccount {
		s.sendValidation(ctx, user)
		return nil, fail(op, KindAccountNotValidated, nil)
	}

	token, err := s.sessionToken(user)
	if err != nil {
		return nil, fail(op, KindInternalError, err)
	}
	return &Session{User: user.Safe(), Token: token}, nil
}

// LoginWithToken resolves a re-identification token from an authorization
// header. The token stays usable until it expires or the password changes.
func (s *Service) LoginWithToken(ctx context.Context, header string) (*SafeUser, error) {
	const op = "login_with_token"

	raw, err := ExtractBearer(header)
	if err != nil {
		return nil, fail(op, KindInvalidToken, err)
	}
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, fail(op, KindInvalidToken, err)
	}
	if claims.Email == "" || claims.PasswordHash == "" {
		return nil, fail(op, KindInvalidToken, nil)
	}

	user, err := s.lookupByEmail(ctx, op, claims.Email)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.PasswordHash), []byte(user.PasswordHash)) != 1 {
		return nil, fail(op, KindInvalidToken, nil)
	}
	if !user.ValidatedAccount {
		return nil, fail(op, KindAccountNotValidated, nil)
	}

	safe := user.Safe()
	return &safe, nil
}

// RequestPasswordReset issues a reset token for a validated account, stores
// it as the only pending token and sends the reset link. The token is
// returned to the caller as well.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	const op = "request_password_reset"

	if res := s.emails.Validate(email); !res.OK() {
		return "", violations(op, KindValidationFailure, res.Violations)
	}

	user, err := s.lookupByEmail(ctx, op, email)
	if err != nil {
		return "", err
	}
	if !user.ValidatedAccount {
		return "", fail(op, KindAccountNotValidated, nil)
	}

	token, err := s.tokens.Issue(Claims{UserID: user.ID.String(), Email: user.Email}, s.cfg.ResetTTL)
	if err != nil {
		return "", fail(op, KindInternalError, err)
	}

	if err := s.users.SetPasswordResetToken(ctx, user.ID, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fail(op, KindUserNotFound, err)
		}
		return "", fail(op, KindStoreError, err)
	}

	s.notify(ctx, op, Notification{
		Kind: NotificationPasswordReset,
		To:   user.Email,
		Name: user.Name,
		Link: s.cfg.BaseURL + "/user/pages/update-password/" + token,
	})
	return token, nil
}

// ResetPassword consumes the pending reset token and sets a new password.
// tokenOrHeader is either the raw token or a "<scheme> <token>" header.
func (s *Service) ResetPassword(ctx context.Context, tokenOrHeader, newPassword string) error {
	const op = "reset_password"

	raw := strings.TrimSpace(tokenOrHeader)
	if strings.ContainsAny(raw, " \t") {
		var err error
		if raw, err = ExtractBearer(raw); err != nil {
			return fail(op, KindInvalidToken, err)
		}
	}

	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return fail(op, KindInvalidToken, err)
	}
	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		return fail(op, KindInvalidToken, err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(op, KindInvalidToken, err)
		}
		return fail(op, KindStoreError, err)
	}
	if !user.HasPendingReset() || user.PasswordResetToken != raw || claims.Email != user.Email {
		return fail(op, KindInvalidToken, nil)
	}

	if res := s.passwords.Validate(newPassword); !res.OK() {
		return violations(op, KindValidationFailure, res.Violations)
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(op, KindInternalError, err)
	}

	consumed, err := s.users.ConsumePasswordResetToken(ctx, id, raw, digest)
	if err != nil {
		return fail(op, KindStoreError, err)
	}
	if !consumed {
		return fail(op, KindInvalidToken, nil)
	}
	return nil
}

// GetUser returns the safe view of a user. Malformed ids are reported as not found.
func (s *Service) GetUser(ctx context.Context, id string) (*SafeUser, error) {
	const op = "get_user"

	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, fail(op, KindUserNotFound, err)
	}
	user, err := s.users.GetByID(ctx, parsed)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(op, KindUserNotFound, err)
		}
		return nil, fail(op, KindStoreError, err)
	}
	safe := user.Safe()
	return &safe, nil
}

func (s *Service) lookupByEmail(ctx context.Context, op, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(op, KindUserNotFound, err)
		}
		return nil, fail(op, KindStoreError, err)
	}
	return user, nil
}

// sessionToken binds the user's email and current password hash.
func (s *Service) sessionToken(user *User) (string, error) {
	return s.tokens.Issue(Claims{Email: user.Email, PasswordHash: user.PasswordHash}, s.cfg.SessionTTL)
}

func (s *Service) sendValidation(ctx context.Context, user *User) {
	token, err := s.tokens.Issue(Claims{UserID: user.ID.String()}, s.cfg.ValidationTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "validation token not issued",
			"operation", "send_validation",
			"user_id", user.ID.String(),
			"error", err,
		)
		return
	}
	s.notify(ctx, "send_validation", Notification{
		Kind: NotificationAccountValidation,
		To:   user.Email,
		Name: user.Name,
		Link: s.cfg.BaseURL + "/user/validation/" + token,
	})
}

// notify hands n to the notifier without letting the request context cancel
// the delivery. Refusals are logged and dropped.
func (s *Service) notify(ctx context.Context, op string, n Notification) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.WarnContext(ctx, "notification dropped",
			"operation", op,
			"kind", string(n.Kind),
			"error", err,
		)
	}
}
