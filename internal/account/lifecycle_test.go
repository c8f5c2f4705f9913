// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/account"
)

const testBaseURL = "https://accounts.example.com"

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []account.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg account.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T, kind account.NotificationKind) account.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return account.Notification{}
}

func (n *recordingNotifier) count(kind account.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Kind == kind {
			c++
		}
	}
	return c
}

type lifecycleFixture struct {
	svc      *account.Service
	store    *account.MemoryUserStore
	notifier *recordingNotifier
	clock    *fakeClock
	logs     *bytes.Buffer
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	clock := newFakeClock()
	hasher, err := account.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	f := &lifecycleFixture{
		store:    account.NewMemoryUserStore(),
		notifier: &recordingNotifier{},
		clock:    clock,
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	f.svc, err = account.NewServiceWithLogger(f.store, hasher, newTestCodec(t, clock), f.notifier,
		account.Config{BaseURL: testBaseURL + "/"}, logger)
	require.NoError(t, err)
	return f
}

func tokenFromLink(t *testing.T, link, prefix string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, testBaseURL+prefix), "unexpected link %s", link)
	return strings.TrimPrefix(link, testBaseURL+prefix)
}

// registerValidated registers a user and completes validation.
func (f *lifecycleFixture) registerValidated(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "Test User", email, password)
	require.NoError(t, err)
	link := f.notifier.last(t, account.NotificationAccountValidation).Link
	require.NoError(t, f.svc.ValidateAccount(ctx, tokenFromLink(t, link, "/user/validation/")))
}

func TestLifecycle_RegisterValidateLogin(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	reg, err := f.svc.Register(ctx, "  Ada  ", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	assert.Equal(t, "Ada", reg.User.Name)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.User.ID)
	assert.NotEmpty(t, reg.Token)

	stored, err := f.store.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, stored.ValidatedAccount)
	assert.NotEqual(t, "Abcdef1!", stored.PasswordHash)

	validation := f.notifier.last(t, account.NotificationAccountValidation)
	assert.Equal(t, "ada@example.com", validation.To)
	assert.Equal(t, "Ada", validation.Name)

	_, err = f.svc.Login(ctx, "ada@example.com", "Abcdef1!")
	assert.Equal(t, account.KindAccountNotValidated, account.KindOf(err))
	assert.Equal(t, 2, f.notifier.count(account.NotificationAccountValidation), "login must resend validation")

	token := tokenFromLink(t, validation.Link, "/user/validation/")
	require.NoError(t, f.svc.ValidateAccount(ctx, token))

	session, err := f.svc.Login(ctx, "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, session.User.ID)
	assert.NotEmpty(t, session.Token)
}

func TestLifecycle_ValidateAccountIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	token := tokenFromLink(t, f.notifier.last(t, account.NotificationAccountValidation).Link, "/user/validation/")

	require.NoError(t, f.svc.ValidateAccount(ctx, token))
	require.NoError(t, f.svc.ValidateAccount(ctx, token))
}

func TestLifecycle_ValidationTokenExpires(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	token := tokenFromLink(t, f.notifier.last(t, account.NotificationAccountValidation).Link, "/user/validation/")

	f.clock.Advance(time.Hour + time.Second)
	err = f.svc.ValidateAccount(ctx, token)
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
	assert.ErrorIs(t, err, account.ErrTokenExpired)
}

func TestLifecycle_DuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Other", "ada@example.com", "Abcdef1!")
	assert.Equal(t, account.KindUserExists, account.KindOf(err))
	assert.Equal(t, []string{account.ViolationUserExists}, account.Codes(err))

	_, err = f.svc.Register(ctx, "Other", "ada@example.com", "short")
	assert.Equal(t, account.KindValidationFailure, account.KindOf(err))
	assert.Equal(t, []string{
		account.ViolationPasswordTooShort,
		account.ViolationNoUppercase,
		account.ViolationNoNumber,
		account.ViolationNoSpecialChar,
		account.ViolationUserExists,
	}, account.Codes(err))
}

func TestLifecycle_RegisterReportsAllViolations(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "not-an-email", "aaaaaaA1!")
	assert.Equal(t, account.KindValidationFailure, account.KindOf(err))
	assert.Equal(t, []string{account.ViolationFewUniqueLetters, account.ViolationEmailInvalid}, account.Codes(err))

	_, err = f.svc.Register(ctx, "Ada", "", "")
	assert.Equal(t, []string{account.ViolationUndefinedPassword, account.ViolationUndefinedEmail}, account.Codes(err))

	exists, err := f.store.EmailExists(ctx, "not-an-email")
	require.NoError(t, err)
	assert.False(t, exists, "no partial creation")
	assert.Zero(t, f.notifier.count(account.NotificationAccountValidation))
}

func TestLifecycle_NotifierFailureDoesNotFailRegistration(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.notifier.err = errors.New("queue full")

	reg, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.User.ID)
	assert.Contains(t, f.logs.String(), "notification dropped")
	assert.Contains(t, f.logs.String(), "queue full")
}

func TestLifecycle_LoginFailures(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	tests := []struct {
		name     string
		email    string
		password string
		kind     account.Kind
		codes    []string
	}{
		{"missing email", "", "Abcdef1!", account.KindEmailRequired, []string{"EMAIL_REQUIRED"}},
		{"missing password", "ada@example.com", "", account.KindPasswordRequired, []string{"PASSWORD_REQUIRED"}},
		{"missing both", "", "", account.KindEmailRequired, []string{"EMAIL_REQUIRED", "PASSWORD_REQUIRED"}},
		{"unknown user", "bob@example.com", "Abcdef1!", account.KindUserNotFound, []string{"USER_NOT_FOUND"}},
		{"wrong password", "ada@example.com", "Abcdef1?", account.KindInvalidPassword, []string{"INVALID_PASSWORD"}},
		{"email is case sensitive", "ADA@example.com", "Abcdef1!", account.KindUserNotFound, []string{"USER_NOT_FOUND"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := f.svc.Login(ctx, tt.email, tt.password)
			assert.Nil(t, session)
			assert.Equal(t, tt.kind, account.KindOf(err))
			assert.Equal(t, tt.codes, account.Codes(err))
		})
	}
}

func TestLifecycle_LoginWithToken(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	session, err := f.svc.Login(ctx, "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	user, err := f.svc.LoginWithToken(ctx, "Bearer "+session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User, *user)

	_, err = f.svc.LoginWithToken(ctx, "")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
	assert.ErrorIs(t, err, account.ErrMissingHeader)

	_, err = f.svc.LoginWithToken(ctx, "Bearer")
	assert.ErrorIs(t, err, account.ErrMissingToken)

	_, err = f.svc.LoginWithToken(ctx, "Bearer not.a.token")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
}

func TestLifecycle_RegistrationTokenRequiresValidation(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	reg, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	_, err = f.svc.LoginWithToken(ctx, "Bearer "+reg.Token)
	assert.Equal(t, account.KindAccountNotValidated, account.KindOf(err))

	token := tokenFromLink(t, f.notifier.last(t, account.NotificationAccountValidation).Link, "/user/validation/")
	require.NoError(t, f.svc.ValidateAccount(ctx, token))

	user, err := f.svc.LoginWithToken(ctx, "Bearer "+reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, user.ID)
}

func TestLifecycle_PasswordResetSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	t1, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	t2, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	reset := f.notifier.last(t, account.NotificationPasswordReset)
	assert.Equal(t, t2, tokenFromLink(t, reset.Link, "/user/pages/update-password/"))

	err = f.svc.ResetPassword(ctx, "Bearer "+t1, "Newpass1!")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err), "superseded token")

	require.NoError(t, f.svc.ResetPassword(ctx, "Bearer "+t2, "Newpass1!"))

	err = f.svc.ResetPassword(ctx, "Bearer "+t2, "Otherpass1!")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err), "consumed token")

	_, err = f.svc.Login(ctx, "ada@example.com", "Abcdef1!")
	assert.Equal(t, account.KindInvalidPassword, account.KindOf(err))
	_, err = f.svc.Login(ctx, "ada@example.com", "Newpass1!")
	require.NoError(t, err)
}

func TestLifecycle_ResetPasswordAcceptsRawToken(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "Newpass1!"))
}

func TestLifecycle_ResetPasswordPolicyViolationKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, "Bearer "+token, "weak")
	assert.Equal(t, account.KindValidationFailure, account.KindOf(err))
	assert.Contains(t, account.Codes(err), account.ViolationPasswordTooShort)

	require.NoError(t, f.svc.ResetPassword(ctx, "Bearer "+token, "Newpass1!"))
}

func TestLifecycle_MultibytePasswordBeyondBcryptLimit(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	password := "Abc1!" + strings.Repeat("é", 35)
	require.Greater(t, len(password), 72)

	f.registerValidated(t, "ada@example.com", password)
	_, err := f.svc.Login(ctx, "ada@example.com", password)
	require.NoError(t, err)

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	next := "Xyz9?" + strings.Repeat("ü", 35)
	require.NoError(t, f.svc.ResetPassword(ctx, "Bearer "+token, next))

	_, err = f.svc.Login(ctx, "ada@example.com", next)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "ada@example.com", password)
	assert.Equal(t, account.KindInvalidPassword, account.KindOf(err))
}

func TestLifecycle_ResetTokenExpires(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	err = f.svc.ResetPassword(ctx, "Bearer "+token, "Newpass1!")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
}

func TestLifecycle_StaleSessionTokenAfterReset(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	session, err := f.svc.Login(ctx, "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetPassword(ctx, "Bearer "+token, "Newpass1!"))

	_, err = f.svc.LoginWithToken(ctx, "Bearer "+session.Token)
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
}

func TestLifecycle_RequestPasswordResetFailures(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	_, err = f.svc.RequestPasswordReset(ctx, "ada@example.com")
	assert.Equal(t, account.KindAccountNotValidated, account.KindOf(err))

	_, err = f.svc.RequestPasswordReset(ctx, "bob@example.com")
	assert.Equal(t, account.KindUserNotFound, account.KindOf(err))

	_, err = f.svc.RequestPasswordReset(ctx, "")
	assert.Equal(t, account.KindValidationFailure, account.KindOf(err))
	assert.Equal(t, []string{account.ViolationUndefinedEmail}, account.Codes(err))

	_, err = f.svc.RequestPasswordReset(ctx, "nope")
	assert.Equal(t, []string{account.ViolationEmailInvalid}, account.Codes(err))

	assert.Zero(t, f.notifier.count(account.NotificationPasswordReset))
}

func TestLifecycle_ValidationTokenCannotResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	_, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)
	token := tokenFromLink(t, f.notifier.last(t, account.NotificationAccountValidation).Link, "/user/validation/")
	require.NoError(t, f.svc.ValidateAccount(ctx, token))

	err = f.svc.ResetPassword(ctx, token, "Newpass1!")
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
}

func TestLifecycle_GetUser(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	reg, err := f.svc.Register(ctx, "Ada", "ada@example.com", "Abcdef1!")
	require.NoError(t, err)

	user, err := f.svc.GetUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User, *user)

	_, err = f.svc.GetUser(ctx, "not-a-ulid")
	assert.Equal(t, account.KindUserNotFound, account.KindOf(err))

	_, err = f.svc.GetUser(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.Equal(t, account.KindUserNotFound, account.KindOf(err))
}

func TestLifecycle_ConcurrentResetConsumesOnce(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.registerValidated(t, "ada@example.com", "Abcdef1!")

	token, err := f.svc.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.ResetPassword(ctx, token, "Newpass1!")
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, account.KindInvalidToken, account.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
}
