// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T, clock *fakeClock) *account.TokenCodec {
	t.Helper()
	codec, err := account.NewTokenCodec(testSecret, account.WithIssuer("accountd-test"), account.WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec_RequiresSecret(t *testing.T) {
	_, err := account.NewTokenCodec(nil)
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_REQUIRED")
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)

	token, err := codec.Issue(account.Claims{UserID: "01HXYZ", Email: "a@b.com"}, time.Hour)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "01HXYZ", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Empty(t, claims.PasswordHash)
	assert.Equal(t, "accountd-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenCodec_Expired(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)

	token, err := codec.Issue(account.Claims{UserID: "01HXYZ"}, time.Hour)
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)
	_, err = codec.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrTokenExpired)
	errutil.AssertErrorCode(t, err, "TOKEN_EXPIRED")
}

func TestTokenCodec_NoTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)

	token, err := codec.Issue(account.Claims{Email: "a@b.com", PasswordHash: "$2a$04$x"}, 0)
	require.NoError(t, err)

	clock.Advance(10 * 365 * 24 * time.Hour)
	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
	assert.Equal(t, "$2a$04$x", claims.PasswordHash)
}

func TestTokenCodec_IssueIsUnique(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())
	claims := account.Claims{UserID: "01HXYZ", Email: "a@b.com"}

	first, err := codec.Issue(claims, time.Hour)
	require.NoError(t, err)
	second, err := codec.Issue(claims, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTokenCodec_BadSignature(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	other, err := account.NewTokenCodec([]byte("another-secret-another-secret!!"),
		account.WithIssuer("accountd-test"), account.WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.Issue(account.Claims{UserID: "01HXYZ"}, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, account.ErrTokenBadSignature)
	errutil.AssertErrorCode(t, err, "TOKEN_BAD_SIGNATURE")
}

func TestTokenCodec_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())
	token, err := codec.Issue(account.Claims{UserID: "01HXYZ"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged, err := codec.Issue(account.Claims{UserID: "01HABC"}, time.Hour)
	require.NoError(t, err)
	parts[1] = strings.Split(forged, ".")[1]

	_, err = codec.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, account.ErrTokenBadSignature)
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "01HXYZ", "iss": "accountd-test"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(unsigned)
	require.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrTokenExpired)
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := codec.Verify(raw)
		assert.ErrorIs(t, err, account.ErrTokenMalformed, "token %q", raw)
		errutil.AssertErrorCode(t, err, "TOKEN_MALFORMED")
	}
}

func TestTokenCodec_WrongIssuer(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	other, err := account.NewTokenCodec(testSecret, account.WithIssuer("someone-else"), account.WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.Issue(account.Claims{UserID: "01HXYZ"}, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, account.ErrTokenMalformed)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer token", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "any scheme", header: "Token xyz", want: "xyz"},
		{name: "extra spaces", header: "  Bearer   xyz  ", want: "xyz"},
		{name: "missing header", header: "", wantErr: account.ErrMissingHeader},
		{name: "blank header", header: "   ", wantErr: account.ErrMissingHeader},
		{name: "scheme only", header: "Bearer", wantErr: account.ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := account.ExtractBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
