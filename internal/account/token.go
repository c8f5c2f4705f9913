// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token verification failures. Codec errors wrap one of these.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrMissingHeader     = errors.New("authorization header missing")
	ErrMissingToken      = errors.New("authorization header carries no token")
)

// Claims is the payload bound into a token. Which fields are set depends on
// the consumer: validation tokens carry UserID, reset tokens UserID and Email,
// re-identification tokens Email and PasswordHash.
type Claims struct {
	UserID       string `json:"id,omitempty"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 tokens with a key fixed at construction.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithIssuer sets the iss claim written and required by the codec.
func WithIssuer(issuer string) TokenOption {
	return func(c *TokenCodec) { c.issuer = issuer }
}

// WithClock replaces the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec creates a codec signing with secret. The secret is copied.
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_REQUIRED").Errorf("token signing secret is required")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims. A positive ttl sets an absolute expiry; every token gets
// a fresh jti so two tokens issued for the same claims never collide.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Issuer:   c.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the bound claims.
func (c *TokenCodec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, oops.Code("TOKEN_MALFORMED").Wrap(ErrTokenMalformed)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, oops.Code("TOKEN_EXPIRED").Wrap(errors.Join(ErrTokenExpired, err))
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, oops.Code("TOKEN_BAD_SIGNATURE").Wrap(errors.Join(ErrTokenBadSignature, err))
	default:
		return nil, oops.Code("TOKEN_MALFORMED").Wrap(errors.Join(ErrTokenMalformed, err))
	}
}

// ExtractBearer returns the token segment of a "<scheme> <token>" header.
// The scheme itself is not checked.
func ExtractBearer(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", oops.Code("AUTH_HEADER_MISSING").Wrap(ErrMissingHeader)
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", oops.Code("AUTH_TOKEN_MISSING").Wrap(ErrMissingToken)
	}
	return fields[1], nil
}
