// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt work factor used when none is configured.
const DefaultHashCost = 10

// bcryptMaxInput is the number of password bytes bcrypt consumes.
const bcryptMaxInput = 72

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("HASH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a malformed digest.
	Verify(password, digest string) (bool, error)
}

// Hasher hashes with bcrypt at a fixed cost. Verify also accepts argon2id
// digests in PHC format so imported credentials keep working.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given bcrypt cost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("HASH_INVALID_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash produces a bcrypt digest of the password. Only the first 72 bytes
// of the password are significant.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	digest, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", oops.Code("HASH_FAILED").With("cost", h.cost).Wrap(err)
	}
	return string(digest), nil
}

// Verify checks if the password matches the digest.
func (h *Hasher) Verify(password, digest string) (bool, error) {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(password, digest)
	case strings.HasPrefix(digest, "$2"):
		return verifyBcrypt(password, digest)
	default:
		return false, oops.Code("HASH_INVALID").Errorf("unsupported digest format")
	}
}

// bcryptInput truncates password to the bytes bcrypt reads. Multi-byte
// passwords within the policy length can exceed that limit.
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxInput {
		b = b[:bcryptMaxInput]
	}
	return b
}

// verifyBcrypt accepts the $2a$, $2b$ and $2y$ variants.
func verifyBcrypt(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, oops.Code("HASH_INVALID").Wrap(err)
	}
}

// verifyArgon2id checks a $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash> digest.
func verifyArgon2id(password, digest string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("HASH_INVALID").Errorf("invalid argon2id digest")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("HASH_INVALID").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("HASH_INVALID").Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("HASH_INVALID").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("HASH_INVALID").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("HASH_INVALID").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("HASH_INVALID").Wrap(err)
	}
	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<10 {
		return false, oops.Code("HASH_INVALID").Errorf("invalid key length %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
