// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"strings"
	"unicode/utf8"
)

// Password policy defaults.
const (
	DefaultPasswordMinLength     = 8
	DefaultPasswordMaxLength     = 40
	DefaultPasswordUniqueLetters = 3
	passwordSpecialCharacters    = `!@#$%^&*()_+-=[]{};':\|,.<>/?`
)

// PasswordPolicy rejects weak passwords. The zero value is not usable; use
// DefaultPasswordPolicy.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	MinUniqueLetters int
}

// DefaultPasswordPolicy returns the policy applied to every password.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        DefaultPasswordMinLength,
		MaxLength:        DefaultPasswordMaxLength,
		MinUniqueLetters: DefaultPasswordUniqueLetters,
	}
}

// Validate checks password and reports every violation found. An empty
// password is reported alone as ViolationUndefinedPassword.
func (p PasswordPolicy) Validate(password string) Result {
	if password == "" {
		return invalid(ViolationUndefinedPassword)
	}

	var codes []string
	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		codes = append(codes, ViolationPasswordTooShort)
	}
	if length > p.MaxLength {
		codes = append(codes, ViolationPasswordTooLong)
	}

	var upper, lower, digit, special bool
	letters := make(map[rune]struct{})
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
			letters[r+('a'-'A')] = struct{}{}
		case r >= 'a' && r <= 'z':
			lower = true
			letters[r] = struct{}{}
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecialCharacters, r):
			special = true
		}
	}

	if !upper {
		codes = append(codes, ViolationNoUppercase)
	}
	if !lower {
		codes = append(codes, ViolationNoLowercase)
	}
	if !digit {
		codes = append(codes, ViolationNoNumber)
	}
	if !special {
		codes = append(codes, ViolationNoSpecialChar)
	}
	if len(letters) < p.MinUniqueLetters {
		codes = append(codes, ViolationFewUniqueLetters)
	}

	return Result{Violations: codes}
}
