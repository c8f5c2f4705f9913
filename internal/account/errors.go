// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by stores when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by stores when the unique email constraint rejects a write.
var ErrEmailTaken = errors.New("email already registered")

// Kind classifies a failure returned by Service.
type Kind string

// Failure kinds. The string value doubles as the machine-readable code.
const (
	KindValidationFailure   Kind = "VALIDATION_FAILURE"
	KindUserNotFound        Kind = "USER_NOT_FOUND"
	KindUserExists          Kind = "USER_EXISTS"
	KindInvalidPassword     Kind = "INVALID_PASSWORD"
	KindInvalidToken        Kind = "INVALID_TOKEN"
	KindAccountNotValidated Kind = "ACCOUNT_NOT_VALIDATED"
	KindEmailRequired       Kind = "EMAIL_REQUIRED"
	KindPasswordRequired    Kind = "PASSWORD_REQUIRED"
	KindStoreError          Kind = "STORE_ERROR"
	KindInternalError       Kind = "INTERNAL_ERROR"
)

// Error is a classified failure. Err holds the underlying cause, if any, and
// is meant for logs only.
type Error struct {
	Kind       Kind
	Violations []string
	Op         string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if len(e.Violations) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Violations, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Codes returns the machine-readable codes describing the failure: the
// collected violations for validation failures, otherwise the kind itself.
func (e *Error) Codes() []string {
	if len(e.Violations) > 0 {
		out := make([]string, len(e.Violations))
		copy(out, e.Violations)
		return out
	}
	return []string{string(e.Kind)}
}

// KindOf classifies err. Errors that did not originate from Service are
// reported as KindInternalError; nil yields the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// Codes returns the feedback codes for err. See Error.Codes.
func Codes(err error) []string {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Codes()
	}
	return []string{string(KindInternalError)}
}

func fail(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func violations(op string, kind Kind, codes []string) *Error {
	return &Error{Kind: kind, Op: op, Violations: codes}
}
