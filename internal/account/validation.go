// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

// Violation codes reported by PasswordPolicy and EmailFormat.
const (
	ViolationUndefinedPassword   = "UNDEFINED_PASSWORD"
	ViolationInvalidPasswordType = "INVALID_PASSWORD_TYPE"
	ViolationPasswordTooShort    = "PASSWORD_TOO_SHORT"
	ViolationPasswordTooLong     = "PASSWORD_TOO_LONG"
	ViolationNoUppercase         = "PASSWORD_NO_UPPERCASE"
	ViolationNoLowercase         = "PASSWORD_NO_LOWERCASE"
	ViolationNoNumber            = "PASSWORD_NO_NUMBER"
	ViolationNoSpecialChar       = "PASSWORD_NO_SPECIAL_CHAR"
	ViolationFewUniqueLetters    = "PASSWORD_NOT_ENOUGH_UNIQUE_LETTERS"

	ViolationUndefinedEmail   = "UNDEFINED_EMAIL"
	ViolationInvalidEmailType = "INVALID_EMAIL_TYPE"
	ViolationEmailInvalid     = "EMAIL_INVALID"

	ViolationInvalidNameType = "INVALID_NAME_TYPE"

	ViolationUserExists = string(KindUserExists)
)

// Result is the outcome of a pure validation.
type Result struct {
	Violations []string
}

// OK reports whether no violation was found.
func (r Result) OK() bool {
	return len(r.Violations) == 0
}

func invalid(codes ...string) Result {
	return Result{Violations: codes}
}
