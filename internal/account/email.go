// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import "regexp"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailFormat rejects malformed email addresses.
type EmailFormat struct{}

// Validate checks that email has a local@domain.tld shape.
func (EmailFormat) Validate(email string) Result {
	if email == "" {
		return invalid(ViolationUndefinedEmail)
	}
	if !emailPattern.MatchString(email) {
		return invalid(ViolationEmailInvalid)
	}
	return Result{}
}
