// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/accountd/accountd/internal/account"
)

func TestEmailFormat_Validate(t *testing.T) {
	tests := []struct {
		email string
		want  []string
	}{
		{email: "a@b.com"},
		{email: "first.last+tag@sub.example.org"},
		{email: "", want: []string{account.ViolationUndefinedEmail}},
		{email: "not-an-email", want: []string{account.ViolationEmailInvalid}},
		{email: "missing@tld", want: []string{account.ViolationEmailInvalid}},
		{email: "two@@example.com", want: []string{account.ViolationEmailInvalid}},
		{email: "short@example.c", want: []string{account.ViolationEmailInvalid}},
		{email: " a@b.com", want: []string{account.ViolationEmailInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := account.EmailFormat{}.Validate(tt.email)
			assert.Equal(t, tt.want, got.Violations)
		})
	}
}
