// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package mocks

import "github.com/stretchr/testify/mock"

// MockPasswordHasher is a testify mock of account.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its expectations on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, digest string) (bool, error) {
	ret := m.Called(password, digest)
	return ret.Bool(0), ret.Error(1)
}
