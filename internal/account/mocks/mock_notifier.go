// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/accountd/accountd/internal/account"
)

// MockNotifier is a testify mock of account.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier that asserts its expectations on cleanup.
func NewMockNotifier(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) Notify(ctx context.Context, n account.Notification) error {
	ret := m.Called(ctx, n)
	return ret.Error(0)
}
