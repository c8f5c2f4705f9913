// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/accountd/accountd/internal/account"
)

// MockUserStore is a testify mock of account.UserStore.
type MockUserStore struct {
	mock.Mock
}

// NewMockUserStore creates a MockUserStore that asserts its expectations on cleanup.
func NewMockUserStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserStore {
	m := &MockUserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserStore) Create(ctx context.Context, user *account.User) error {
	ret := m.Called(ctx, user)
	if fn, ok := ret.Get(0).(func(context.Context, *account.User) error); ok {
		return fn(ctx, user)
	}
	return ret.Error(0)
}

func (m *MockUserStore) GetByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	ret := m.Called(ctx, id)
	var user *account.User
	if v := ret.Get(0); v != nil {
		user = v.(*account.User)
	}
	return user, ret.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	ret := m.Called(ctx, email)
	var user *account.User
	if v := ret.Get(0); v != nil {
		user = v.(*account.User)
	}
	return user, ret.Error(1)
}

func (m *MockUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	ret := m.Called(ctx, email)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockUserStore) MarkValidated(ctx context.Context, id ulid.ULID) error {
	ret := m.Called(ctx, id)
	return ret.Error(0)
}

func (m *MockUserStore) SetPasswordResetToken(ctx context.Context, id ulid.ULID, token string) error {
	ret := m.Called(ctx, id, token)
	return ret.Error(0)
}

func (m *MockUserStore) ConsumePasswordResetToken(ctx context.Context, id ulid.ULID, token, passwordHash string) (bool, error) {
	ret := m.Called(ctx, id, token, passwordHash)
	return ret.Bool(0), ret.Error(1)
}
