// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import "context"

// NotificationKind selects the template used for a notification.
type NotificationKind string

// Notification kinds.
const (
	NotificationAccountValidation NotificationKind = "account_validation"
	NotificationPasswordReset     NotificationKind = "password_reset"
)

// Notification is an outbound message addressed to a user.
type Notification struct {
	Kind NotificationKind
	To   string
	Name string
	Link string
}

// Notifier hands a notification off for delivery. Implementations must not
// block on delivery; a returned error means the hand-off itself was refused
// and the notification is dropped.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
