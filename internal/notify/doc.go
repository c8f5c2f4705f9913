// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package notify delivers account notifications.
//
// A Dispatcher accepts notifications without blocking, renders them from the
// embedded templates and hands the resulting Message to a Sender on a small
// pool of workers. SMTPSender delivers over SMTP; LogSender writes messages to
// the log for local development.
package notify
