// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"context"
	"log/slog"
)

// Sender delivers a rendered message. Send should return promptly once ctx
// is done; Dispatcher.Stop waits for in-flight sends.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg at INFO and its text body at DEBUG.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification delivered to log",
		"kind", string(msg.Kind),
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
	)
	s.logger.DebugContext(ctx, "notification body", "kind", string(msg.Kind), "text", msg.Text)
	return nil
}
