// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/account"
)

func TestLogSender_Send(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := NewLogSender(logger).Send(context.Background(), Message{
		Kind:    account.NotificationAccountValidation,
		To:      "ada@example.com",
		Subject: "Validate your account",
		Text:    "Hello Ada",
		Link:    "https://accounts.example.com/user/validation/abc",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "to=ada@example.com")
	assert.Contains(t, out, "link=https://accounts.example.com/user/validation/abc")
	assert.Contains(t, out, "notification body")
}
