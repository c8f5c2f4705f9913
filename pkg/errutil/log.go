// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package errutil logs and asserts oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR level. oops errors are expanded into their
// code and context; other errors are logged by their message. Extra attrs
// are appended to the record.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	fields := make([]any, 0, len(attrs)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if c := oopsErr.Context(); len(c) > 0 {
			fields = append(fields, "context", c)
		}
	} else {
		fields = append(fields, "error", err)
	}
	fields = append(fields, attrs...)
	logger.ErrorContext(ctx, msg, fields...)
}
