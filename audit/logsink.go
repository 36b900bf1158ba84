// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"log/slog"
)

// LogSink writes records to a structured logger. It serves when no
// webhook or spool is configured, so the trail still exists in the
// daemon's own log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver logs record at info level. It never fails.
func (s LogSink) Deliver(ctx context.Context, record Record) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit record",
		"id", record.ID,
		"sequence", record.Sequence,
		"caller_id", record.CallerID,
		"caller_name", record.CallerName,
		"roles", record.Roles,
		"command", record.CommandKey,
		"args", record.ArgsSummary,
		"outcome", record.Outcome.Kind.String(),
		"reason", record.Outcome.Reason,
	)
	return nil
}
