// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records the outcome of every command invocation.
//
// A [Logger] accepts [Record] values without blocking and hands them
// to a single delivery worker, which passes each to a [Sink] under a
// per-delivery timeout. Delivery failures and queue overflow are
// logged locally and never reach the caller: auditing is best effort
// and must not change what an operator is told.
//
// Sinks:
//   - [WebhookSink] posts a Discord embed per record, retrying
//     transient failures with exponential backoff.
//   - [SpoolSink] appends JSON lines to a local file and rotates it
//     into a zstd-compressed generation past a size limit.
//   - [FallbackSink] tries a primary sink and spools to a secondary
//     when the primary fails.
package audit
