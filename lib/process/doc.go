// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for warden binaries: the
// pre-logger fatal path and signal-scoped contexts for main().
package process
