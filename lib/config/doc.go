// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads warden's configuration.
//
// Three sources feed a running daemon, each with one job:
//
//   - The YAML config file, named by --config or WARDEN_CONFIG. There
//     is no discovery and no fallback path: a daemon started without a
//     config file refuses to run. Values missing from the file keep the
//     defaults from [Default].
//   - Secrets from the environment (DISCORD_TOKEN, GUILD_ID,
//     WEBHOOK_URL), loaded by [LoadSecrets]. Secrets never live in the
//     config file, which is usually world-readable.
//   - The permission file, a JSON object mapping command names to role
//     id lists (comments and trailing commas allowed), loaded by
//     [LoadPermissions].
//
// Durations are YAML strings ("30s", "1m30s"). Paths may use ${VAR}
// and ${VAR:-default}; ${WARDEN_STATE} expands to paths.state.
package config
