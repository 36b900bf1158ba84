// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package players reads the online player list from the game console.
//
// The game answers the "players" console command with a header line
// "List of players (N)" followed by one line per player and a blank
// line. [Lister] sends the command, waits for a fresh header and
// parses the entries with [Parse].
package players
