// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests never hang. [AdvanceUntil] drives a
// [clock.FakeClock] forward while a lifecycle operation polls, until
// the operation reports its result. [SocketDir] returns a short /tmp
// directory for unix sockets (sun_path is limited to 108 bytes).
// [UniqueID] produces distinct identifiers without reading the clock.
//
// Helpers call t.Fatalf on failure; setup failures are not recoverable.
package testutil
