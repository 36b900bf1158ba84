// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the lifecycle of the game server.
//
// The game runs inside a persistent tmux session ([Backend]) and is
// observed through the host's process and socket tables ([Probe]). A
// single [Controller] is the only code allowed to change the session's
// [State]; everything else reads a [Status] snapshot.
//
// # Lifecycle lock
//
// Start, stop, restarts, round commands, console injection and
// visibility toggles all take one lifecycle lock. Acquisition never
// waits: if another operation holds the lock the caller gets [ErrBusy]
// immediately. The lock is released on every return path.
//
// # State machine
//
//	Stopped    --Start-->          Starting --(port bound)-->   Running
//	Running    --Stop-->           Stopping --(exit)-->         Stopped
//	Running    --Restart(Hard)-->  Stopping --> Starting -->    Running
//	Running    --Restart(Soft)-->  Restarting --(marker)-->     Running
//
// Every wait is bounded by a configured timeout measured on the
// injected [clock.Clock]. A timeout resolves to a defined state:
//
//   - Start: the half-started session is killed, state Stopped,
//     [ErrStartTimeout].
//   - Graceful stop: escalates to a kill ([EscalateKill]) or leaves the
//     state Stopping with [ErrStopTimeout] ([EscalateManual]). A kill
//     whose exit cannot be confirmed also leaves Stopping.
//   - Soft restart: state Running, [ErrRestartTimeout].
//   - Visibility: visibility unchanged, [ErrVisibilityTimeout].
//
// Accepted operations run to completion or timeout even if the
// caller's context is cancelled.
package session
