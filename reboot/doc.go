// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package reboot restarts the host machine after the game server has
// been stopped.
//
// [Orchestrator.RebootHost] never reboots a host with a live game
// process: a running server is stopped first, and the reboot itself
// runs inside [session.Controller.WhileStopped], which holds the
// lifecycle lock and re-probes for the game process. Any failure on
// the way aborts with [ErrRebootAborted] before the reboot action is
// invoked.
package reboot
