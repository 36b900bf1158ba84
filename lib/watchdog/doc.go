// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog records a pending host reboot across the reboot.
//
// Before warden reboots the host it writes a [Marker]. When the daemon
// comes back up it calls [Check]: a recent marker means the reboot it
// requested completed, so the daemon reports that and calls [Clear].
// A marker older than the caller's maxAge belongs to some earlier,
// unrelated restart and is ignored.
//
// The marker never describes the game-server session. Session state is
// always re-probed at startup.
//
// Writes are atomic (temporary file, fsync, rename, directory fsync),
// so a power cut mid-write leaves either the old marker or the new one.
package watchdog
