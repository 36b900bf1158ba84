// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package reboot

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// SyscallRebooter flushes filesystems and calls reboot(2). The process
// needs CAP_SYS_BOOT.
type SyscallRebooter struct{}

// Reboot restarts the host. It returns only on failure.
func (SyscallRebooter) Reboot(ctx context.Context) error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot syscall: %w", err)
	}
	return nil
}
