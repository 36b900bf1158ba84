// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package reboot

import "context"

// SyscallRebooter is unavailable off Linux.
type SyscallRebooter struct{}

// Reboot returns ErrUnsupported.
func (SyscallRebooter) Reboot(ctx context.Context) error {
	return ErrUnsupported
}
