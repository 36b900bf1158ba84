// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package reboot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Rebooter restarts the host. A successful call may never return.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// CommandRebooter runs an external command, "sudo reboot" by default.
type CommandRebooter struct {
	Argv []string
}

// Reboot runs the command and waits for it to exit.
func (r CommandRebooter) Reboot(ctx context.Context) error {
	argv := r.Argv
	if len(argv) == 0 {
		argv = []string{"sudo", "reboot"}
	}
	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("running %s: %w: %s", strings.Join(argv, " "), err, detail)
		}
		return fmt.Errorf("running %s: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// ErrUnsupported is returned by SyscallRebooter off Linux.
var ErrUnsupported = errors.New("reboot syscall not supported on this platform")
