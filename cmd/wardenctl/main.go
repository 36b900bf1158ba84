// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Wardenctl operates a running warden daemon over its local control
// socket. Commands run with the roles warden grants local callers, and
// console and reboot ask for confirmation unless --yes is given.
//
// Exit codes: 0 on success, 1 on failure, 3 when permission is denied,
// 4 when another operation holds the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wardenhq/warden/lib/process"
)

func main() {
	ctx, stop := process.SignalContext(context.Background())
	err := newApp().root().Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		// Outcomes already reported on stderr carry only an exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
