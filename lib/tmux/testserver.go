// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/wardenhq/warden/lib/testutil"
)

// NewTestServer starts an isolated tmux server for a test. It lives on
// a short /tmp socket, ignores ~/.tmux.conf, and is kept alive by a
// "_guard" session until t.Cleanup kills it. Tests are skipped when
// tmux is not installed.
//
// Test code must use the returned Server. A bare tmux command targets
// the developer's own server.
func NewTestServer(t *testing.T) *Server {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "tmux.sock")
	server := NewServer(socketPath, "/dev/null")
	if err := server.NewSession(context.Background(), "_guard", "", "sleep", "infinity"); err != nil {
		t.Fatalf("start tmux test server: %v", err)
	}
	t.Cleanup(func() {
		_ = server.KillServer(context.Background())
	})
	return server
}
