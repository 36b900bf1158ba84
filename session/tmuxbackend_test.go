// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/wardenhq/warden/lib/tmux"
)

func TestTmuxBackendLifecycle(t *testing.T) {
	server := tmux.NewTestServer(t)
	ctx := t.Context()
	directory := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "console.log")

	// cat stands in for LocalAdmin: it echoes every console line.
	backend := NewTmuxBackend(server, TmuxBackendConfig{
		Name:      "scpsl",
		Directory: directory,
		Command:   []string{"cat"},
		LogFile:   logFile,
	})

	if exists, _ := backend.Exists(ctx); exists {
		t.Fatal("session exists before launch")
	}
	if err := backend.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if exists, _ := backend.Exists(ctx); !exists {
		t.Fatal("session missing after launch")
	}

	if err := backend.SendLine(ctx, "players"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	for {
		lines, err := backend.Capture(ctx, 100)
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		if slices.Contains(lines, "players") {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("console never showed the line, got %q", lines)
		}
		runtime.Gosched()
	}
	for {
		data, _ := os.ReadFile(logFile)
		if strings.Contains(string(data), "players") {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("pipe-pane log never received output")
		}
		runtime.Gosched()
	}

	if err := backend.Kill(ctx); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if exists, _ := backend.Exists(ctx); exists {
		t.Fatal("session survived Kill")
	}
	if err := backend.Kill(ctx); err != nil {
		t.Fatalf("second Kill: %v", err)
	}
}
