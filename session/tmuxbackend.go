// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wardenhq/warden/lib/tmux"
)

// TmuxBackend hosts the game server in a named tmux session.
type TmuxBackend struct {
	server    *tmux.Server
	name      string
	directory string
	command   []string
	logFile   string
	logger    *slog.Logger
}

// TmuxBackendConfig configures a TmuxBackend.
type TmuxBackendConfig struct {
	// Name is the tmux session name.
	Name string

	// Directory is the game server's working directory.
	Directory string

	// Command starts the game server, e.g. ["./LocalAdmin", "7777"].
	Command []string

	// LogFile, if set, receives everything the console prints through
	// tmux pipe-pane.
	LogFile string

	Logger *slog.Logger
}

// NewTmuxBackend returns a backend on server.
func NewTmuxBackend(server *tmux.Server, config TmuxBackendConfig) *TmuxBackend {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TmuxBackend{
		server:    server,
		name:      config.Name,
		directory: config.Directory,
		command:   append([]string(nil), config.Command...),
		logFile:   config.LogFile,
		logger:    logger,
	}
}

// Exists reports whether the session exists.
func (b *TmuxBackend) Exists(ctx context.Context) (bool, error) {
	return b.server.HasSession(ctx, b.name), nil
}

// Launch creates the session running the game server and, when a log
// file is configured, starts piping the console into it. A failed pipe
// is logged; the server keeps running.
func (b *TmuxBackend) Launch(ctx context.Context) error {
	if err := b.server.NewSession(ctx, b.name, b.directory, b.command...); err != nil {
		return err
	}
	if b.logFile != "" {
		if err := b.server.PipePane(ctx, b.name, b.logFile); err != nil {
			b.logger.Warn("console log capture unavailable", "path", b.logFile, "error", err)
		}
	}
	return nil
}

// SendLine types text and Enter into the console.
func (b *TmuxBackend) SendLine(ctx context.Context, text string) error {
	return b.server.SendKeys(ctx, b.name, text)
}

// Capture returns the last lines lines of the console, oldest first,
// with carriage returns removed.
func (b *TmuxBackend) Capture(ctx context.Context, lines int) ([]string, error) {
	output, err := b.server.CapturePane(ctx, b.name, lines)
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", b.name, err)
	}
	return SplitLines(output), nil
}

// Kill destroys the session.
func (b *TmuxBackend) Kill(ctx context.Context) error {
	return b.server.KillSession(ctx, b.name)
}

// SplitLines splits console output into lines, dropping carriage
// returns and the empty element after a trailing newline.
func SplitLines(output string) []string {
	output = strings.ReplaceAll(output, "\r", "")
	output = strings.TrimSuffix(output, "\n")
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}
