// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux drives the tmux server that hosts the game console.
//
// The game server runs inside a named tmux session so that it survives
// warden restarts and operators can attach to it by hand. Every tmux
// invocation goes through [Server], which injects the -S flag when a
// dedicated socket is configured. An empty socket path targets the
// invoking user's default tmux server, which is how operators usually
// attach ("tmux attach -t scpsl").
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Server is a tmux server identified by its socket path.
type Server struct {
	socketPath string
	configFile string // "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server targeting socketPath. An empty socketPath
// means the default server. configFile is passed to tmux when
// new-session may start the server; tests pass "/dev/null".
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the socket path, or "" for the default server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) baseArgs() []string {
	if s.socketPath == "" {
		return nil
	}
	return []string{"-S", s.socketPath}
}

// NewSession creates a detached session. If directory is non-empty the
// session starts there. If command is non-empty the session runs it
// instead of the default shell.
func (s *Server) NewSession(ctx context.Context, sessionName, directory string, command ...string) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, s.baseArgs()...)
	args = append(args, "new-session", "-d", "-s", sessionName)
	if directory != "" {
		args = append(args, "-c", directory)
	}
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, "tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether the named session exists. Returns false
// when the server is not running.
func (s *Server) HasSession(ctx context.Context, sessionName string) bool {
	_, err := s.Run(ctx, "has-session", "-t", exactTarget(sessionName))
	return err == nil
}

// KillSession terminates the named session. A missing session or a
// stopped server is not an error.
func (s *Server) KillSession(ctx context.Context, sessionName string) error {
	_, err := s.Run(ctx, "kill-session", "-t", exactTarget(sessionName))
	if err != nil && isGone(err) {
		return nil
	}
	return err
}

// KillServer terminates the whole server. A server that is already
// gone is not an error.
func (s *Server) KillServer(ctx context.Context) error {
	_, err := s.Run(ctx, "kill-server")
	if err != nil && isGone(err) {
		return nil
	}
	return err
}

// SetOption sets a tmux option globally when sessionName is empty,
// otherwise on that session.
func (s *Server) SetOption(ctx context.Context, sessionName, key, value string) error {
	args := []string{"set-option"}
	if sessionName == "" {
		args = append(args, "-g")
	} else {
		args = append(args, "-t", exactTarget(sessionName))
	}
	args = append(args, key, value)
	if _, err := s.Run(ctx, args...); err != nil {
		return fmt.Errorf("setting %s=%s: %w", key, value, err)
	}
	return nil
}

// SendKeys types text literally into the session's active pane and
// presses Enter. Key names inside text ("C-c", "Enter") are not
// interpreted.
func (s *Server) SendKeys(ctx context.Context, sessionName, text string) error {
	target := exactTarget(sessionName)
	if text != "" {
		// "--" keeps text starting with "-" from parsing as a flag.
		if _, err := s.Run(ctx, "send-keys", "-t", target, "-l", "--", text); err != nil {
			return err
		}
	}
	_, err := s.Run(ctx, "send-keys", "-t", target, "Enter")
	return err
}

// CapturePane returns the pane's scrollback and visible area with
// wrapped lines joined (-J). Trailing blank lines of the unused visible
// area are dropped. maxLines > 0 keeps only the last maxLines lines.
func (s *Server) CapturePane(ctx context.Context, sessionName string, maxLines int) (string, error) {
	output, err := s.Run(ctx, "capture-pane", "-p", "-J", "-t", exactTarget(sessionName), "-S", "-", "-E", "-")
	if err != nil {
		return "", err
	}
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return "", nil
	}
	output += "\n"
	if maxLines <= 0 {
		return output, nil
	}
	return TailLines(output, maxLines), nil
}

// PipePane appends everything the pane prints to path. It is a no-op
// if the pane is already piped (-o). The pipe lasts as long as the
// pane does.
func (s *Server) PipePane(ctx context.Context, sessionName, path string) error {
	_, err := s.Run(ctx, "pipe-pane", "-o", "-t", exactTarget(sessionName), "cat >> "+shellQuote(path))
	return err
}

// PanePID returns the process ID of the command in the session's
// active pane.
func (s *Server) PanePID(ctx context.Context, sessionName string) (int, error) {
	output, err := s.Run(ctx, "display-message", "-p", "-t", exactTarget(sessionName), "#{pane_pid}")
	if err != nil {
		return 0, fmt.Errorf("getting pane PID: %w", err)
	}
	pid, parseErr := strconv.Atoi(strings.TrimSpace(output))
	if parseErr != nil {
		return 0, fmt.Errorf("parsing pane PID %q: %w", strings.TrimSpace(output), parseErr)
	}
	return pid, nil
}

// Run executes a tmux subcommand on this server and returns its
// combined output. The socket flag is prepended automatically:
//
//	output, err := server.Run(ctx, "list-panes", "-t", session, "-F", "#{pane_dead}")
func (s *Server) Run(ctx context.Context, args ...string) (string, error) {
	output, err := s.Command(ctx, args...).CombinedOutput()
	if err != nil {
		return "", &CommandError{
			Args:   args,
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}
	return string(output), nil
}

// Command returns an unstarted *exec.Cmd for a tmux subcommand on this
// server.
func (s *Server) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append(s.baseArgs(), args...)
	return exec.CommandContext(ctx, "tmux", fullArgs...)
}

// CommandError is a failed tmux invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tmux %s: %v (%s)", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// isGone reports whether a tmux failure means the target no longer
// exists. The socket can linger briefly after the server exits, which
// tmux reports as "server exited unexpectedly".
func isGone(err error) bool {
	commandErr, ok := err.(*CommandError)
	if !ok {
		return false
	}
	return strings.Contains(commandErr.Output, "can't find session") ||
		strings.Contains(commandErr.Output, "no server running") ||
		strings.Contains(commandErr.Output, "server exited unexpectedly") ||
		strings.Contains(commandErr.Output, "error connecting to")
}

// exactTarget prefixes "=" so tmux matches the session name exactly
// rather than as a prefix ("scpsl" must not match "scpsl-test").
func exactTarget(sessionName string) string {
	return "=" + sessionName
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// TailLines returns the last n lines of s with tail -n semantics: a
// trailing newline terminates the last line rather than starting a new
// one. s is returned unchanged if it has n or fewer lines.
func TailLines(s string, n int) string {
	if len(s) == 0 || n <= 0 {
		return s
	}
	searchFrom := len(s) - 1
	if s[searchFrom] == '\n' {
		searchFrom--
	}
	count := 0
	for i := searchFrom; i >= 0; i-- {
		if s[i] == '\n' {
			count++
			if count == n {
				return s[i+1:]
			}
		}
	}
	return s
}
