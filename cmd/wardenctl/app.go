// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/wardenhq/warden/lib/control"
)

// Exit codes for outcomes that are reported on stderr.
const (
	exitFailed = 1
	exitDenied = 3
	exitBusy   = 4
)

// Reply kinds on the control wire.
const (
	kindSuccess = "success"
	kindInfo    = "info"
	kindDenied  = "denied"
	kindBusy    = "busy"
	kindFailed  = "failed"
	kindConfirm = "confirm"
)

var errConfirmationRequired = errors.New("confirmation required: rerun with --yes or from a terminal")

// app holds the I/O and connection settings shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	// interactive reports whether stdin is a terminal the operator can
	// answer a prompt on.
	interactive func() bool

	now    func() time.Time
	socket string
}

func newApp() *app {
	return &app{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		stdin:       os.Stdin,
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		now:         time.Now,
		socket:      defaultSocket(os.Getenv),
	}
}

// defaultSocket mirrors the daemon's default control.socket.
func defaultSocket(getenv func(string) string) string {
	if socket := getenv("WARDEN_SOCKET"); socket != "" {
		return socket
	}
	return filepath.Join(getenv("HOME"), ".local", "state", "warden", "control.sock")
}

// flags returns a flag set carrying the shared --socket flag.
func (a *app) flags(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&a.socket, "socket", a.socket, "warden control socket (default $WARDEN_SOCKET)")
	return flagSet
}

func (a *app) client() *control.Client {
	return control.NewClient(a.socket)
}

func (a *app) status(ctx context.Context) (control.StatusResponse, error) {
	var status control.StatusResponse
	err := a.client().Call(ctx, control.ActionStatus, control.StatusRequest{Action: control.ActionStatus}, &status)
	return status, err
}

// invoke runs command and settles any confirmation prompt it returns.
// The final reply is returned unprinted.
func (a *app) invoke(ctx context.Context, command string, options map[string]string, assumeYes bool) (control.Reply, error) {
	request := control.InvokeRequest{Action: control.ActionInvoke, Command: command, Options: options}
	var reply control.Reply
	if err := a.client().Call(ctx, control.ActionInvoke, request, &reply); err != nil {
		return control.Reply{}, err
	}
	if reply.Kind != kindConfirm {
		return reply, nil
	}

	fmt.Fprintln(a.stderr, reply.Text)
	accept, err := a.confirm(assumeYes)
	if err != nil {
		// Withdraw the pending command rather than leave it to expire.
		a.answer(ctx, reply.ConfirmToken, false)
		return control.Reply{}, err
	}
	return a.answer(ctx, reply.ConfirmToken, accept)
}

func (a *app) answer(ctx context.Context, token string, accept bool) (control.Reply, error) {
	request := control.ConfirmRequest{Action: control.ActionConfirm, Token: token, Accept: accept}
	var reply control.Reply
	if err := a.client().Call(ctx, control.ActionConfirm, request, &reply); err != nil {
		return control.Reply{}, err
	}
	return reply, nil
}

// confirm asks the operator on the terminal unless assumeYes is set.
func (a *app) confirm(assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !a.interactive() {
		return false, errConfirmationRequired
	}
	fmt.Fprint(a.stderr, "Proceed? [y/N] ")
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// report prints reply and converts unsuccessful kinds to an ExitError.
func (a *app) report(reply control.Reply) error {
	if reply.Progress != "" {
		fmt.Fprintln(a.stderr, reply.Progress)
	}
	switch reply.Kind {
	case kindSuccess, kindInfo:
		if reply.Text != "" {
			fmt.Fprintln(a.stdout, reply.Text)
		}
		return nil
	case kindDenied:
		fmt.Fprintln(a.stderr, reply.Text)
		return &ExitError{Code: exitDenied}
	case kindBusy:
		fmt.Fprintln(a.stderr, reply.Text)
		return &ExitError{Code: exitBusy}
	default:
		fmt.Fprintln(a.stderr, reply.Text)
		return &ExitError{Code: exitFailed}
	}
}

// saveAttachment writes the reply's attachment to path, or notes its
// presence when path is empty.
func (a *app) saveAttachment(reply control.Reply, path string) error {
	if reply.Attachment == nil {
		return nil
	}
	if path == "" {
		fmt.Fprintf(a.stderr, "Full output in %s (%d bytes); use --output to save it.\n",
			reply.Attachment.Name, len(reply.Attachment.Content))
		return nil
	}
	if err := os.WriteFile(path, reply.Attachment.Content, 0o644); err != nil {
		return fmt.Errorf("saving %s: %w", reply.Attachment.Name, err)
	}
	fmt.Fprintf(a.stderr, "Saved %s to %s.\n", reply.Attachment.Name, path)
	return nil
}

// tailLines returns the last n lines of text, or all of it when n <= 0.
func tailLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if n <= 0 || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
