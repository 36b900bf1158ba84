// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy means another operation holds the lifecycle lock.
	ErrBusy = errors.New("another server operation is in progress")

	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("operation not valid in the current state")

	// ErrStartTimeout means the game port was not bound in time.
	ErrStartTimeout = errors.New("server did not become ready in time")

	// ErrStopTimeout means process exit could not be confirmed.
	ErrStopTimeout = errors.New("server did not exit in time")

	// ErrRestartTimeout means the soft-restart marker never appeared.
	ErrRestartTimeout = errors.New("no soft restart confirmation from server")

	// ErrVisibilityTimeout means the visibility confirmation never
	// appeared.
	ErrVisibilityTimeout = errors.New("no visibility confirmation from server")

	// ErrNotVerified means the server is not verified, so it cannot be
	// listed or delisted.
	ErrNotVerified = errors.New("server is not verified")

	// ErrSessionNotRunning means an in-game command was sent while the
	// server is not running.
	ErrSessionNotRunning = errors.New("server is not running")

	// ErrProcessRunning means a game process exists although the
	// controller believes the server is stopped.
	ErrProcessRunning = errors.New("game process is still running")

	// ErrInvalidConsoleText rejects empty or multi-line console input.
	ErrInvalidConsoleText = errors.New("console command must be a single non-empty line")
)

// StateError reports an operation attempted from a state that does not
// allow it.
type StateError struct {
	Op      string
	State   State
	Allowed []State
}

func (e *StateError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, state := range e.Allowed {
		allowed[i] = state.String()
	}
	return fmt.Sprintf("cannot %s while server is %s (requires %s)",
		e.Op, e.State, strings.Join(allowed, " or "))
}

// Is matches ErrInvalidState.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
