// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// State is the lifecycle state of the game server.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Restarting
	Stopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Visibility is the server-list visibility of the game server.
type Visibility int

const (
	// VisibilityUnknown means warden has not changed visibility since
	// the server started.
	VisibilityUnknown Visibility = iota
	Private
	Public
)

// String returns "unknown", "private" or "public".
func (v Visibility) String() string {
	switch v {
	case Private:
		return "private"
	case Public:
		return "public"
	default:
		return "unknown"
	}
}

// ParseVisibility parses "private" or "public".
func ParseVisibility(text string) (Visibility, bool) {
	switch text {
	case "private":
		return Private, true
	case "public":
		return Public, true
	default:
		return VisibilityUnknown, false
	}
}

// RestartMode selects a soft or hard restart.
type RestartMode int

const (
	// Soft restarts the game inside the running process.
	Soft RestartMode = iota

	// Hard stops the process and starts a new one.
	Hard
)

// String returns "soft" or "hard".
func (m RestartMode) String() string {
	if m == Hard {
		return "hard"
	}
	return "soft"
}

// Escalation selects what a graceful stop does on timeout.
type Escalation int

const (
	// EscalateKill force-kills the session and waits for exit.
	EscalateKill Escalation = iota

	// EscalateManual returns ErrStopTimeout and leaves state Stopping.
	EscalateManual
)

// Status is a snapshot of the controller.
type Status struct {
	State State

	// Since is when State was entered.
	Since time.Time

	Visibility Visibility
	Verified   bool

	// NextRoundRestart is set by ScheduleNextRoundRestart and cleared by
	// the next state transition.
	NextRoundRestart bool

	// Busy reports whether an operation holds the lifecycle lock.
	Busy bool
}
