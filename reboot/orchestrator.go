// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package reboot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/watchdog"
	"github.com/wardenhq/warden/session"
)

// CommandKey is the command a reboot is authorized as.
const CommandKey = "systemreboot"

// ErrRebootAborted means the game server could not be confirmed
// stopped, so the host was not rebooted.
var ErrRebootAborted = errors.New("reboot aborted: server not confirmed stopped")

// Controller is the part of the session controller a reboot needs.
type Controller interface {
	Status() session.Status
	Stop(ctx context.Context, force bool) error
	WhileStopped(ctx context.Context, fn func(ctx context.Context) error) error
}

// Caller identifies who asked for the reboot.
type Caller struct {
	ID    string
	Name  string
	Roles []string
}

// Config configures an Orchestrator.
type Config struct {
	Gate       *authorization.Gate
	Controller Controller
	Rebooter   Rebooter

	// Method names the rebooter in the marker ("command", "syscall").
	Method string

	// MarkerPath is where the reboot marker is written. Empty skips
	// the marker.
	MarkerPath string

	// StopTimeout bounds the whole stop phase, escalation included.
	StopTimeout time.Duration

	// BeforeReboot runs after the marker is written and before the
	// rebooter. Its error is logged and does not abort.
	BeforeReboot func(ctx context.Context) error

	Clock  clock.Clock
	Logger *slog.Logger
}

// Orchestrator performs stop-then-reboot.
type Orchestrator struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger
}

// NewOrchestrator returns an Orchestrator.
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.Controller == nil {
		return nil, errors.New("reboot: Controller is required")
	}
	if config.Rebooter == nil {
		return nil, errors.New("reboot: Rebooter is required")
	}
	if config.StopTimeout <= 0 {
		return nil, errors.New("reboot: StopTimeout must be positive")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Orchestrator{config: config, clock: config.Clock, logger: config.Logger}, nil
}

// RebootHost stops the game server if it is running and reboots the
// host. It returns ErrRebootAborted, logged at error level, when the
// server cannot be confirmed stopped; the rebooter is then never
// called. Authorization is checked again here so no path reaches the
// rebooter without it.
func (o *Orchestrator) RebootHost(ctx context.Context, caller Caller) error {
	if _, err := o.config.Gate.Check(CommandKey, caller.Roles); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	switch state := o.config.Controller.Status().State; state {
	case session.Stopped:
	case session.Running:
		if err := o.stop(ctx); err != nil {
			return o.abort(caller, err)
		}
	default:
		return &session.StateError{
			Op:      "reboot",
			State:   state,
			Allowed: []session.State{session.Running, session.Stopped},
		}
	}

	err := o.config.Controller.WhileStopped(ctx, func(ctx context.Context) error {
		return o.reboot(ctx, caller)
	})
	var rebootErr *rebootError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rebootErr):
		return rebootErr.err
	default:
		return o.abort(caller, err)
	}
}

// stop runs a graceful stop bounded by StopTimeout. The stop keeps
// running after a timeout; the reboot does not wait for it.
func (o *Orchestrator) stop(ctx context.Context) error {
	o.logger.Info("stopping server before host reboot", "timeout", o.config.StopTimeout)
	done := make(chan error, 1)
	go func() { done <- o.config.Controller.Stop(ctx, false) }()

	select {
	case err := <-done:
		return err
	case <-o.clock.After(o.config.StopTimeout):
		return fmt.Errorf("stop did not finish within %s", o.config.StopTimeout)
	}
}

func (o *Orchestrator) abort(caller Caller, cause error) error {
	err := fmt.Errorf("%w: %w", ErrRebootAborted, cause)
	o.logger.Error("host reboot aborted",
		"error", err,
		"caller_id", caller.ID,
		"caller_name", caller.Name,
	)
	return err
}

// rebootError distinguishes a failed reboot action from a failed
// precondition inside WhileStopped.
type rebootError struct{ err error }

func (e *rebootError) Error() string { return e.err.Error() }
func (e *rebootError) Unwrap() error { return e.err }

func (o *Orchestrator) reboot(ctx context.Context, caller Caller) error {
	if o.config.MarkerPath != "" {
		marker := watchdog.Marker{
			CallerID:   caller.ID,
			CallerName: caller.Name,
			Method:     o.config.Method,
			Timestamp:  o.clock.Now(),
		}
		if err := watchdog.Write(o.config.MarkerPath, marker); err != nil {
			o.logger.Warn("writing reboot marker", "error", err)
		}
	}
	if o.config.BeforeReboot != nil {
		if err := o.config.BeforeReboot(ctx); err != nil {
			o.logger.Warn("pre-reboot hook failed", "error", err)
		}
	}

	o.logger.Warn("rebooting host", "caller_id", caller.ID, "caller_name", caller.Name, "method", o.config.Method)
	if err := o.config.Rebooter.Reboot(ctx); err != nil {
		if o.config.MarkerPath != "" {
			if clearErr := watchdog.Clear(o.config.MarkerPath); clearErr != nil {
				o.logger.Warn("clearing reboot marker", "error", clearErr)
			}
		}
		o.logger.Error("host reboot failed", "error", err)
		return &rebootError{fmt.Errorf("rebooting host: %w", err)}
	}
	return nil
}
