// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// Backend is the persistent session hosting the game process.
type Backend interface {
	// Exists reports whether the session exists.
	Exists(ctx context.Context) (bool, error)

	// Launch creates the session running the game server.
	Launch(ctx context.Context) error

	// SendLine types one console line followed by Enter.
	SendLine(ctx context.Context, text string) error

	// Capture returns up to the last lines lines of console output,
	// oldest first.
	Capture(ctx context.Context, lines int) ([]string, error)

	// Kill destroys the session and the processes in it. Killing a
	// missing session is not an error.
	Kill(ctx context.Context) error
}

// Probe observes the game server from the host.
type Probe interface {
	// PortBound reports whether the game port is bound.
	PortBound(ctx context.Context) (bool, error)

	// ProcessRunning reports whether a game process exists.
	ProcessRunning(ctx context.Context) (bool, error)
}

// Console lines the controller waits for.
const (
	softRestartMarker = "Server will softly restart"
	privateTag        = "[private]"
	privateMarker     = "hidden from the server list."
	publicTag         = "[public]"
	publicMarker      = "visible on the server list."
)

// leadingTimestamp matches the "[12:00:00] " prefix of console lines.
var leadingTimestamp = regexp.MustCompile(`^\[.*?\]\s*`)

// StripTimestamp removes a leading bracketed timestamp from a console
// line.
func StripTimestamp(line string) string {
	return leadingTimestamp.ReplaceAllString(line, "")
}

// Config configures a Controller.
type Config struct {
	Backend Backend
	Probe   Probe

	// Clock measures every timeout. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives transition and escalation logs. Nil uses
	// slog.Default().
	Logger *slog.Logger

	StartTimeout       time.Duration
	StopTimeout        time.Duration
	KillTimeout        time.Duration
	SoftRestartTimeout time.Duration
	VisibilityTimeout  time.Duration

	// ConsoleSettle is how long console output is collected after a
	// raw console command.
	ConsoleSettle time.Duration

	// PollInterval paces readiness and exit checks.
	PollInterval time.Duration

	// MarkerPollInterval paces console marker checks.
	MarkerPollInterval time.Duration

	// CaptureLines is the scrollback window compared before and after
	// a console command. Defaults to 1000.
	CaptureLines int

	Escalation Escalation

	// Verified seeds the verified flag.
	Verified bool

	// OnTransition, if set, is called after every state change, outside
	// the controller's locks.
	OnTransition func(from, to State)
}

// Controller serializes lifecycle operations on the game server. All
// methods are safe for concurrent use.
type Controller struct {
	backend Backend
	probe   Probe
	clock   clock.Clock
	logger  *slog.Logger
	config  Config

	// lock is the lifecycle lock: a one-slot semaphore acquired without
	// waiting.
	lock chan struct{}

	mu               sync.Mutex
	state            State
	since            time.Time
	visibility       Visibility
	verified         bool
	nextRoundRestart bool
}

// NewController returns a Controller in state Stopped. Call
// [Controller.Reconcile] to adopt a server that is already running.
func NewController(config Config) (*Controller, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	if config.Probe == nil {
		return nil, fmt.Errorf("session probe is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.CaptureLines <= 0 {
		config.CaptureLines = 1000
	}
	for name, value := range map[string]time.Duration{
		"start timeout":        config.StartTimeout,
		"stop timeout":         config.StopTimeout,
		"kill timeout":         config.KillTimeout,
		"soft restart timeout": config.SoftRestartTimeout,
		"visibility timeout":   config.VisibilityTimeout,
		"poll interval":        config.PollInterval,
		"marker poll interval": config.MarkerPollInterval,
	} {
		if value <= 0 {
			return nil, fmt.Errorf("session %s must be positive", name)
		}
	}
	return &Controller{
		backend:  config.Backend,
		probe:    config.Probe,
		clock:    config.Clock,
		logger:   config.Logger,
		config:   config,
		lock:     make(chan struct{}, 1),
		state:    Stopped,
		since:    config.Clock.Now(),
		verified: config.Verified,
	}, nil
}

// Status returns a snapshot of the controller. It never blocks on the
// lifecycle lock.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:            c.state,
		Since:            c.since,
		Visibility:       c.visibility,
		Verified:         c.verified,
		NextRoundRestart: c.nextRoundRestart,
		Busy:             len(c.lock) > 0,
	}
}

// SetVerified records the externally asserted verified flag.
func (c *Controller) SetVerified(verified bool) {
	c.mu.Lock()
	c.verified = verified
	c.mu.Unlock()
}

func (c *Controller) acquire() bool {
	select {
	case c.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Controller) release() {
	<-c.lock
}

func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves to state to. Any transition clears a pending
// next-round restart.
func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.since = c.clock.Now()
	c.nextRoundRestart = false
	if to != Running {
		c.visibility = VisibilityUnknown
	}
	c.mu.Unlock()

	if from == to {
		return
	}
	c.logger.Info("server state changed", "from", from, "to", to)
	if c.config.OnTransition != nil {
		c.config.OnTransition(from, to)
	}
}

func requireState(op string, current State, allowed ...State) error {
	for _, state := range allowed {
		if current == state {
			return nil
		}
	}
	return &StateError{Op: op, State: current, Allowed: allowed}
}

// Reconcile probes the host and adopts a server that is already
// running. It returns the resulting state.
func (c *Controller) Reconcile(ctx context.Context) (State, error) {
	if !c.acquire() {
		return c.currentState(), ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	running, err := c.probe.ProcessRunning(ctx)
	if err != nil {
		return c.currentState(), fmt.Errorf("probing game process: %w", err)
	}
	exists, err := c.backend.Exists(ctx)
	if err != nil {
		return c.currentState(), fmt.Errorf("checking session: %w", err)
	}

	switch {
	case running:
		if !exists {
			c.logger.Warn("game process is running outside the managed session; console commands will not reach it")
		}
		c.transition(Running)
	case exists:
		c.logger.Warn("session exists without a game process; it will be replaced on start")
		c.transition(Stopped)
	default:
		c.transition(Stopped)
	}
	return c.currentState(), nil
}

// Start launches the game server and waits for its port. Valid only
// from Stopped.
func (c *Controller) Start(ctx context.Context) error {
	if !c.acquire() {
		return ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	if err := requireState("start", c.currentState(), Stopped); err != nil {
		return err
	}
	return c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	running, err := c.probe.ProcessRunning(ctx)
	if err != nil {
		return fmt.Errorf("probing game process: %w", err)
	}
	if running {
		c.logger.Warn("start requested but a game process is already running; adopting it")
		c.transition(Running)
		return &StateError{Op: "start", State: Running, Allowed: []State{Stopped}}
	}

	c.transition(Starting)

	if exists, err := c.backend.Exists(ctx); err == nil && exists {
		c.logger.Info("removing stale session before start")
		if err := c.backend.Kill(ctx); err != nil {
			c.logger.Warn("removing stale session failed", "error", err)
		}
	}

	if err := c.backend.Launch(ctx); err != nil {
		c.transition(Stopped)
		return fmt.Errorf("launching server: %w", err)
	}

	if !c.waitFor(ctx, "port bound", c.config.StartTimeout, c.config.PollInterval, c.probe.PortBound) {
		c.logger.Warn("server did not bind its port in time; killing the session",
			"timeout", c.config.StartTimeout)
		if err := c.backend.Kill(ctx); err != nil {
			c.logger.Error("killing half-started session failed", "error", err)
		}
		c.transition(Stopped)
		return fmt.Errorf("%w (port not bound after %s)", ErrStartTimeout, c.config.StartTimeout)
	}

	c.transition(Running)
	return nil
}

// Stop stops the game server. A graceful stop sends "exit" and waits
// for the process to leave; force kills the session at once. Valid from
// Running or Restarting, and with force also from Stopping.
func (c *Controller) Stop(ctx context.Context, force bool) error {
	if !c.acquire() {
		return ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	allowed := []State{Running, Restarting}
	if force {
		allowed = append(allowed, Stopping)
	}
	if err := requireState("stop", c.currentState(), allowed...); err != nil {
		return err
	}
	return c.stopLocked(ctx, force, Stopped)
}

// stopLocked stops the server and moves to next (Stopped, or Starting
// when a hard restart continues) once exit is confirmed.
func (c *Controller) stopLocked(ctx context.Context, force bool, next State) error {
	c.transition(Stopping)

	if !force {
		sendErr := c.backend.SendLine(ctx, "exit")
		if sendErr != nil {
			c.logger.Warn("sending exit failed", "error", sendErr)
		} else if c.waitFor(ctx, "process exit", c.config.StopTimeout, c.config.PollInterval, c.exited) {
			// LocalAdmin may leave the session shell behind.
			if err := c.backend.Kill(ctx); err != nil {
				c.logger.Warn("removing session after exit failed", "error", err)
			}
			c.transition(next)
			return nil
		}

		switch {
		case c.config.Escalation == EscalateManual && sendErr != nil:
			return fmt.Errorf("sending exit: %w (server left stopping; use a forced stop)", sendErr)
		case c.config.Escalation == EscalateManual:
			c.logger.Warn("graceful stop timed out; leaving server stopping for manual intervention",
				"timeout", c.config.StopTimeout)
			return fmt.Errorf("%w (graceful exit not confirmed after %s; use a forced stop)",
				ErrStopTimeout, c.config.StopTimeout)
		case sendErr != nil:
			c.logger.Warn("graceful stop impossible; killing the session")
		default:
			c.logger.Warn("graceful stop timed out; killing the session", "timeout", c.config.StopTimeout)
		}
	}

	if err := c.backend.Kill(ctx); err != nil {
		c.logger.Error("killing session failed", "error", err)
	}
	if !c.waitFor(ctx, "process exit after kill", c.config.KillTimeout, c.config.PollInterval, c.exited) {
		c.logger.Error("game process survived the kill; server left stopping", "timeout", c.config.KillTimeout)
		return fmt.Errorf("%w (process still present %s after kill)", ErrStopTimeout, c.config.KillTimeout)
	}
	c.transition(next)
	return nil
}

// exited reports whether the game process is gone and its port free.
func (c *Controller) exited(ctx context.Context) (bool, error) {
	running, err := c.probe.ProcessRunning(ctx)
	if err != nil || running {
		return false, err
	}
	bound, err := c.probe.PortBound(ctx)
	if err != nil {
		return false, err
	}
	return !bound, nil
}

// Restart restarts the game server. Soft sends "softrestart" and waits
// for the server's confirmation without leaving the process; it returns
// the confirmation line. Hard stops gracefully and starts again under a
// single lock hold; a failed stop aborts before the start. Valid only
// from Running.
func (c *Controller) Restart(ctx context.Context, mode RestartMode) (string, error) {
	if !c.acquire() {
		return "", ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	if err := requireState(mode.String()+" restart", c.currentState(), Running); err != nil {
		return "", err
	}

	if mode == Hard {
		if err := c.stopLocked(ctx, false, Starting); err != nil {
			return "", fmt.Errorf("restart aborted during stop: %w", err)
		}
		if err := c.startLocked(ctx); err != nil {
			return "", fmt.Errorf("restart failed during start: %w", err)
		}
		return "", nil
	}

	c.transition(Restarting)
	defer c.transition(Running)

	line, err := c.sendAndWait(ctx, "softrestart", c.config.SoftRestartTimeout, func(line string) bool {
		return strings.Contains(line, softRestartMarker)
	})
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("%w after %s", ErrRestartTimeout, c.config.SoftRestartTimeout)
	}
	return StripTimestamp(line), nil
}

// RestartRound restarts the current round. Valid only while Running.
func (c *Controller) RestartRound(ctx context.Context) error {
	return c.roundCommand(ctx, "roundrestart")
}

// ScheduleNextRoundRestart asks the server to restart when the current
// round ends. The pending flag shows in [Status] until the next state
// transition.
func (c *Controller) ScheduleNextRoundRestart(ctx context.Context) error {
	if err := c.roundCommand(ctx, "restartnextround"); err != nil {
		return err
	}
	c.mu.Lock()
	c.nextRoundRestart = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) roundCommand(ctx context.Context, command string) error {
	if !c.acquire() {
		return ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	if c.currentState() != Running {
		return ErrSessionNotRunning
	}
	if err := c.backend.SendLine(ctx, command); err != nil {
		return fmt.Errorf("sending %s: %w", command, err)
	}
	return nil
}

// InjectConsoleCommand types text into the game console and returns
// the console lines that appeared within the settle period. Valid only
// while Running.
func (c *Controller) InjectConsoleCommand(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, "\r\n") {
		return nil, ErrInvalidConsoleText
	}
	if !c.acquire() {
		return nil, ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	if c.currentState() != Running {
		return nil, ErrSessionNotRunning
	}

	before, err := c.backend.Capture(ctx, c.config.CaptureLines)
	if err != nil {
		return nil, fmt.Errorf("capturing console: %w", err)
	}
	if err := c.backend.SendLine(ctx, text); err != nil {
		return nil, fmt.Errorf("sending console command: %w", err)
	}
	if c.config.ConsoleSettle > 0 {
		<-c.clock.After(c.config.ConsoleSettle)
	}
	after, err := c.backend.Capture(ctx, c.config.CaptureLines)
	if err != nil {
		return nil, fmt.Errorf("capturing console: %w", err)
	}
	return NewLines(before, after), nil
}

// SetVisibility lists or delists the server. The server must be
// Running and verified. It returns the server's confirmation line.
func (c *Controller) SetVisibility(ctx context.Context, visibility Visibility) (string, error) {
	var tag, marker string
	switch visibility {
	case Private:
		tag, marker = privateTag, privateMarker
	case Public:
		tag, marker = publicTag, publicMarker
	default:
		return "", fmt.Errorf("unsupported visibility %s", visibility)
	}

	if !c.acquire() {
		return "", ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	status := c.Status()
	if status.State != Running {
		return "", ErrSessionNotRunning
	}
	if !status.Verified {
		return "", ErrNotVerified
	}

	line, err := c.sendAndWait(ctx, "!"+visibility.String(), c.config.VisibilityTimeout, func(line string) bool {
		return strings.Contains(line, tag) && strings.Contains(line, marker)
	})
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("%w for %s after %s", ErrVisibilityTimeout, visibility, c.config.VisibilityTimeout)
	}

	c.mu.Lock()
	c.visibility = visibility
	c.mu.Unlock()
	return StripTimestamp(line), nil
}

// sendAndWait sends command and polls the console for a new line
// satisfying match. It returns "" with a nil error on timeout.
func (c *Controller) sendAndWait(ctx context.Context, command string, timeout time.Duration, match func(string) bool) (string, error) {
	before, err := c.backend.Capture(ctx, c.config.CaptureLines)
	if err != nil {
		return "", fmt.Errorf("capturing console: %w", err)
	}
	if err := c.backend.SendLine(ctx, command); err != nil {
		return "", fmt.Errorf("sending %s: %w", command, err)
	}

	var found string
	c.waitFor(ctx, command+" confirmation", timeout, c.config.MarkerPollInterval, func(ctx context.Context) (bool, error) {
		after, err := c.backend.Capture(ctx, c.config.CaptureLines)
		if err != nil {
			return false, err
		}
		for _, line := range NewLines(before, after) {
			if match(line) {
				found = line
				return true, nil
			}
		}
		return false, nil
	})
	return found, nil
}

// WhileStopped runs fn holding the lifecycle lock, after confirming
// the state is Stopped and no game process exists. Nothing can start
// the server while fn runs.
func (c *Controller) WhileStopped(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.acquire() {
		return ErrBusy
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	if err := requireState("proceed", c.currentState(), Stopped); err != nil {
		return err
	}
	running, err := c.probe.ProcessRunning(ctx)
	if err != nil {
		return fmt.Errorf("probing game process: %w", err)
	}
	if running {
		return ErrProcessRunning
	}
	return fn(ctx)
}

// waitFor polls check every interval until it reports true or timeout
// elapses on the controller's clock. Check errors count as "not yet"
// and are logged at debug level.
func (c *Controller) waitFor(ctx context.Context, what string, timeout, interval time.Duration, check func(context.Context) (bool, error)) bool {
	deadline := c.clock.Now().Add(timeout)
	for {
		ok, err := check(ctx)
		if err != nil {
			c.logger.Debug("poll check failed", "waiting_for", what, "error", err)
		}
		if ok && err == nil {
			return true
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return false
		}
		<-c.clock.After(min(interval, remaining))
	}
}
