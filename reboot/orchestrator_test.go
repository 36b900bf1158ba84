// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package reboot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/testutil"
	"github.com/wardenhq/warden/lib/watchdog"
	"github.com/wardenhq/warden/session"
)

const adminRole = "900000000000000001"

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	stopErr  error
	stopHang chan struct{}
	whileErr error
	stops    int
	events   *[]string
}

func (c *fakeController) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session.Status{State: c.state}
}

func (c *fakeController) Stop(ctx context.Context, force bool) error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	if c.stopHang != nil {
		<-c.stopHang
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopErr != nil {
		return c.stopErr
	}
	c.state = session.Stopped
	*c.events = append(*c.events, "stop")
	return nil
}

func (c *fakeController) WhileStopped(ctx context.Context, fn func(context.Context) error) error {
	if c.whileErr != nil {
		return c.whileErr
	}
	if c.Status().State != session.Stopped {
		return &session.StateError{Op: "proceed", State: c.Status().State, Allowed: []session.State{session.Stopped}}
	}
	return fn(ctx)
}

type fakeRebooter struct {
	err    error
	calls  int
	events *[]string
}

func (r *fakeRebooter) Reboot(ctx context.Context) error {
	r.calls++
	*r.events = append(*r.events, "reboot")
	return r.err
}

type fixture struct {
	controller   *fakeController
	rebooter     *fakeRebooter
	orchestrator *Orchestrator
	clock        *clock.FakeClock
	markerPath   string
	events       []string
}

func newFixture(t *testing.T, state session.State) *fixture {
	t.Helper()
	f := &fixture{
		clock:      clock.Fake(time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)),
		markerPath: filepath.Join(t.TempDir(), "reboot.json"),
	}
	f.controller = &fakeController{state: state, events: &f.events}
	f.rebooter = &fakeRebooter{events: &f.events}
	gate := authorization.NewGate(
		[]authorization.Descriptor{{Key: CommandKey, Enabled: true}},
		authorization.PermissionMap{CommandKey: {adminRole}},
	)
	orchestrator, err := NewOrchestrator(Config{
		Gate:        gate,
		Controller:  f.controller,
		Rebooter:    f.rebooter,
		Method:      "command",
		MarkerPath:  f.markerPath,
		StopTimeout: 90 * time.Second,
		BeforeReboot: func(ctx context.Context) error {
			f.events = append(f.events, "presence")
			return nil
		},
		Clock: f.clock,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	f.orchestrator = orchestrator
	return f
}

var admin = Caller{ID: "42", Name: "operator", Roles: []string{adminRole}}

func TestRebootStopsRunningServerFirst(t *testing.T) {
	f := newFixture(t, session.Running)
	if err := f.orchestrator.RebootHost(context.Background(), admin); err != nil {
		t.Fatalf("RebootHost: %v", err)
	}
	want := []string{"stop", "presence", "reboot"}
	if len(f.events) != len(want) {
		t.Fatalf("events = %v, want %v", f.events, want)
	}
	for i := range want {
		if f.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", f.events, want)
		}
	}
	marker, err := watchdog.Read(f.markerPath)
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if marker.CallerID != "42" || marker.Method != "command" || !marker.Timestamp.Equal(f.clock.Now()) {
		t.Fatalf("marker = %+v", marker)
	}
}

func TestRebootFromStoppedSkipsStop(t *testing.T) {
	f := newFixture(t, session.Stopped)
	if err := f.orchestrator.RebootHost(context.Background(), admin); err != nil {
		t.Fatalf("RebootHost: %v", err)
	}
	if f.controller.stops != 0 || f.rebooter.calls != 1 {
		t.Fatalf("stops = %d, reboots = %d", f.controller.stops, f.rebooter.calls)
	}
}

func TestRebootRequiresAuthorization(t *testing.T) {
	f := newFixture(t, session.Running)
	err := f.orchestrator.RebootHost(context.Background(), Caller{ID: "7", Roles: []string{"123"}})
	if !errors.Is(err, authorization.ErrDenied) {
		t.Fatalf("RebootHost error = %v, want ErrDenied", err)
	}
	if f.controller.stops != 0 || f.rebooter.calls != 0 {
		t.Fatal("unauthorized caller reached stop or reboot")
	}
}

func TestRebootAbortedWhenStopFails(t *testing.T) {
	f := newFixture(t, session.Running)
	f.controller.stopErr = session.ErrStopTimeout

	err := f.orchestrator.RebootHost(context.Background(), admin)
	if !errors.Is(err, ErrRebootAborted) || !errors.Is(err, session.ErrStopTimeout) {
		t.Fatalf("RebootHost error = %v", err)
	}
	if f.rebooter.calls != 0 {
		t.Fatal("rebooter invoked after a failed stop")
	}
	if _, err := os.Stat(f.markerPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("marker written after abort: %v", err)
	}
}

func TestRebootAbortedWhenStopHangs(t *testing.T) {
	f := newFixture(t, session.Running)
	f.controller.stopHang = make(chan struct{})
	defer close(f.controller.stopHang)
	f.controller.stopErr = session.ErrStopTimeout

	done := make(chan error, 1)
	go func() { done <- f.orchestrator.RebootHost(context.Background(), admin) }()

	err := testutil.AdvanceUntil(t, f.clock, 30*time.Second, done)
	if !errors.Is(err, ErrRebootAborted) {
		t.Fatalf("RebootHost error = %v, want ErrRebootAborted", err)
	}
	if f.rebooter.calls != 0 {
		t.Fatal("rebooter invoked after stop timeout")
	}
}

func TestRebootAbortedWhenProcessSurvives(t *testing.T) {
	f := newFixture(t, session.Stopped)
	f.controller.whileErr = session.ErrProcessRunning

	err := f.orchestrator.RebootHost(context.Background(), admin)
	if !errors.Is(err, ErrRebootAborted) || !errors.Is(err, session.ErrProcessRunning) {
		t.Fatalf("RebootHost error = %v", err)
	}
	if f.rebooter.calls != 0 {
		t.Fatal("rebooter invoked with a live process")
	}
}

func TestRebootRejectsTransitionalState(t *testing.T) {
	f := newFixture(t, session.Starting)
	err := f.orchestrator.RebootHost(context.Background(), admin)
	if !errors.Is(err, session.ErrInvalidState) {
		t.Fatalf("RebootHost error = %v, want ErrInvalidState", err)
	}
	if f.rebooter.calls != 0 || f.controller.stops != 0 {
		t.Fatal("transitional state reached stop or reboot")
	}
}

func TestRebootFailureClearsMarker(t *testing.T) {
	f := newFixture(t, session.Stopped)
	f.rebooter.err = errors.New("permission denied")

	err := f.orchestrator.RebootHost(context.Background(), admin)
	if err == nil || errors.Is(err, ErrRebootAborted) {
		t.Fatalf("RebootHost error = %v, want a reboot failure", err)
	}
	if _, err := os.Stat(f.markerPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("marker left after failed reboot: %v", err)
	}
}

func TestCommandRebooter(t *testing.T) {
	if err := (CommandRebooter{Argv: []string{"true"}}).Reboot(context.Background()); err != nil {
		t.Fatalf("true: %v", err)
	}
	if err := (CommandRebooter{Argv: []string{"false"}}).Reboot(context.Background()); err == nil {
		t.Fatal("false succeeded")
	}
}
