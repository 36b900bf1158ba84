// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/probe"
	"github.com/wardenhq/warden/logtail"
	"github.com/wardenhq/warden/players"
	"github.com/wardenhq/warden/reboot"
	"github.com/wardenhq/warden/session"
)

const (
	adminRole     = "1083746027162173440"
	moderatorRole = "1083746027162173441"
	strangerRole  = "1083746027162173449"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeController struct {
	mu     sync.Mutex
	status session.Status
	calls  []string

	err          error
	restartLine  string
	consoleLines []string
	visibility   string
	force        bool
	consoleText  string

	// startGate, if set, blocks Start until closed. startEntered is
	// closed when Start begins.
	startGate    chan struct{}
	startEntered chan struct{}
}

func (c *fakeController) call(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.err
}

func (c *fakeController) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeController) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) Start(ctx context.Context) error {
	if c.startEntered != nil {
		close(c.startEntered)
	}
	if c.startGate != nil {
		<-c.startGate
	}
	return c.call("start")
}

func (c *fakeController) Stop(ctx context.Context, force bool) error {
	c.mu.Lock()
	c.force = force
	c.mu.Unlock()
	return c.call("stop")
}

func (c *fakeController) Restart(ctx context.Context, mode session.RestartMode) (string, error) {
	if err := c.call(mode.String() + " restart"); err != nil {
		return "", err
	}
	return c.restartLine, nil
}

func (c *fakeController) RestartRound(ctx context.Context) error {
	return c.call("roundrestart")
}

func (c *fakeController) ScheduleNextRoundRestart(ctx context.Context) error {
	return c.call("restartnextround")
}

func (c *fakeController) InjectConsoleCommand(ctx context.Context, text string) ([]string, error) {
	c.mu.Lock()
	c.consoleText = text
	c.mu.Unlock()
	if err := c.call("console"); err != nil {
		return nil, err
	}
	return c.consoleLines, nil
}

func (c *fakeController) SetVisibility(ctx context.Context, visibility session.Visibility) (string, error) {
	if err := c.call("visibility " + visibility.String()); err != nil {
		return "", err
	}
	return c.visibility, nil
}

type fakeLogs struct{ result logtail.Result }

func (l fakeLogs) Tail(ctx context.Context, maxLines int) logtail.Result {
	result := l.result
	if len(result.Lines) > maxLines {
		result.Lines = result.Lines[len(result.Lines)-maxLines:]
	}
	return result
}

type fakePlayers struct {
	roster players.Roster
	err    error
}

func (p fakePlayers) List(ctx context.Context) (players.Roster, error) {
	return p.roster, p.err
}

type fakeReboot struct {
	mu     sync.Mutex
	err    error
	caller *reboot.Caller
}

func (r *fakeReboot) RebootHost(ctx context.Context, caller reboot.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caller = &caller
	return r.err
}

type fakeHost struct{ stats probe.Stats }

func (h fakeHost) Stats(ctx context.Context) (probe.Stats, error) {
	return h.stats, nil
}

// recordingAuditor keeps records and signals each one on recorded.
type recordingAuditor struct {
	sequence atomic.Uint64
	mu       sync.Mutex
	records  []audit.Record
	recorded chan audit.Record
}

func newRecordingAuditor() *recordingAuditor {
	return &recordingAuditor{recorded: make(chan audit.Record, 64)}
}

func (a *recordingAuditor) NextSequence() uint64 { return a.sequence.Add(1) }

func (a *recordingAuditor) Record(record audit.Record) {
	a.mu.Lock()
	a.records = append(a.records, record)
	a.mu.Unlock()
	a.recorded <- record
}

func (a *recordingAuditor) all() []audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Record(nil), a.records...)
}

// recordingResponder keeps what an invocation was told.
type recordingResponder struct {
	mu       sync.Mutex
	progress []string
	replies  []Reply
}

func (r *recordingResponder) Progress(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, text)
	return nil
}

func (r *recordingResponder) Respond(ctx context.Context, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingResponder) last(t *testing.T) Reply {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		t.Fatal("no reply sent")
	}
	return r.replies[len(r.replies)-1]
}

type fixture struct {
	controller *fakeController
	auditor    *recordingAuditor
	reboot     *fakeReboot
	clock      *clock.FakeClock
	config     Config
	dispatcher *Dispatcher
}

// testPermissions grants admin everything and moderator the round
// and status commands.
func testPermissions() authorization.PermissionMap {
	permissions := authorization.PermissionMap{}
	for _, command := range Commands() {
		permissions[command.Key] = []string{adminRole}
	}
	for _, key := range []string{"help", "serverstatus", "roundrestart", "restartnextround", "onlineplayers"} {
		permissions[key] = append(permissions[key], moderatorRole)
	}
	return permissions
}

func allEnabled(string) bool { return true }

func newFixture(t *testing.T, enabled func(string) bool, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		controller: &fakeController{status: session.Status{State: session.Running, Since: epoch}},
		auditor:    newRecordingAuditor(),
		reboot:     &fakeReboot{},
		clock:      clock.Fake(epoch),
	}
	f.config = Config{
		Gate:       authorization.NewGate(Descriptors(enabled), testPermissions()),
		Controller: f.controller,
		Logs:       fakeLogs{},
		Players:    fakePlayers{},
		Reboot:     f.reboot,
		Audit:      f.auditor,
		Port:       7777,
		Clock:      f.clock,
	}
	for _, m := range mutate {
		m(&f.config)
	}
	dispatcher, err := NewDispatcher(f.config)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	f.dispatcher = dispatcher
	return f
}

func invocation(key string, roles ...string) Invocation {
	return Invocation{CommandKey: key, CallerID: "42", CallerName: "operator", Roles: roles}
}

func (f *fixture) dispatch(inv Invocation) *recordingResponder {
	responder := &recordingResponder{}
	f.dispatcher.Dispatch(context.Background(), inv, responder)
	return responder
}
