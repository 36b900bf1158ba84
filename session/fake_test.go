// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// fakeGame is an in-memory game server implementing Backend and Probe.
// By default it binds its port on launch and exits on "exit".
type fakeGame struct {
	mu sync.Mutex

	sessionExists  bool
	processRunning bool
	portBound      bool

	console []string
	sent    []string
	replies map[string]string

	launches int
	kills    int

	// bindAfter is the number of PortBound polls after launch before
	// the port binds; negative never binds.
	bindAfter int
	portPolls int

	ignoreExit  bool
	surviveKill bool

	// sendErr, if set, fails every SendLine.
	sendErr error

	// launchGate, if set, blocks Launch until closed.
	launchGate  chan struct{}
	launchEnter chan struct{}
	launchPanic bool
	launchCtx   context.Context
}

func newFakeGame() *fakeGame {
	return &fakeGame{replies: make(map[string]string)}
}

func (g *fakeGame) running() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionExists = true
	g.processRunning = true
	g.portBound = true
}

func (g *fakeGame) Exists(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionExists, nil
}

func (g *fakeGame) Launch(ctx context.Context) error {
	if g.launchEnter != nil {
		close(g.launchEnter)
	}
	if g.launchGate != nil {
		<-g.launchGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.launchPanic {
		panic("launch exploded")
	}
	g.launchCtx = ctx
	g.launches++
	g.sessionExists = true
	g.processRunning = true
	g.portPolls = 0
	return nil
}

func (g *fakeGame) SendLine(ctx context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, text)
	g.console = append(g.console, "> "+text)
	if text == "exit" && !g.ignoreExit {
		g.sessionExists = false
		g.processRunning = false
		g.portBound = false
	}
	if reply, ok := g.replies[text]; ok {
		g.console = append(g.console, reply)
	}
	return nil
}

func (g *fakeGame) Capture(ctx context.Context, lines int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := 0
	if len(g.console) > lines {
		start = len(g.console) - lines
	}
	return append([]string(nil), g.console[start:]...), nil
}

func (g *fakeGame) Kill(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kills++
	g.sessionExists = false
	if !g.surviveKill {
		g.processRunning = false
		g.portBound = false
	}
	return nil
}

func (g *fakeGame) PortBound(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.processRunning && !g.portBound && g.bindAfter >= 0 {
		if g.portPolls >= g.bindAfter {
			g.portBound = true
		}
		g.portPolls++
	}
	return g.portBound, nil
}

func (g *fakeGame) ProcessRunning(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processRunning, nil
}

func (g *fakeGame) sentLines() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent...)
}

func (g *fakeGame) counts() (launches, kills int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.launches, g.kills
}

// transitionLog records state changes reported by OnTransition.
type transitionLog struct {
	mu     sync.Mutex
	states []State
}

func (l *transitionLog) record(from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *transitionLog) visited() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func (l *transitionLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = nil
}

var epoch = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func newTestController(t *testing.T, game *fakeGame, modify func(*Config)) (*Controller, *clock.FakeClock, *transitionLog) {
	t.Helper()
	fake := clock.Fake(epoch)
	transitions := &transitionLog{}
	config := Config{
		Backend:            game,
		Probe:              game,
		Clock:              fake,
		StartTimeout:       60 * time.Second,
		StopTimeout:        30 * time.Second,
		KillTimeout:        10 * time.Second,
		SoftRestartTimeout: 5 * time.Second,
		VisibilityTimeout:  5 * time.Second,
		ConsoleSettle:      2 * time.Second,
		PollInterval:       time.Second,
		MarkerPollInterval: 200 * time.Millisecond,
		OnTransition:       transitions.record,
	}
	if modify != nil {
		modify(&config)
	}
	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return controller, fake, transitions
}

// runningController returns a controller that has adopted a running
// fake game, with the transition log cleared.
func runningController(t *testing.T, game *fakeGame, modify func(*Config)) (*Controller, *clock.FakeClock, *transitionLog) {
	t.Helper()
	game.running()
	controller, fake, transitions := newTestController(t, game, modify)
	state, err := controller.Reconcile(context.Background())
	if err != nil || state != Running {
		t.Fatalf("Reconcile = %v, %v; want running", state, err)
	}
	transitions.reset()
	return controller, fake, transitions
}
