// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
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

// Controller is the session controller surface commands use.
type Controller interface {
	Status() session.Status
	Start(ctx context.Context) error
	Stop(ctx context.Context, force bool) error
	Restart(ctx context.Context, mode session.RestartMode) (string, error)
	RestartRound(ctx context.Context) error
	ScheduleNextRoundRestart(ctx context.Context) error
	InjectConsoleCommand(ctx context.Context, text string) ([]string, error)
	SetVisibility(ctx context.Context, visibility session.Visibility) (string, error)
}

// Logs tails console output.
type Logs interface {
	Tail(ctx context.Context, maxLines int) logtail.Result
}

// Players lists online players.
type Players interface {
	List(ctx context.Context) (players.Roster, error)
}

// Rebooter reboots the host after stopping the server.
type Rebooter interface {
	RebootHost(ctx context.Context, caller reboot.Caller) error
}

// Host reports host and game process load.
type Host interface {
	Stats(ctx context.Context) (probe.Stats, error)
}

// Auditor receives one record per invocation.
type Auditor interface {
	NextSequence() uint64
	Record(record audit.Record)
}

// Config configures a Dispatcher.
type Config struct {
	Gate       *authorization.Gate
	Controller Controller
	Logs       Logs
	Players    Players
	Reboot     Rebooter
	Audit      Auditor

	// Host, if set, adds host load to serverstatus.
	Host Host

	// Port is the game port named in replies.
	Port int

	// LogLines is how many lines fetchlogs reads. Zero means 1000.
	LogLines int

	// InlineLimit is the longest reply text. Zero means 2000.
	InlineLimit int

	// AttachmentLimit bounds fetchlogs attachments in characters. Zero
	// means 10000.
	AttachmentLimit int

	// ConfirmTimeout is how long a confirmation prompt is valid. Zero
	// means 60 seconds.
	ConfirmTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Dispatcher authorizes and runs invocations. Dispatch may be called
// concurrently; each invocation runs on the caller's goroutine.
type Dispatcher struct {
	config Config
	gate   *authorization.Gate
	audit  Auditor
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingConfirmation
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if config.Controller == nil {
		return nil, errors.New("dispatch: Controller is required")
	}
	if config.Audit == nil {
		return nil, errors.New("dispatch: Audit is required")
	}
	if config.LogLines <= 0 {
		config.LogLines = 1000
	}
	if config.InlineLimit <= 0 {
		config.InlineLimit = 2000
	}
	if config.AttachmentLimit <= 0 {
		config.AttachmentLimit = 10000
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Dispatcher{
		config:  config,
		gate:    config.Gate,
		audit:   config.Audit,
		clock:   config.Clock,
		logger:  config.Logger,
		pending: make(map[string]*pendingConfirmation),
	}, nil
}

// Dispatch authorizes inv, runs it, replies through responder and
// audits the outcome. Once authorized, the operation runs to
// completion even if ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation, responder Responder) {
	sequence := d.audit.NextSequence()
	logger := d.logger.With("command", inv.CommandKey, "caller_id", inv.CallerID, "sequence", sequence)

	result := d.gate.Authorize(inv.CommandKey, inv.Roles)
	decided := d.clock.Now()
	if !result.Allowed() {
		logger.Info("command denied", "reason", result.Reason.String())
		d.respond(ctx, logger, responder, deniedReply(result.Reason))
		d.record(decided, sequence, inv, nil, audit.Outcome{Kind: audit.Denied, Reason: result.Reason.String()})
		return
	}

	command, known := LookupCommand(inv.CommandKey)
	run, handled := d.handler(inv.CommandKey)
	if !known || !handled {
		logger.Warn("authorized command has no handler")
		d.respond(ctx, logger, responder, Reply{Kind: ReplyFailed, Text: "Unknown command.", Ephemeral: true})
		d.record(decided, sequence, inv, result.MatchedRoles, audit.Outcome{Kind: audit.Failed, Reason: "unknown command"})
		return
	}
	if err := validateOptions(command, inv); err != nil {
		d.respond(ctx, logger, responder, Reply{Kind: ReplyFailed, Text: sentence(err), Ephemeral: true})
		d.record(decided, sequence, inv, result.MatchedRoles, audit.Outcome{Kind: audit.Failed, Reason: err.Error()})
		return
	}

	if command.Confirm {
		d.prompt(ctx, logger, command, inv, sequence, responder)
		return
	}
	d.execute(ctx, logger, command, run, inv, sequence, result.MatchedRoles, responder)
}

// execute runs an authorized command and reports its outcome.
func (d *Dispatcher) execute(ctx context.Context, logger *slog.Logger, command Command, run handler, inv Invocation, sequence uint64, matched []string, responder Responder) {
	ctx = context.WithoutCancel(ctx)
	if command.Progress != "" {
		if err := responder.Progress(ctx, command.Progress); err != nil {
			logger.Warn("sending progress", "error", err)
		}
	}

	logger.Info("running command")
	reply, err := run(ctx, inv)
	finished := d.clock.Now()
	outcome := audit.Outcome{Kind: audit.Success}
	if err != nil {
		reply, outcome = classify(err)
		logger.Warn("command failed", "error", err)
	}
	if command.Ephemeral {
		reply.Ephemeral = true
	}
	d.respond(ctx, logger, responder, reply)
	d.record(finished, sequence, inv, matched, outcome)
}

func (d *Dispatcher) respond(ctx context.Context, logger *slog.Logger, responder Responder, reply Reply) {
	if err := responder.Respond(context.WithoutCancel(ctx), reply); err != nil {
		logger.Warn("sending reply", "error", err, "reply", reply.Kind.String())
	}
}

// record hands the outcome, decided at at, to the audit logger. Roles
// are the roles that granted access, or every caller role when none
// did.
func (d *Dispatcher) record(at time.Time, sequence uint64, inv Invocation, matched []string, outcome audit.Outcome) {
	roles := matched
	if outcome.Kind == audit.Denied || len(roles) == 0 {
		roles = inv.Roles
	}
	d.audit.Record(audit.Record{
		ID:          audit.NewID(),
		Sequence:    sequence,
		Timestamp:   at,
		CallerID:    inv.CallerID,
		CallerName:  inv.CallerName,
		Roles:       append([]string(nil), roles...),
		CommandKey:  inv.CommandKey,
		ArgsSummary: inv.argsSummary(),
		Outcome:     outcome,
	})
}
