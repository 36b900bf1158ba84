// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/audit"
)

// Audit reasons for confirmations that never ran.
const (
	reasonCancelled = "cancelled"
	reasonExpired   = "confirmation expired"
)

type pendingConfirmation struct {
	token     string
	command   Command
	inv       Invocation
	sequence  uint64
	responder Responder

	// resolved is closed when the prompt is answered, stopping the
	// expiry wait.
	resolved chan struct{}
}

// prompt stores inv and asks its caller to confirm.
func (d *Dispatcher) prompt(ctx context.Context, logger *slog.Logger, command Command, inv Invocation, sequence uint64, responder Responder) {
	pending := &pendingConfirmation{
		token:     uuid.NewString(),
		command:   command,
		inv:       inv,
		sequence:  sequence,
		responder: responder,
		resolved:  make(chan struct{}),
	}
	d.mu.Lock()
	d.pending[pending.token] = pending
	d.mu.Unlock()

	text := command.Prompt
	if strings.Contains(text, "%s") && len(command.Options) > 0 {
		text = fmt.Sprintf(text, echo(inv.Option(command.Options[0].Name)))
	}
	logger.Info("awaiting confirmation", "token", pending.token)
	d.respond(ctx, logger, responder, Reply{
		Kind:      ReplyConfirm,
		Text:      text,
		Ephemeral: command.Ephemeral,
		Confirmation: &Confirmation{
			Token:        pending.token,
			ConfirmLabel: "Confirm",
			CancelLabel:  "Cancel",
		},
	})

	go d.expire(pending, logger)
}

// expire withdraws pending if it is still unanswered after the
// confirmation timeout.
func (d *Dispatcher) expire(pending *pendingConfirmation, logger *slog.Logger) {
	select {
	case <-pending.resolved:
		return
	case <-d.clock.After(d.config.ConfirmTimeout):
	}
	if !d.take(pending.token) {
		return
	}
	logger.Info("confirmation expired", "token", pending.token)
	expired := d.clock.Now()
	d.respond(context.Background(), logger, pending.responder, Reply{
		Kind:      ReplyFailed,
		Text:      "Confirmation expired.",
		Ephemeral: pending.command.Ephemeral,
	})
	d.record(expired, pending.sequence, pending.inv, nil, audit.Outcome{Kind: audit.Failed, Reason: reasonExpired})
}

// take removes token from the pending set, reporting whether it was
// there. Exactly one of Confirm and expire wins a token.
func (d *Dispatcher) take(token string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[token]; !ok {
		return false
	}
	delete(d.pending, token)
	return true
}

// Confirm answers a confirmation prompt. Only the caller who invoked
// the command may answer; anyone else is refused and the prompt stays
// open. Accepting runs the command with the original invocation, after
// authorizing it again.
func (d *Dispatcher) Confirm(ctx context.Context, token, callerID string, accept bool, responder Responder) {
	d.mu.Lock()
	pending, ok := d.pending[token]
	d.mu.Unlock()

	logger := d.logger.With("token", token, "caller_id", callerID)
	if !ok {
		d.respond(ctx, logger, responder, Reply{Kind: ReplyFailed, Text: "This confirmation has expired.", Ephemeral: true})
		return
	}
	if pending.inv.CallerID != callerID {
		logger.Info("confirmation refused for another caller", "owner", pending.inv.CallerID)
		d.respond(ctx, logger, responder, Reply{Kind: ReplyDenied, Text: "This button isn't for you.", Ephemeral: true})
		return
	}
	if !d.take(token) {
		d.respond(ctx, logger, responder, Reply{Kind: ReplyFailed, Text: "This confirmation has expired.", Ephemeral: true})
		return
	}
	close(pending.resolved)
	answered := d.clock.Now()

	inv := pending.inv
	logger = logger.With("command", inv.CommandKey, "sequence", pending.sequence)
	if !accept {
		logger.Info("confirmation cancelled")
		d.respond(ctx, logger, responder, Reply{Kind: ReplyFailed, Text: "Cancelled.", Ephemeral: pending.command.Ephemeral})
		d.record(answered, pending.sequence, inv, nil, audit.Outcome{Kind: audit.Failed, Reason: reasonCancelled})
		return
	}

	result := d.gate.Authorize(inv.CommandKey, inv.Roles)
	if !result.Allowed() {
		d.respond(ctx, logger, responder, deniedReply(result.Reason))
		d.record(answered, pending.sequence, inv, nil, audit.Outcome{Kind: audit.Denied, Reason: result.Reason.String()})
		return
	}
	run, _ := d.handler(inv.CommandKey)
	d.execute(ctx, logger, pending.command, run, inv, pending.sequence, result.MatchedRoles, responder)
}

// Pending returns the number of unanswered confirmation prompts.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
