// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"sort"

	"github.com/wardenhq/warden/audit"
)

// Invocation is one request to run a command.
type Invocation struct {
	CommandKey string

	CallerID   string
	CallerName string
	Roles      []string

	// Options holds command options by name. Boolean options are
	// "true" or "false".
	Options map[string]string
}

// Option returns the named option value.
func (inv Invocation) Option(name string) string {
	return inv.Options[name]
}

func (inv Invocation) argsSummary() string {
	names := make([]string, 0, len(inv.Options))
	for name := range inv.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, len(names))
	for i, name := range names {
		pairs[i] = [2]string{name, inv.Options[name]}
	}
	return audit.SummarizeArgs(pairs...)
}

// ReplyKind classifies a reply.
type ReplyKind int

const (
	// ReplySuccess reports a completed operation.
	ReplySuccess ReplyKind = iota

	// ReplyInfo carries requested information (help, status, logs).
	ReplyInfo

	// ReplyDenied reports an authorization failure.
	ReplyDenied

	// ReplyBusy reports that another operation holds the server.
	ReplyBusy

	// ReplyFailed reports an operation that ran and failed.
	ReplyFailed

	// ReplyConfirm asks the caller to confirm.
	ReplyConfirm
)

func (k ReplyKind) String() string {
	switch k {
	case ReplySuccess:
		return "success"
	case ReplyInfo:
		return "info"
	case ReplyDenied:
		return "denied"
	case ReplyBusy:
		return "busy"
	case ReplyFailed:
		return "failed"
	case ReplyConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Attachment is a text file sent with a reply.
type Attachment struct {
	Name    string
	Content []byte
}

// Confirmation is the prompt carried by a ReplyConfirm.
type Confirmation struct {
	// Token identifies the pending command in [Dispatcher.Confirm].
	Token string

	ConfirmLabel string
	CancelLabel  string
}

// Reply is what the caller is told.
type Reply struct {
	Kind ReplyKind
	Text string

	// Ephemeral replies are shown only to the caller where the
	// transport supports it.
	Ephemeral bool

	Attachment   *Attachment
	Confirmation *Confirmation
}

// Responder delivers replies for one invocation.
type Responder interface {
	// Progress reports that a long operation has begun. It may be
	// called at most once, before Respond.
	Progress(ctx context.Context, text string) error

	// Respond delivers the reply. A later call replaces the earlier
	// reply, which is how an expired confirmation prompt is withdrawn.
	Respond(ctx context.Context, reply Reply) error
}
