// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns command invocations into authorized
// operations, replies and audit records.
//
// Every invocation takes the same path through [Dispatcher.Dispatch]:
// the permission gate is consulted first and a denial is answered and
// audited without touching the server. Allowed commands run against
// the session controller, log retriever, player lister or reboot
// orchestrator; the result is translated into a classified [Reply]
// for the caller and an [audit.Record] for the audit trail.
//
// Destructive commands (console, systemreboot) first answer with a
// confirmation prompt. Only the invoking caller can accept or cancel
// it, through [Dispatcher.Confirm], and an unanswered prompt expires.
//
// Transports (the Discord bot, the local control socket) adapt their
// requests to [Invocation] and their reply channel to [Responder].
package dispatch
