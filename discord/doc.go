// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package discord connects warden to Discord.
//
// [Gateway] holds the websocket session: it identifies, keeps the
// heartbeat, reconnects with backoff, delivers dispatch events and
// sends presence updates. [Client] is the REST side: command
// registration, interaction callbacks, edits of the original response
// and follow-up messages with file attachments. [Bot] joins the two
// to a [dispatch.Dispatcher], turning slash commands into invocations
// and confirm or cancel button clicks into confirmations.
//
// Only the small subset of the Discord API that warden uses is
// modelled here.
package discord
