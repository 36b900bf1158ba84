// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "time"

// Actions served by warden.
const (
	ActionStatus  = "status"
	ActionInvoke  = "invoke"
	ActionConfirm = "confirm"
)

// StatusRequest asks for a snapshot of the server state. It needs no
// permission.
type StatusRequest struct {
	Action string `cbor:"action"`
}

// StatusResponse is the server state snapshot.
type StatusResponse struct {
	State            string    `cbor:"state"`
	Since            time.Time `cbor:"since"`
	Visibility       string    `cbor:"visibility"`
	Verified         bool      `cbor:"verified"`
	NextRoundRestart bool      `cbor:"next_round_restart"`
	Busy             bool      `cbor:"busy"`
	Version          string    `cbor:"version"`

	// Commands are the command keys the caller may invoke.
	Commands []string `cbor:"commands,omitempty"`
}

// InvokeRequest runs a command as the connecting user.
type InvokeRequest struct {
	Action  string            `cbor:"action"`
	Command string            `cbor:"command"`
	Options map[string]string `cbor:"options,omitempty"`
}

// ConfirmRequest answers a confirmation prompt returned by invoke.
type ConfirmRequest struct {
	Action string `cbor:"action"`
	Token  string `cbor:"token"`
	Accept bool   `cbor:"accept"`
}

// Attachment is a file carried by a reply.
type Attachment struct {
	Name    string `cbor:"name"`
	Content []byte `cbor:"content"`
}

// Reply is the outcome of invoke or confirm.
type Reply struct {
	// Kind is the reply class: success, info, denied, busy, failed or
	// confirm.
	Kind string `cbor:"kind"`
	Text string `cbor:"text"`

	// Progress is the interim message sent before a long operation.
	Progress string `cbor:"progress,omitempty"`

	Attachment *Attachment `cbor:"attachment,omitempty"`

	// ConfirmToken is set when Kind is "confirm".
	ConfirmToken string `cbor:"confirm_token,omitempty"`
}
