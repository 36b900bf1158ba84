// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the local operator socket: a CBOR
// request-response protocol on a Unix socket, one request per
// connection.
//
// A request is a CBOR map with an "action" field plus action-specific
// fields. The response envelope is {ok, error, data}. [Server] routes
// requests to registered [ActionFunc] handlers and exposes the
// connecting process's credentials through [PeerFromContext]; [Client]
// is the matching caller used by wardenctl.
//
// The request and reply shapes for warden's actions (status, invoke,
// confirm) are defined in protocol.go so both ends share them.
package control
