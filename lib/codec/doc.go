// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used on the warden control socket.
//
// Every producer and consumer of control-socket messages goes through
// this package so that the encoder and decoder options stay in one
// place: deterministic encoding on the way out, map[string]any for
// untyped targets on the way in, unknown fields ignored.
package codec
