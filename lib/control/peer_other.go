// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package control

import "net"

func peerOf(conn net.Conn) (Peer, error) {
	return Peer{}, errNoPeer
}
