// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
)

// Peer identifies the process on the other end of a connection.
type Peer struct {
	PID int32
	UID uint32
	GID uint32
}

// ID is a stable caller id for the peer's user.
func (p Peer) ID() string {
	return fmt.Sprintf("uid:%d", p.UID)
}

// errNoPeer is returned where peer credentials are unavailable.
var errNoPeer = errors.New("peer credentials unavailable")

type peerKey struct{}

func withPeer(ctx context.Context, peer Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, peer)
}

// PeerFromContext returns the connecting peer, if the server could
// read its credentials.
func PeerFromContext(ctx context.Context) (Peer, bool) {
	peer, ok := ctx.Value(peerKey{}).(Peer)
	return peer, ok
}
