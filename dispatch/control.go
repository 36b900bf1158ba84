// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"sync"

	"github.com/wardenhq/warden/lib/codec"
	"github.com/wardenhq/warden/lib/control"
)

// Collector is a Responder for transports that answer exactly once.
// It keeps the progress text and the latest reply.
type Collector struct {
	mu       sync.Mutex
	progress string
	reply    Reply
	replied  bool
}

// Progress records text.
func (c *Collector) Progress(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = text
	return nil
}

// Respond records reply, replacing any earlier one.
func (c *Collector) Respond(ctx context.Context, reply Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = reply
	c.replied = true
	return nil
}

// Wire converts the collected reply to its control-socket form.
func (c *Collector) Wire() control.Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.replied {
		return control.Reply{Kind: ReplyFailed.String(), Text: "No reply.", Progress: c.progress}
	}
	wire := control.Reply{
		Kind:     c.reply.Kind.String(),
		Text:     c.reply.Text,
		Progress: c.progress,
	}
	if c.reply.Attachment != nil {
		wire.Attachment = &control.Attachment{Name: c.reply.Attachment.Name, Content: c.reply.Attachment.Content}
	}
	if c.reply.Confirmation != nil {
		wire.ConfirmToken = c.reply.Confirmation.Token
	}
	return wire
}

// ControlConfig configures the control-socket actions.
type ControlConfig struct {
	// Roles are granted to every local caller.
	Roles []string

	// Version is reported by the status action.
	Version string
}

// RegisterControl installs the status, invoke and confirm actions on
// server. Local callers are identified by their peer uid and hold the
// configured roles.
func (d *Dispatcher) RegisterControl(server *control.Server, config ControlConfig) {
	roles := append([]string(nil), config.Roles...)

	server.Handle(control.ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		status := d.config.Controller.Status()
		response := control.StatusResponse{
			State:            status.State.String(),
			Since:            status.Since,
			Visibility:       status.Visibility.String(),
			Verified:         status.Verified,
			NextRoundRestart: status.NextRoundRestart,
			Busy:             status.Busy,
			Version:          config.Version,
		}
		for _, command := range Commands() {
			if d.gate.Authorize(command.Key, roles).Allowed() {
				response.Commands = append(response.Commands, command.Key)
			}
		}
		return response, nil
	})

	server.Handle(control.ActionInvoke, func(ctx context.Context, raw []byte) (any, error) {
		var request control.InvokeRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding invoke request: %w", err)
		}
		if request.Command == "" {
			return nil, errors.New("missing required field: command")
		}
		callerID, callerName := localCaller(ctx)
		collector := &Collector{}
		d.Dispatch(ctx, Invocation{
			CommandKey: request.Command,
			CallerID:   callerID,
			CallerName: callerName,
			Roles:      roles,
			Options:    request.Options,
		}, collector)
		return collector.Wire(), nil
	})

	server.Handle(control.ActionConfirm, func(ctx context.Context, raw []byte) (any, error) {
		var request control.ConfirmRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding confirm request: %w", err)
		}
		callerID, _ := localCaller(ctx)
		collector := &Collector{}
		d.Confirm(ctx, request.Token, callerID, request.Accept, collector)
		return collector.Wire(), nil
	})
}

// localCaller names the process on the other end of the socket.
func localCaller(ctx context.Context) (id, name string) {
	peer, ok := control.PeerFromContext(ctx)
	if !ok {
		return "local", "local"
	}
	name = "uid " + strconv.FormatUint(uint64(peer.UID), 10)
	if account, err := user.LookupId(strconv.FormatUint(uint64(peer.UID), 10)); err == nil {
		name = account.Username
	}
	return peer.ID(), name
}
