// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"

	"github.com/wardenhq/warden/dispatch"
)

// noMentions keeps console output and player names from pinging.
var noMentions = &AllowedMentions{Parse: []string{}}

// commandResponder replies to a deferred slash command by editing the
// original response.
type commandResponder struct {
	client        *Client
	applicationID string
	token         string

	// ephemeral is the visibility chosen when the interaction was
	// deferred.
	ephemeral bool
}

func (r *commandResponder) Progress(ctx context.Context, text string) error {
	_, err := r.client.EditOriginalResponse(ctx, r.applicationID, r.token, messageParams(dispatch.Reply{Text: text}))
	return err
}

// Respond edits the original response. A private reply to a public
// deferral replaces it with an ephemeral follow-up.
func (r *commandResponder) Respond(ctx context.Context, reply dispatch.Reply) error {
	if reply.Ephemeral && !r.ephemeral {
		if err := r.client.DeleteOriginalResponse(ctx, r.applicationID, r.token); err != nil && !IsNotFound(err) {
			return err
		}
		params := messageParams(reply)
		params.Flags = MessageFlagEphemeral
		_, err := r.client.CreateFollowup(ctx, r.applicationID, r.token, params, files(reply)...)
		return err
	}
	_, err := r.client.EditOriginalResponse(ctx, r.applicationID, r.token, messageParams(reply), files(reply)...)
	return err
}

// componentResponder answers a confirm or cancel click. Replies edit
// the prompt message, except denials, which only the clicker sees.
type componentResponder struct {
	client        *Client
	applicationID string
	token         string
}

func (r *componentResponder) Progress(ctx context.Context, text string) error {
	_, err := r.client.EditOriginalResponse(ctx, r.applicationID, r.token, messageParams(dispatch.Reply{Text: text}))
	return err
}

func (r *componentResponder) Respond(ctx context.Context, reply dispatch.Reply) error {
	if reply.Kind == dispatch.ReplyDenied {
		params := messageParams(reply)
		params.Flags = MessageFlagEphemeral
		_, err := r.client.CreateFollowup(ctx, r.applicationID, r.token, params)
		return err
	}
	_, err := r.client.EditOriginalResponse(ctx, r.applicationID, r.token, messageParams(reply), files(reply)...)
	return err
}

// messageParams renders reply. Replies without a confirmation clear
// any buttons left on the message.
func messageParams(reply dispatch.Reply) MessageParams {
	components := []Component{}
	if reply.Confirmation != nil {
		components = []Component{{
			Type: ComponentActionRow,
			Components: []Component{
				{Type: ComponentButton, Style: ButtonDanger, Label: reply.Confirmation.ConfirmLabel, CustomID: confirmPrefix + reply.Confirmation.Token},
				{Type: ComponentButton, Style: ButtonSecondary, Label: reply.Confirmation.CancelLabel, CustomID: cancelPrefix + reply.Confirmation.Token},
			},
		}}
	}
	return MessageParams{
		Content:         reply.Text,
		Components:      &components,
		AllowedMentions: noMentions,
	}
}

func files(reply dispatch.Reply) []File {
	if reply.Attachment == nil {
		return nil
	}
	return []File{{Name: reply.Attachment.Name, Content: reply.Attachment.Content}}
}
