// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/session"
)

// deniedReply explains a gate denial.
func deniedReply(reason authorization.DenyReason) Reply {
	var text string
	switch reason {
	case authorization.ReasonFeatureDisabled:
		text = "This command is disabled."
	case authorization.ReasonNoPermissionConfigured:
		text = "No permission is configured for this command."
	default:
		text = "You don't have permission to use this command."
	}
	return Reply{Kind: ReplyDenied, Text: text, Ephemeral: true}
}

// classify translates an operation error into the caller's reply and
// the audit outcome. Every reply names the specific failure.
func classify(err error) (Reply, audit.Outcome) {
	outcome := audit.Outcome{Kind: audit.Failed, Reason: err.Error()}

	var denied *authorization.DeniedError
	if errors.As(err, &denied) {
		outcome = audit.Outcome{Kind: audit.Denied, Reason: denied.Result.Reason.String()}
		return deniedReply(denied.Result.Reason), outcome
	}

	var stateErr *session.StateError
	switch {
	case errors.Is(err, session.ErrBusy):
		return Reply{Kind: ReplyBusy, Text: "Another server operation is in progress; please wait until it completes."}, outcome
	case errors.Is(err, session.ErrSessionNotRunning):
		return Reply{Kind: ReplyFailed, Text: "Server is not running; please start the server first."}, outcome
	case errors.Is(err, session.ErrNotVerified):
		return Reply{Kind: ReplyFailed, Text: "Server is not verified, so it cannot be listed or delisted."}, outcome
	case errors.As(err, &stateErr) && stateErr.Op == "start" && stateErr.State == session.Running:
		return Reply{Kind: ReplyFailed, Text: "Server is already running; please stop or restart instead."}, outcome
	case errors.As(err, &stateErr) && stateErr.State == session.Stopped:
		return Reply{Kind: ReplyFailed, Text: "Server is not running; nothing to " + stateErr.Op + "."}, outcome
	}
	return Reply{Kind: ReplyFailed, Text: sentence(err)}, outcome
}

// sentence renders err as a capitalized sentence.
func sentence(err error) string {
	text := err.Error()
	first, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(first)) + text[size:]
	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "?") {
		text += "."
	}
	return text
}

// validateOptions checks required options, choices and booleans.
func validateOptions(command Command, inv Invocation) error {
	for _, option := range command.Options {
		value, present := inv.Options[option.Name]
		if !present || strings.TrimSpace(value) == "" {
			if option.Required {
				return fmt.Errorf("option %q is required", option.Name)
			}
			continue
		}
		if len(option.Choices) > 0 && !slices.Contains(option.Choices, value) {
			return fmt.Errorf("option %q must be one of %s", option.Name, strings.Join(option.Choices, ", "))
		}
		if option.Type == OptionBoolean {
			if _, err := strconv.ParseBool(value); err != nil {
				return fmt.Errorf("option %q must be true or false", option.Name)
			}
		}
	}
	return nil
}
