// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package logtail

import (
	"context"
	"strings"

	"github.com/wardenhq/warden/lib/tmux"
)

// PaneSource reads tmux scrollback of one session.
type PaneSource struct {
	Server  *tmux.Server
	Session string
}

// Lines captures the pane and returns its last maxLines lines.
func (s PaneSource) Lines(ctx context.Context, maxLines int) ([]string, error) {
	output, err := s.Server.CapturePane(ctx, s.Session, maxLines)
	if err != nil {
		return nil, err
	}
	return splitLines(output), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
