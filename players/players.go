// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package players

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/session"
)

// ErrNoResponse is returned when no player list appears on the
// console within the response timeout.
var ErrNoResponse = errors.New("game did not answer the players command")

const (
	listCommand = "players"
	headerText  = "List of players"
)

var (
	header = regexp.MustCompile(`List of players \((\d+)\)`)

	// entryPrefix is the "[timestamp] - " lead of an entry line.
	entryPrefix = regexp.MustCompile(`^\[.*?\]\s*-\s*`)
)

// Roster is a parsed player list.
type Roster struct {
	// Count is the number the game reported in the header.
	Count int

	// Names are the listed players in console order, without
	// duplicates.
	Names []string
}

// Parse extracts the roster following the last header in lines. It
// reports false when lines hold no header.
func Parse(lines []string) (Roster, bool) {
	last := -1
	for i, line := range lines {
		if strings.Contains(line, headerText) {
			last = i
		}
	}
	if last < 0 {
		return Roster{}, false
	}

	var roster Roster
	if match := header.FindStringSubmatch(lines[last]); match != nil {
		roster.Count, _ = strconv.Atoi(match[1])
	}
	if roster.Count == 0 {
		return roster, true
	}

	seen := make(map[string]bool)
	for _, entry := range lines[last+1:] {
		if strings.TrimSpace(entry) == "" {
			break
		}
		name := strings.TrimRight(cleanEntry(entry), " \t")
		if seen[name] {
			continue
		}
		seen[name] = true
		roster.Names = append(roster.Names, name)
	}
	return roster, true
}

// cleanEntry removes the timestamp and list dash from an entry while
// keeping names that begin with "." or "_" intact.
func cleanEntry(entry string) string {
	entry = entryPrefix.ReplaceAllString(entry, "")
	if rest, ok := strings.CutPrefix(entry, "- "); ok {
		if !strings.HasPrefix(rest, ".") && !strings.HasPrefix(rest, "_") {
			return rest
		}
	}
	return entry
}

// Console is the part of the game session the Lister needs.
type Console interface {
	SendLine(ctx context.Context, text string) error
	Capture(ctx context.Context, lines int) ([]string, error)
}

// ListerConfig configures a Lister.
type ListerConfig struct {
	Console Console

	// ResponseTimeout bounds the wait for the player list. Zero means
	// 3 seconds.
	ResponseTimeout time.Duration

	// PollInterval paces console checks. Zero means 200ms.
	PollInterval time.Duration

	// CaptureLines is the scrollback window searched. Zero means 200.
	CaptureLines int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Lister queries the game for its online players. It takes no
// lifecycle lock.
type Lister struct {
	console         Console
	responseTimeout time.Duration
	pollInterval    time.Duration
	captureLines    int
	clock           clock.Clock
	logger          *slog.Logger
}

// NewLister returns a Lister over config.Console.
func NewLister(config ListerConfig) *Lister {
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = 3 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	if config.CaptureLines <= 0 {
		config.CaptureLines = 200
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Lister{
		console:         config.Console,
		responseTimeout: config.ResponseTimeout,
		pollInterval:    config.PollInterval,
		captureLines:    config.CaptureLines,
		clock:           config.Clock,
		logger:          config.Logger,
	}
}

// List sends the players command and parses the list printed in
// response. Only output that appeared after the command counts.
func (l *Lister) List(ctx context.Context) (Roster, error) {
	before, err := l.console.Capture(ctx, l.captureLines)
	if err != nil {
		return Roster{}, fmt.Errorf("capturing console: %w", err)
	}
	if err := l.console.SendLine(ctx, listCommand); err != nil {
		return Roster{}, fmt.Errorf("sending %s: %w", listCommand, err)
	}

	// The header can reach the console before its entries. A roster is
	// final once it lists Count players or is unchanged between polls.
	var (
		roster Roster
		found  bool
	)
	deadline := l.clock.Now().Add(l.responseTimeout)
	for {
		after, err := l.console.Capture(ctx, l.captureLines)
		if err != nil {
			l.logger.Debug("capturing console for player list", "error", err)
		} else if current, ok := Parse(session.NewLines(before, after)); ok {
			if len(current.Names) >= current.Count {
				return current, nil
			}
			if found && current.Count == roster.Count && slices.Equal(current.Names, roster.Names) {
				return current, nil
			}
			roster, found = current, true
		}
		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			if found {
				l.logger.Debug("player list incomplete at timeout", "count", roster.Count, "listed", len(roster.Names))
				return roster, nil
			}
			return Roster{}, fmt.Errorf("%w after %s", ErrNoResponse, l.responseTimeout)
		}
		select {
		case <-ctx.Done():
			return Roster{}, ctx.Err()
		case <-l.clock.After(min(l.pollInterval, remaining)):
		}
	}
}
