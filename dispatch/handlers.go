// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wardenhq/warden/logtail"
	"github.com/wardenhq/warden/reboot"
	"github.com/wardenhq/warden/session"
)

// Attachment names.
const (
	logsAttachment    = "scpsl_logs.txt"
	consoleAttachment = "command_output.txt"
)

const fence = "```"

// fenceOverhead is what fenced adds around its text.
const fenceOverhead = len(fence)*2 + 2

func fenced(text string) string {
	return fence + "\n" + text + "\n" + fence
}

func runeCount(text string) int {
	return utf8.RuneCountInString(text)
}

// echoLimit bounds operator text quoted back in prompts and replies.
const echoLimit = 200

// echo shortens text for quoting, keeping its start.
func echo(text string) string {
	runes := []rune(text)
	if len(runes) <= echoLimit {
		return text
	}
	return string(runes[:echoLimit-3]) + "..."
}

func (d *Dispatcher) help(ctx context.Context, inv Invocation) (Reply, error) {
	var builder strings.Builder
	for _, command := range commands {
		if !d.gate.Authorize(command.Key, inv.Roles).Allowed() {
			continue
		}
		builder.WriteString("/" + command.Key)
		for _, option := range command.Options {
			if option.Required {
				fmt.Fprintf(&builder, " <%s>", option.Name)
			} else {
				fmt.Fprintf(&builder, " [%s]", option.Name)
			}
		}
		builder.WriteString(" - " + command.Description + "\n")
	}
	if builder.Len() == 0 {
		return Reply{Kind: ReplyInfo, Text: "No commands are available to you."}, nil
	}
	return Reply{Kind: ReplyInfo, Text: "**Available Commands:**\n" + strings.TrimSuffix(builder.String(), "\n")}, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func (d *Dispatcher) serverStatus(ctx context.Context, inv Invocation) (Reply, error) {
	status := d.config.Controller.Status()
	now := d.clock.Now()

	lines := []string{
		fmt.Sprintf("State: %s for %s", status.State, now.Sub(status.Since).Round(time.Second)),
		"Visibility: " + status.Visibility.String(),
		"Verified: " + yesNo(status.Verified),
	}
	if status.NextRoundRestart {
		lines = append(lines, "Restart after round: scheduled")
	}
	if status.Busy {
		lines = append(lines, "Operation in progress: yes")
	}

	if d.config.Host != nil {
		stats, err := d.config.Host.Stats(ctx)
		if err != nil {
			d.logger.Warn("reading host stats", "error", err)
		}
		if !stats.BootTime.IsZero() {
			lines = append(lines, fmt.Sprintf("Host: CPU %.1f%%, memory %.1f%%, up %s",
				stats.CPUPercent, stats.MemoryUsedPercent, now.Sub(stats.BootTime).Round(time.Minute)))
		}
		if process := stats.Process; process != nil {
			line := fmt.Sprintf("Game process: pid %d, CPU %.1f%%, memory %d MiB",
				process.PID, process.CPUPercent, process.RSSBytes>>20)
			if !process.Started.IsZero() {
				line += fmt.Sprintf(", up %s", now.Sub(process.Started).Round(time.Second))
			}
			lines = append(lines, line)
		}
	}
	return Reply{Kind: ReplyInfo, Text: strings.Join(lines, "\n")}, nil
}

func (d *Dispatcher) startServer(ctx context.Context, inv Invocation) (Reply, error) {
	if err := d.config.Controller.Start(ctx); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: fmt.Sprintf("Server started successfully: port %d is bound.", d.config.Port)}, nil
}

func (d *Dispatcher) stopServer(ctx context.Context, inv Invocation) (Reply, error) {
	force, _ := strconv.ParseBool(inv.Option("force"))
	if err := d.config.Controller.Stop(ctx, force); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: fmt.Sprintf("Server stopped successfully: port %d is free.", d.config.Port)}, nil
}

func (d *Dispatcher) restartServer(ctx context.Context, inv Invocation) (Reply, error) {
	if _, err := d.config.Controller.Restart(ctx, session.Hard); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: fmt.Sprintf("Server restarted successfully: port %d is bound.", d.config.Port)}, nil
}

func (d *Dispatcher) softRestart(ctx context.Context, inv Invocation) (Reply, error) {
	line, err := d.config.Controller.Restart(ctx, session.Soft)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: line}, nil
}

func (d *Dispatcher) roundRestart(ctx context.Context, inv Invocation) (Reply, error) {
	if err := d.config.Controller.RestartRound(ctx); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: "Round restart forced."}, nil
}

func (d *Dispatcher) restartNextRound(ctx context.Context, inv Invocation) (Reply, error) {
	if err := d.config.Controller.ScheduleNextRoundRestart(ctx); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: "Server WILL restart after next round."}, nil
}

func (d *Dispatcher) setServerState(ctx context.Context, inv Invocation) (Reply, error) {
	visibility, ok := session.ParseVisibility(inv.Option("state"))
	if !ok {
		return Reply{}, fmt.Errorf("unknown server state %q", inv.Option("state"))
	}
	line, err := d.config.Controller.SetVisibility(ctx, visibility)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: line}, nil
}

func (d *Dispatcher) onlinePlayers(ctx context.Context, inv Invocation) (Reply, error) {
	if d.config.Players == nil {
		return Reply{}, errors.New("player listing is not configured")
	}
	if d.config.Controller.Status().State != session.Running {
		return Reply{}, session.ErrSessionNotRunning
	}
	roster, err := d.config.Players.List(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("retrieving players: %w", err)
	}
	if roster.Count == 0 {
		return Reply{Kind: ReplyInfo, Text: "No players online (0)."}, nil
	}
	text := fmt.Sprintf("Online players (%d):\n%s", roster.Count, strings.Join(roster.Names, "\n"))
	return Reply{Kind: ReplyInfo, Text: logtail.Truncate(text, d.config.InlineLimit)}, nil
}

func (d *Dispatcher) fetchLogs(ctx context.Context, inv Invocation) (Reply, error) {
	if d.config.Logs == nil {
		return Reply{}, errors.New("log retrieval is not configured")
	}
	result := d.config.Logs.Tail(ctx, d.config.LogLines)

	var note string
	if result.Incomplete {
		note = "Log read timed out; output may be incomplete.\n"
	}
	text := strings.Join(result.Lines, "\n")
	if strings.TrimSpace(text) == "" {
		return Reply{Kind: ReplyInfo, Text: note + "No console output available."}, nil
	}

	budget := d.config.InlineLimit - runeCount(note) - fenceOverhead
	return Reply{
		Kind: ReplyInfo,
		Text: note + fenced(logtail.Truncate(text, budget)),
		Attachment: &Attachment{
			Name:    logsAttachment,
			Content: []byte(logtail.Truncate(text, d.config.AttachmentLimit)),
		},
	}, nil
}

func (d *Dispatcher) console(ctx context.Context, inv Invocation) (Reply, error) {
	command := inv.Option("command")
	lines, err := d.config.Controller.InjectConsoleCommand(ctx, command)
	if err != nil {
		return Reply{}, err
	}
	count := len(lines)
	if count == 0 {
		lines = []string{"<no new output>"}
	}
	output := strings.Join(lines, "\n")

	header := fmt.Sprintf("Executed: `%s`\nConsole output (%d new lines):\n", echo(command), count)
	budget := d.config.InlineLimit - runeCount(header) - fenceOverhead
	if runeCount(output) <= budget {
		return Reply{Kind: ReplySuccess, Text: header + fenced(output)}, nil
	}

	note := fmt.Sprintf("Output too long (%d lines); showing the newest output and attaching the rest.\n", count)
	return Reply{
		Kind: ReplySuccess,
		Text: header + note + fenced(logtail.Truncate(output, max(budget-runeCount(note), runeCount(logtail.TruncatedMarker)))),
		Attachment: &Attachment{
			Name:    consoleAttachment,
			Content: []byte(output),
		},
	}, nil
}

func (d *Dispatcher) systemReboot(ctx context.Context, inv Invocation) (Reply, error) {
	if d.config.Reboot == nil {
		return Reply{}, errors.New("host reboot is not configured")
	}
	caller := reboot.Caller{ID: inv.CallerID, Name: inv.CallerName, Roles: inv.Roles}
	if err := d.config.Reboot.RebootHost(ctx, caller); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplySuccess, Text: "Rebooting system; SCP:SL does not autostart."}, nil
}
