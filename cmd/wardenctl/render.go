// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/wardenhq/warden/lib/control"
)

var (
	labelStyle = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("8"))
	faintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyle = map[string]lipgloss.Style{
		"running":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		"stopped":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		"starting":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		"stopping":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		"restarting": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
	}
)

// renderStatus writes a status snapshot as aligned label/value rows.
func renderStatus(w io.Writer, status control.StatusResponse, now time.Time) {
	style, ok := stateStyle[status.State]
	if !ok {
		style = lipgloss.NewStyle().Bold(true)
	}
	state := style.Render(status.State)
	if status.State == "running" && !status.Verified {
		state += faintStyle.Render(" (unverified)")
	}
	if !status.Since.IsZero() {
		state += faintStyle.Render(" for " + humanDuration(now.Sub(status.Since)))
	}

	rows := [][2]string{
		{"State", state},
		{"Visibility", status.Visibility},
	}
	if status.NextRoundRestart {
		rows = append(rows, [2]string{"Next round", "restart scheduled"})
	}
	if status.Busy {
		rows = append(rows, [2]string{"Busy", "an operation is in progress"})
	}
	if len(status.Commands) > 0 {
		rows = append(rows, [2]string{"Commands", strings.Join(status.Commands, ", ")})
	}
	if status.Version != "" {
		rows = append(rows, [2]string{"Warden", status.Version})
	}

	for _, row := range rows {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(row[0]), row[1]))
	}
}

// humanDuration rounds d to its two most significant units.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d/time.Minute), int(d%time.Minute/time.Second))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
	default:
		return fmt.Sprintf("%dd%dh", int(d/(24*time.Hour)), int(d%(24*time.Hour)/time.Hour))
	}
}
