// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe inspects the host for signs of the game server.
//
// The session controller cannot trust tmux alone: the session can
// outlive the game (a crashed server leaves a shell), and the game can
// hold its port for a while after tmux forgets it. [Host] answers the
// two questions that matter from the process table and socket table:
// is the game port bound, and is a game process running.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Host probes one game port and one process command-line pattern.
type Host struct {
	port    uint32
	pattern *regexp.Regexp
	self    int32
}

// NewHost returns a Host watching port and processes whose command
// line matches pattern (a regular expression, as with pgrep -f).
func NewHost(port int, pattern string) (*Host, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("process pattern %q: %w", pattern, err)
	}
	return &Host{
		port:    uint32(port),
		pattern: compiled,
		self:    int32(os.Getpid()),
	}, nil
}

// PortBound reports whether a TCP socket is listening on the game port
// or a UDP socket is bound to it, on any address.
func (h *Host) PortBound(ctx context.Context) (bool, error) {
	connections, err := gopsnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return false, fmt.Errorf("listing sockets: %w", err)
	}
	for _, connection := range connections {
		if connection.Laddr.Port != h.port {
			continue
		}
		switch connection.Type {
		case unix.SOCK_STREAM:
			if connection.Status == "LISTEN" {
				return true, nil
			}
		case unix.SOCK_DGRAM:
			return true, nil
		}
	}
	return false, nil
}

// ProcessRunning reports whether any process other than this one has a
// command line matching the pattern.
func (h *Host) ProcessRunning(ctx context.Context) (bool, error) {
	_, found, err := h.FindProcess(ctx)
	return found, err
}

// FindProcess returns the pid of the first matching process.
func (h *Host) FindProcess(ctx context.Context) (int32, bool, error) {
	processes, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("listing processes: %w", err)
	}
	for _, candidate := range processes {
		if candidate.Pid == h.self {
			continue
		}
		commandLine, err := candidate.CmdlineWithContext(ctx)
		if err != nil {
			// Exited between listing and reading, or not ours to read.
			continue
		}
		if h.pattern.MatchString(commandLine) {
			return candidate.Pid, true, nil
		}
	}
	return 0, false, nil
}

// PIDAlive reports whether pid exists. A process owned by another user
// counts as alive.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// BootTime returns when the host last booted.
func BootTime(ctx context.Context) (time.Time, error) {
	seconds, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading boot time: %w", err)
	}
	return time.Unix(int64(seconds), 0), nil
}

// Stats is a point-in-time snapshot for status replies.
type Stats struct {
	BootTime          time.Time
	CPUPercent        float64
	MemoryUsedPercent float64
	Process           *ProcessStats
}

// ProcessStats describes the running game process.
type ProcessStats struct {
	PID        int32
	CPUPercent float64
	RSSBytes   uint64
	Started    time.Time
}

// Stats collects host load and, when found, the game process usage.
// Readings that fail are left zero and reported in the joined error,
// so callers may use a partial snapshot.
func (h *Host) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	if boot, err := BootTime(ctx); err == nil {
		stats.BootTime = boot
	} else {
		errs = append(errs, err)
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	} else if err != nil {
		errs = append(errs, fmt.Errorf("reading cpu: %w", err))
	}
	if memory, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = memory.UsedPercent
	} else {
		errs = append(errs, fmt.Errorf("reading memory: %w", err))
	}

	pid, found, err := h.FindProcess(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if found {
		stats.Process = processStats(ctx, pid)
	}
	return stats, errors.Join(errs...)
}

func processStats(ctx context.Context, pid int32) *ProcessStats {
	result := &ProcessStats{PID: pid}
	handle, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return result
	}
	if percent, err := handle.CPUPercentWithContext(ctx); err == nil {
		result.CPUPercent = percent
	}
	if memory, err := handle.MemoryInfoWithContext(ctx); err == nil {
		result.RSSBytes = memory.RSS
	}
	if created, err := handle.CreateTimeWithContext(ctx); err == nil {
		result.Started = time.UnixMilli(created)
	}
	return result
}
