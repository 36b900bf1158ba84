// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/reboot"
)

// OptionType is the value type of a command option.
type OptionType int

const (
	OptionString OptionType = iota
	OptionBoolean
)

// Option describes one command option.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool

	// Choices, if set, are the only accepted values.
	Choices []string
}

// Command describes one invocable command.
type Command struct {
	Key         string
	Description string
	Options     []Option

	// Confirm requires the caller to confirm before the command runs.
	Confirm bool

	// Prompt is the confirmation question. "%s" is replaced by the
	// first option's value.
	Prompt string

	// Progress is reported before a long operation starts.
	Progress string

	// Ephemeral replies are shown only to the caller.
	Ephemeral bool
}

type handler func(ctx context.Context, inv Invocation) (Reply, error)

// handler returns the operation behind a command key.
func (d *Dispatcher) handler(key string) (handler, bool) {
	switch key {
	case "help":
		return d.help, true
	case "serverstatus":
		return d.serverStatus, true
	case "startserver":
		return d.startServer, true
	case "stopserver":
		return d.stopServer, true
	case "restartserver":
		return d.restartServer, true
	case "softrestart":
		return d.softRestart, true
	case "roundrestart":
		return d.roundRestart, true
	case "restartnextround":
		return d.restartNextRound, true
	case "setserverstate":
		return d.setServerState, true
	case "onlineplayers":
		return d.onlinePlayers, true
	case FetchLogsCommand:
		return d.fetchLogs, true
	case ConsoleCommand:
		return d.console, true
	case RebootCommand:
		return d.systemReboot, true
	default:
		return nil, false
	}
}

// Feature-toggled command keys.
const (
	ConsoleCommand   = "console"
	FetchLogsCommand = "fetchlogs"
)

// RebootCommand is the host reboot command.
const RebootCommand = reboot.CommandKey

var commands = []Command{
	{
		Key:         "help",
		Description: "Displays a list of available bot commands",
		Ephemeral:   true,
	},
	{
		Key:         "serverstatus",
		Description: "Shows the server state and host load",
		Ephemeral:   true,
	},
	{
		Key:         "startserver",
		Description: "Starts the SCP:SL server",
		Progress:    "Starting server, please wait...",
	},
	{
		Key:         "stopserver",
		Description: "Stops the SCP:SL server",
		Options: []Option{{
			Name:        "force",
			Description: "Kill the server immediately instead of exiting gracefully",
			Type:        OptionBoolean,
		}},
		Progress: "Stopping server, please wait...",
	},
	{
		Key:         "restartserver",
		Description: "Restarts the SCP:SL server",
		Progress:    "Restarting server, please wait...",
	},
	{
		Key:         "softrestart",
		Description: "Restarts the server softly, notifying players to reconnect",
		Progress:    "Soft restarting server, please wait...",
	},
	{
		Key:         "roundrestart",
		Description: "Restarts the current round",
	},
	{
		Key:         "restartnextround",
		Description: "Restarts the server after the current round is finished",
	},
	{
		Key:         "setserverstate",
		Description: "Set server to private or public mode",
		Options: []Option{{
			Name:        "state",
			Description: "Choose mode: private or public",
			Type:        OptionString,
			Required:    true,
			Choices:     []string{"private", "public"},
		}},
	},
	{
		Key:         "onlineplayers",
		Description: "Displays the current online players in the server",
		Ephemeral:   true,
	},
	{
		Key:         FetchLogsCommand,
		Description: "Gets server console logs",
		Ephemeral:   true,
	},
	{
		Key:         ConsoleCommand,
		Description: "Run a console command on the server (admin only)",
		Options: []Option{{
			Name:        "command",
			Description: "The console command to run",
			Type:        OptionString,
			Required:    true,
		}},
		Confirm:   true,
		Prompt:    "Are you sure you want to run: `%s`?",
		Ephemeral: true,
	},
	{
		Key:         RebootCommand,
		Description: "Reboots the system, shutting down SCP:SL first if running",
		Confirm:     true,
		Prompt:      "Are you sure you want to reboot the system? This will shut down SCP:SL and reboot the host.",
		Progress:    "Shutting down SCP:SL and rebooting the host...",
	},
}

// Commands returns every command in registration order.
func Commands() []Command {
	return append([]Command(nil), commands...)
}

// LookupCommand returns the command named key.
func LookupCommand(key string) (Command, bool) {
	for _, command := range commands {
		if command.Key == key {
			return command, true
		}
	}
	return Command{}, false
}

// Descriptors returns a descriptor for every command, enabled as
// reported by enabled. Each command is its own permission key.
func Descriptors(enabled func(commandKey string) bool) []authorization.Descriptor {
	descriptors := make([]authorization.Descriptor, len(commands))
	for i, command := range commands {
		descriptors[i] = authorization.Descriptor{
			Key:           command.Key,
			PermissionKey: command.Key,
			Enabled:       enabled(command.Key),
		}
	}
	return descriptors
}
