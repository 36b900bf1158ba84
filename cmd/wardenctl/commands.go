// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/wardenhq/warden/lib/version"
)

// root builds the wardenctl command tree over a.
func (a *app) root() *Command {
	return &Command{
		Name:    "wardenctl",
		Summary: "Operate a warden-managed SCP: Secret Laboratory server over its control socket.",
		Output:  a.stderr,
		Subcommands: []*Command{
			a.statusCommand(),
			a.simpleCommand("start", "Start the server", "startserver"),
			a.stopCommand(),
			a.restartCommand(),
			a.roundCommand(),
			a.visibilityCommand(),
			a.consoleCommand(),
			a.logsCommand(),
			a.simpleCommand("players", "List online players", "onlineplayers"),
			a.rebootCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					fmt.Fprintf(a.stdout, "wardenctl %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

func (a *app) statusCommand() *Command {
	return &Command{
		Name:    "status",
		Summary: "Show the server state",
		Flags:   func() *pflag.FlagSet { return a.flags("status") },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("status", args); err != nil {
				return err
			}
			status, err := a.status(ctx)
			if err != nil {
				return err
			}
			renderStatus(a.stdout, status, a.now())
			return nil
		},
	}
}

// simpleCommand maps a verb with no options onto a command key.
func (a *app) simpleCommand(name, summary, key string) *Command {
	return &Command{
		Name:    name,
		Summary: summary,
		Flags:   func() *pflag.FlagSet { return a.flags(name) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(name, args); err != nil {
				return err
			}
			return a.run(ctx, key, nil, false)
		},
	}
}

func (a *app) stopCommand() *Command {
	var force bool
	return &Command{
		Name:    "stop",
		Summary: "Stop the server",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flags("stop")
			flagSet.BoolVar(&force, "force", false, "kill the session instead of stopping gracefully")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("stop", args); err != nil {
				return err
			}
			var options map[string]string
			if force {
				options = map[string]string{"force": "true"}
			}
			return a.run(ctx, "stopserver", options, false)
		},
	}
}

func (a *app) restartCommand() *Command {
	var soft bool
	return &Command{
		Name:    "restart",
		Summary: "Restart the server",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flags("restart")
			flagSet.BoolVar(&soft, "soft", false, "restart in place without killing the session")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("restart", args); err != nil {
				return err
			}
			if soft {
				return a.run(ctx, "softrestart", nil, false)
			}
			return a.run(ctx, "restartserver", nil, false)
		},
	}
}

func (a *app) roundCommand() *Command {
	return &Command{
		Name:    "round",
		Summary: "Restart the round now or after the current one",
		Subcommands: []*Command{
			a.simpleCommand("restart", "Restart the current round", "roundrestart"),
			a.simpleCommand("next", "Restart the server when the round ends", "restartnextround"),
		},
	}
}

func (a *app) visibilityCommand() *Command {
	return &Command{
		Name:    "visibility",
		Summary: "List or delist the server",
		Usage:   "wardenctl visibility private|public [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("visibility") },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 || (args[0] != "private" && args[0] != "public") {
				return fmt.Errorf("visibility takes exactly one argument: private or public")
			}
			return a.run(ctx, "setserverstate", map[string]string{"state": args[0]}, false)
		},
	}
}

func (a *app) consoleCommand() *Command {
	var (
		assumeYes bool
		output    string
	)
	return &Command{
		Name:    "console",
		Summary: "Send a command to the server console",
		Usage:   "wardenctl console <text...> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flags("console")
			flagSet.BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
			flagSet.StringVarP(&output, "output", "o", "", "save the full console output to this file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("console requires the text to send")
			}
			reply, err := a.invoke(ctx, "console", map[string]string{"command": text}, assumeYes)
			if err != nil {
				return err
			}
			if err := a.report(reply); err != nil {
				return err
			}
			return a.saveAttachment(reply, output)
		},
	}
}

func (a *app) logsCommand() *Command {
	var lines int
	return &Command{
		Name:    "logs",
		Summary: "Print recent server log lines",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flags("logs")
			flagSet.IntVarP(&lines, "lines", "n", 0, "print only the last N lines (default: everything returned)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("logs", args); err != nil {
				return err
			}
			reply, err := a.invoke(ctx, "fetchlogs", nil, false)
			if err != nil {
				return err
			}
			if reply.Kind != kindInfo && reply.Kind != kindSuccess {
				return a.report(reply)
			}
			if reply.Attachment == nil {
				// Nothing beyond the message, e.g. "No logs found."
				fmt.Fprintln(a.stdout, reply.Text)
				return nil
			}
			if body := tailLines(string(reply.Attachment.Content), lines); body != "" {
				fmt.Fprintln(a.stdout, body)
			}
			return nil
		},
	}
}

func (a *app) rebootCommand() *Command {
	var assumeYes bool
	return &Command{
		Name:    "reboot",
		Summary: "Stop the server and reboot the host",
		Flags: func() *pflag.FlagSet {
			flagSet := a.flags("reboot")
			flagSet.BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs("reboot", args); err != nil {
				return err
			}
			return a.run(ctx, "systemreboot", nil, assumeYes)
		},
	}
}

// run invokes key and reports the outcome.
func (a *app) run(ctx context.Context, key string, options map[string]string, assumeYes bool) error {
	reply, err := a.invoke(ctx, key, options, assumeYes)
	if err != nil {
		return err
	}
	return a.report(reply)
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%s takes no arguments (got %q)", name, args)
	}
	return nil
}
