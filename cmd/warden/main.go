// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden runs an SCP: Secret Laboratory server in tmux and exposes its
// lifecycle to Discord slash commands and to a local control socket.
//
// On startup:
//  1. Loads the YAML config, the environment secrets and the JSON
//     permission map.
//  2. Reconciles the session controller with whatever is running.
//  3. Reports a completed host reboot if a reboot marker is present.
//  4. Serves the control socket and, unless --no-discord is set, the
//     Discord bot, until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/wardenhq/warden/lib/config"
	"github.com/wardenhq/warden/lib/process"
	"github.com/wardenhq/warden/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		debug       bool
		showVersion bool
		noDiscord   bool
	)
	flagSet := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to warden.yaml (default: $WARDEN_CONFIG)")
	flagSet.BoolVar(&debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVar(&noDiscord, "no-discord", false, "serve only the control socket")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("warden %s\n", version.Full())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	permissions, err := config.LoadPermissions(cfg.Paths.Permissions)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("starting warden", "version", version.Info(), "secrets", secrets.String())

	if noDiscord {
		secrets.DiscordToken = ""
	} else if secrets.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is not set; set it or run with --no-discord")
	}

	ctx, stop := process.SignalContext(context.Background())
	defer stop()

	d, err := newDaemon(ctx, cfg, secrets, permissions, logger)
	if err != nil {
		return err
	}
	runErr := d.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.close(shutdownCtx)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("warden stopped")
		return nil
	}
	return runErr
}
