// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/discord"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/lib/authorization"
	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/config"
	"github.com/wardenhq/warden/lib/control"
	"github.com/wardenhq/warden/lib/probe"
	"github.com/wardenhq/warden/lib/tmux"
	"github.com/wardenhq/warden/lib/version"
	"github.com/wardenhq/warden/lib/watchdog"
	"github.com/wardenhq/warden/logtail"
	"github.com/wardenhq/warden/players"
	"github.com/wardenhq/warden/reboot"
	"github.com/wardenhq/warden/session"
)

// daemon holds the wired components of a running warden.
type daemon struct {
	config  *config.Config
	secrets config.Secrets
	clock   clock.Clock
	logger  *slog.Logger

	controller *session.Controller
	audit      *audit.Logger
	dispatcher *dispatch.Dispatcher
	control    *control.Server
	bot        *discord.Bot
}

// newDaemon builds every component and reconciles the session with the
// host. Nothing is served until run.
func newDaemon(ctx context.Context, cfg *config.Config, secrets config.Secrets, permissions authorization.PermissionMap, logger *slog.Logger) (*daemon, error) {
	if err := os.MkdirAll(cfg.Paths.State, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	d := &daemon{config: cfg, secrets: secrets, clock: clock.Real(), logger: logger}

	tmuxServer := tmux.NewServer(cfg.Session.TmuxSocket, cfg.Session.TmuxConfig)
	logFile := ""
	if cfg.Logs.Source == config.LogSourceFile {
		logFile = cfg.Logs.File
	}
	backend := session.NewTmuxBackend(tmuxServer, session.TmuxBackendConfig{
		Name:      cfg.Session.Name,
		Directory: cfg.Session.Directory,
		Command:   cfg.Session.Command,
		LogFile:   logFile,
		Logger:    logger,
	})
	host, err := probe.NewHost(cfg.Session.Port, cfg.Session.ProcessPattern)
	if err != nil {
		return nil, err
	}

	d.controller, err = session.NewController(sessionConfig(cfg, backend, host, logger))
	if err != nil {
		return nil, err
	}
	state, err := d.controller.Reconcile(ctx)
	if err != nil {
		logger.Warn("reconciling session", "error", err)
	}
	logger.Info("session reconciled", "state", state.String())

	sink, err := auditSink(cfg, secrets, d.clock, logger)
	if err != nil {
		return nil, err
	}
	d.audit = audit.NewLogger(audit.LoggerConfig{
		Sink:            sink,
		QueueSize:       cfg.Audit.QueueSize,
		DeliveryTimeout: cfg.Audit.DeliveryTimeout.Std(),
		Logger:          logger,
	})

	gate := authorization.NewGate(dispatch.Descriptors(cfg.Features.Enabled), permissions)

	rebooter, err := newRebooter(cfg.Reboot)
	if err != nil {
		return nil, err
	}
	orchestrator, err := reboot.NewOrchestrator(reboot.Config{
		Gate:         gate,
		Controller:   d.controller,
		Rebooter:     rebooter,
		Method:       string(cfg.Reboot.Method),
		MarkerPath:   cfg.RebootMarkerPath(),
		StopTimeout:  cfg.Reboot.StopTimeout.Std(),
		BeforeReboot: d.beforeReboot,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	d.dispatcher, err = dispatch.NewDispatcher(dispatch.Config{
		Gate:       gate,
		Controller: d.controller,
		Logs: logtail.NewRetriever(logtail.RetrieverConfig{
			Source:      logSource(cfg, tmuxServer),
			ReadTimeout: cfg.Logs.ReadTimeout.Std(),
			Logger:      logger,
		}),
		Players:         players.NewLister(players.ListerConfig{Console: backend, Logger: logger}),
		Reboot:          orchestrator,
		Audit:           d.audit,
		Host:            host,
		Port:            cfg.Session.Port,
		LogLines:        cfg.Logs.Lines,
		InlineLimit:     cfg.Logs.InlineLimit,
		AttachmentLimit: cfg.Logs.AttachmentLimit,
		ConfirmTimeout:  cfg.Discord.ConfirmTimeout.Std(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	if err := reportCompletedReboot(ctx, cfg, d.audit, probe.BootTime, d.clock.Now(), logger); err != nil {
		logger.Warn("checking reboot marker", "error", err)
	}

	if cfg.Control.Socket != "" {
		d.control = control.NewServer(cfg.Control.Socket, logger)
		d.dispatcher.RegisterControl(d.control, dispatch.ControlConfig{
			Roles:   cfg.Control.Roles,
			Version: version.Info(),
		})
	}

	if secrets.DiscordToken != "" {
		client, err := discord.NewClient(discord.ClientConfig{
			BaseURL: cfg.Discord.APIBase,
			Token:   secrets.DiscordToken,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		d.bot, err = discord.NewBot(discord.BotConfig{
			Client:       client,
			Dispatcher:   d.dispatcher,
			Token:        secrets.DiscordToken,
			GuildID:      secrets.GuildID,
			GatewayURL:   cfg.Discord.GatewayURL,
			Activity:     cfg.Discord.Activity,
			ReconnectMax: cfg.Discord.ReconnectMax.Std(),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// run serves until ctx ends or a server fails. A failure stops the
// other server before run returns.
func (d *daemon) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errs := make(chan error, 2)
	running := 0
	if d.control != nil {
		running++
		go func() { errs <- serveError("control socket", d.control.Serve(ctx)) }()
	}
	if d.bot != nil {
		running++
		go func() { errs <- serveError("discord", d.bot.Run(ctx)) }()
	}
	if running == 0 {
		return errors.New("nothing to serve: set control.socket or DISCORD_TOKEN")
	}

	var failure error
	select {
	case <-ctx.Done():
	case failure = <-errs:
		running--
		cancel()
	}
	for ; running > 0; running-- {
		<-errs
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return failure
}

// serveError names the server that returned err. A server returning
// nil before shutdown is a failure too.
func serveError(name string, err error) error {
	if err == nil {
		return fmt.Errorf("%s stopped", name)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// close flushes the audit queue.
func (d *daemon) close(ctx context.Context) {
	if err := d.audit.Close(ctx); err != nil {
		d.logger.Warn("flushing audit queue", "error", err)
	}
	stats := d.audit.Stats()
	d.logger.Info("audit trail closed", "delivered", stats.Delivered, "failed", stats.Failed, "dropped", stats.Dropped)
}

// beforeReboot hides the bot so it does not look online while the
// host is down.
func (d *daemon) beforeReboot(ctx context.Context) error {
	if d.bot == nil {
		return nil
	}
	return d.bot.SetInvisible(ctx)
}

func sessionConfig(cfg *config.Config, backend session.Backend, prober session.Probe, logger *slog.Logger) session.Config {
	escalation := session.EscalateKill
	if cfg.Session.StopEscalation == config.EscalateManual {
		escalation = session.EscalateManual
	}
	return session.Config{
		Backend:            backend,
		Probe:              prober,
		Logger:             logger,
		StartTimeout:       cfg.Session.StartTimeout.Std(),
		StopTimeout:        cfg.Session.StopTimeout.Std(),
		KillTimeout:        cfg.Session.KillTimeout.Std(),
		SoftRestartTimeout: cfg.Session.SoftRestartTimeout.Std(),
		VisibilityTimeout:  cfg.Session.VisibilityTimeout.Std(),
		ConsoleSettle:      cfg.Session.ConsoleSettle.Std(),
		PollInterval:       cfg.Session.PollInterval.Std(),
		MarkerPollInterval: cfg.Session.MarkerPollInterval.Std(),
		Escalation:         escalation,
		Verified:           cfg.Session.Verified,
	}
}

func logSource(cfg *config.Config, server *tmux.Server) logtail.Source {
	if cfg.Logs.Source == config.LogSourceFile {
		return logtail.FileSource{Path: cfg.Logs.File, Rotated: cfg.Logs.File + ".1"}
	}
	return logtail.PaneSource{Server: server, Session: cfg.Session.Name}
}

// auditSink picks the delivery chain: webhook, spool, or both with the
// spool as fallback. With neither, records go to the daemon log.
func auditSink(cfg *config.Config, secrets config.Secrets, clk clock.Clock, logger *slog.Logger) (audit.Sink, error) {
	var webhook, spool audit.Sink
	if secrets.WebhookURL != "" {
		webhook = audit.NewWebhookSink(audit.WebhookConfig{
			URL:      secrets.WebhookURL,
			Client:   &http.Client{Timeout: 10 * time.Second},
			Attempts: cfg.Audit.RetryAttempts,
			Clock:    clk,
		})
	}
	if cfg.Audit.Spool {
		spoolSink, err := audit.NewSpoolSink(cfg.SpoolDir(), cfg.Audit.SpoolMaxBytes)
		if err != nil {
			return nil, err
		}
		spool = spoolSink
	}

	switch {
	case webhook != nil && spool != nil:
		return audit.FallbackSink{Primary: webhook, Fallback: spool, Logger: logger}, nil
	case webhook != nil:
		return webhook, nil
	case spool != nil:
		return spool, nil
	default:
		logger.Warn("no audit webhook or spool configured; audit records go to the log only")
		return audit.LogSink{Logger: logger}, nil
	}
}

func newRebooter(cfg config.RebootConfig) (reboot.Rebooter, error) {
	switch cfg.Method {
	case config.RebootCommand:
		return reboot.CommandRebooter{Argv: cfg.Command}, nil
	case config.RebootSyscall:
		return reboot.SyscallRebooter{}, nil
	default:
		return nil, fmt.Errorf("reboot.method %q: want command or syscall", cfg.Method)
	}
}

// auditor is the part of the audit logger reportCompletedReboot uses.
type auditor interface {
	NextSequence() uint64
	Record(record audit.Record)
}

// reportCompletedReboot audits the outcome of a reboot requested
// before this start. A marker written before the current boot means
// the reboot happened; one written after means the host never went
// down. The marker is cleared either way.
func reportCompletedReboot(ctx context.Context, cfg *config.Config, auditor auditor, bootTime func(context.Context) (time.Time, error), now time.Time, logger *slog.Logger) error {
	path := cfg.RebootMarkerPath()
	marker, ok, err := watchdog.Check(path, cfg.Reboot.MarkerMaxAge.Std(), now)
	if err != nil {
		if clearErr := watchdog.Clear(path); clearErr != nil {
			logger.Error("clearing unreadable reboot marker", "path", path, "error", clearErr)
		}
		return err
	}
	if !ok {
		return watchdog.Clear(path)
	}

	booted, err := bootTime(ctx)
	if err != nil {
		return fmt.Errorf("reading boot time: %w", err)
	}
	outcome := audit.Outcome{Kind: audit.Success, Reason: "host reboot completed"}
	if marker.Timestamp.After(booted) {
		outcome = audit.Outcome{Kind: audit.Failed, Reason: "host did not reboot"}
		logger.Error("reboot marker is newer than the last boot", "requested_at", marker.Timestamp, "booted_at", booted)
	} else {
		logger.Info("host reboot completed", "caller_id", marker.CallerID, "requested_at", marker.Timestamp, "booted_at", booted)
	}
	auditor.Record(audit.Record{
		ID:          audit.NewID(),
		Sequence:    auditor.NextSequence(),
		Timestamp:   now,
		CallerID:    marker.CallerID,
		CallerName:  marker.CallerName,
		CommandKey:  reboot.CommandKey,
		ArgsSummary: audit.SummarizeArgs([2]string{"method", marker.Method}),
		Outcome:     outcome,
	})
	return watchdog.Clear(path)
}
