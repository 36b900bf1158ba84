// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/config"
	"github.com/wardenhq/warden/lib/watchdog"
	"github.com/wardenhq/warden/logtail"
	"github.com/wardenhq/warden/reboot"
	"github.com/wardenhq/warden/session"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturingAuditor struct {
	sequence atomic.Uint64
	records  []audit.Record
}

func (a *capturingAuditor) NextSequence() uint64 { return a.sequence.Add(1) }

func (a *capturingAuditor) Record(record audit.Record) { a.records = append(a.records, record) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.State = t.TempDir()
	return cfg
}

func bootedAt(at time.Time) func(context.Context) (time.Time, error) {
	return func(context.Context) (time.Time, error) { return at, nil }
}

func TestReportCompletedReboot(t *testing.T) {
	tests := []struct {
		name     string
		marker   time.Time
		booted   time.Time
		wantKind audit.Kind
		reason   string
	}{
		{"rebooted", epoch.Add(-10 * time.Minute), epoch.Add(-8 * time.Minute), audit.Success, "host reboot completed"},
		{"never went down", epoch.Add(-10 * time.Minute), epoch.Add(-24 * time.Hour), audit.Failed, "host did not reboot"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t)
			marker := watchdog.Marker{CallerID: "42", CallerName: "operator", Method: "command", Timestamp: test.marker}
			if err := watchdog.Write(cfg.RebootMarkerPath(), marker); err != nil {
				t.Fatal(err)
			}
			auditor := &capturingAuditor{}

			if err := reportCompletedReboot(context.Background(), cfg, auditor, bootedAt(test.booted), epoch, discardLogger()); err != nil {
				t.Fatalf("reportCompletedReboot: %v", err)
			}
			if len(auditor.records) != 1 {
				t.Fatalf("records = %d", len(auditor.records))
			}
			record := auditor.records[0]
			if record.Outcome.Kind != test.wantKind || record.Outcome.Reason != test.reason {
				t.Fatalf("outcome = %+v", record.Outcome)
			}
			if record.CallerID != "42" || record.CommandKey != reboot.CommandKey || record.ArgsSummary != "method=command" {
				t.Fatalf("record = %+v", record)
			}
			if _, err := os.Stat(cfg.RebootMarkerPath()); !os.IsNotExist(err) {
				t.Fatal("marker not cleared")
			}
		})
	}
}

func TestReportCompletedRebootIgnoresMissingAndStaleMarkers(t *testing.T) {
	cfg := testConfig(t)
	auditor := &capturingAuditor{}
	if err := reportCompletedReboot(context.Background(), cfg, auditor, bootedAt(epoch), epoch, discardLogger()); err != nil {
		t.Fatalf("missing marker: %v", err)
	}

	stale := watchdog.Marker{CallerID: "42", Timestamp: epoch.Add(-2 * time.Hour)}
	if err := watchdog.Write(cfg.RebootMarkerPath(), stale); err != nil {
		t.Fatal(err)
	}
	if err := reportCompletedReboot(context.Background(), cfg, auditor, bootedAt(epoch), epoch, discardLogger()); err != nil {
		t.Fatalf("stale marker: %v", err)
	}
	if len(auditor.records) != 0 {
		t.Fatalf("records = %+v", auditor.records)
	}
	if _, err := os.Stat(cfg.RebootMarkerPath()); !os.IsNotExist(err) {
		t.Fatal("stale marker not cleared")
	}
}

func TestReportCompletedRebootBootTimeFailure(t *testing.T) {
	cfg := testConfig(t)
	watchdog.Write(cfg.RebootMarkerPath(), watchdog.Marker{CallerID: "42", Timestamp: epoch})
	failing := func(context.Context) (time.Time, error) { return time.Time{}, errors.New("no /proc") }

	auditor := &capturingAuditor{}
	if err := reportCompletedReboot(context.Background(), cfg, auditor, failing, epoch, discardLogger()); err == nil {
		t.Fatal("expected error")
	}
	if len(auditor.records) != 0 {
		t.Fatal("recorded without a boot time")
	}
}

func TestReportCompletedRebootUnreadableMarker(t *testing.T) {
	cfg := testConfig(t)
	path := cfg.RebootMarkerPath()
	// A non-empty directory can be neither read as a marker nor removed.
	if err := os.MkdirAll(filepath.Join(path, "stuck"), 0o700); err != nil {
		t.Fatal(err)
	}
	var logged bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logged, nil))

	auditor := &capturingAuditor{}
	if err := reportCompletedReboot(context.Background(), cfg, auditor, bootedAt(epoch), epoch, logger); err == nil {
		t.Fatal("expected error for an unreadable marker")
	}
	if len(auditor.records) != 0 {
		t.Fatal("recorded from an unreadable marker")
	}
	if !strings.Contains(logged.String(), "clearing unreadable reboot marker") {
		t.Errorf("failed clear not logged:\n%s", logged.String())
	}
}

func TestSessionConfigLeavesTransitionLoggingToController(t *testing.T) {
	if sessionConfig(testConfig(t), nil, nil, discardLogger()).OnTransition != nil {
		t.Error("daemon installs a transition hook; the controller already logs every state change")
	}
}

func TestAuditSinkSelection(t *testing.T) {
	fake := clock.Fake(epoch)
	tests := []struct {
		name    string
		webhook string
		spool   bool
		check   func(audit.Sink) bool
	}{
		{"webhook and spool", "https://discord.test/api/webhooks/1/x", true, func(s audit.Sink) bool { _, ok := s.(audit.FallbackSink); return ok }},
		{"webhook only", "https://discord.test/api/webhooks/1/x", false, func(s audit.Sink) bool { _, ok := s.(*audit.WebhookSink); return ok }},
		{"spool only", "", true, func(s audit.Sink) bool { _, ok := s.(*audit.SpoolSink); return ok }},
		{"neither", "", false, func(s audit.Sink) bool { _, ok := s.(audit.LogSink); return ok }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Audit.Spool = test.spool
			sink, err := auditSink(cfg, config.Secrets{WebhookURL: test.webhook}, fake, discardLogger())
			if err != nil {
				t.Fatalf("auditSink: %v", err)
			}
			if !test.check(sink) {
				t.Fatalf("sink = %T", sink)
			}
		})
	}
}

func TestNewRebooter(t *testing.T) {
	rebooter, err := newRebooter(config.RebootConfig{Method: config.RebootCommand, Command: []string{"true"}})
	if err != nil {
		t.Fatal(err)
	}
	if command, ok := rebooter.(reboot.CommandRebooter); !ok || command.Argv[0] != "true" {
		t.Fatalf("rebooter = %#v", rebooter)
	}
	if _, err := newRebooter(config.RebootConfig{Method: config.RebootSyscall}); err != nil {
		t.Fatal(err)
	}
	if _, err := newRebooter(config.RebootConfig{Method: "kexec"}); err == nil {
		t.Fatal("unknown method accepted")
	}
}

func TestSessionConfigEscalation(t *testing.T) {
	cfg := testConfig(t)
	if got := sessionConfig(cfg, nil, nil, discardLogger()).Escalation; got != session.EscalateKill {
		t.Fatalf("default escalation = %v", got)
	}
	cfg.Session.StopEscalation = config.EscalateManual
	if got := sessionConfig(cfg, nil, nil, discardLogger()).Escalation; got != session.EscalateManual {
		t.Fatalf("manual escalation = %v", got)
	}
	if got := sessionConfig(cfg, nil, nil, discardLogger()).StartTimeout; got != 60*time.Second {
		t.Fatalf("start timeout = %v", got)
	}
}

func TestLogSource(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := logSource(cfg, nil).(logtail.PaneSource); !ok {
		t.Fatal("default source is not the pane")
	}
	cfg.Logs.Source = config.LogSourceFile
	cfg.Logs.File = "/var/log/scpsl/console.log"
	file, ok := logSource(cfg, nil).(logtail.FileSource)
	if !ok || file.Rotated != "/var/log/scpsl/console.log.1" {
		t.Fatalf("file source = %#v", file)
	}
}

func TestServeError(t *testing.T) {
	if err := serveError("discord", nil); err == nil || err.Error() != "discord stopped" {
		t.Fatalf("nil = %v", err)
	}
	cause := errors.New("boom")
	if err := serveError("control socket", cause); !errors.Is(err, cause) {
		t.Fatalf("wrapped = %v", err)
	}
}
