// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/control"
	"github.com/wardenhq/warden/lib/testutil"
	"github.com/wardenhq/warden/session"
)

func startControl(t *testing.T, f *fixture, roles ...string) *control.Client {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := control.NewServer(socketPath, nil)
	f.dispatcher.RegisterControl(server, ControlConfig{Roles: roles, Version: "test"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "control server did not stop")
	})
	for {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		if t.Context().Err() != nil {
			t.Fatal("control socket did not appear")
		}
		runtime.Gosched()
	}
	return control.NewClient(socketPath)
}

func TestControlStatus(t *testing.T) {
	f := newFixture(t, allEnabled)
	f.controller.status = session.Status{State: session.Running, Since: epoch, Verified: true, Visibility: session.Public}
	client := startControl(t, f, moderatorRole)

	var status control.StatusResponse
	if err := client.Call(context.Background(), control.ActionStatus, control.StatusRequest{Action: control.ActionStatus}, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != "running" || status.Visibility != "public" || !status.Verified || status.Version != "test" {
		t.Fatalf("status = %+v", status)
	}
	if !slices.Contains(status.Commands, "onlineplayers") || slices.Contains(status.Commands, "startserver") {
		t.Fatalf("commands = %v", status.Commands)
	}
}

func TestControlInvokeUsesLocalRoles(t *testing.T) {
	f := newFixture(t, allEnabled)
	client := startControl(t, f, moderatorRole)

	var reply control.Reply
	request := control.InvokeRequest{Action: control.ActionInvoke, Command: "startserver"}
	if err := client.Call(context.Background(), control.ActionInvoke, request, &reply); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if reply.Kind != "denied" {
		t.Fatalf("reply = %+v", reply)
	}
	records := f.auditor.all()
	if len(records) != 1 || records[0].Outcome.Kind.String() != "denied" {
		t.Fatalf("records = %+v", records)
	}
	if runtime.GOOS == "linux" && !strings.HasPrefix(records[0].CallerID, "uid:") {
		t.Fatalf("caller id = %q", records[0].CallerID)
	}
}

func TestControlConsoleConfirmation(t *testing.T) {
	f := newFixture(t, allEnabled)
	f.controller.status = session.Status{State: session.Running, Since: epoch}
	f.controller.consoleLines = []string{"[12:00:02] Round restarted."}
	client := startControl(t, f, adminRole)

	var prompt control.Reply
	request := control.InvokeRequest{Action: control.ActionInvoke, Command: ConsoleCommand, Options: map[string]string{"command": "rr"}}
	if err := client.Call(context.Background(), control.ActionInvoke, request, &prompt); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if prompt.Kind != "confirm" || prompt.ConfirmToken == "" {
		t.Fatalf("prompt = %+v", prompt)
	}

	var reply control.Reply
	confirm := control.ConfirmRequest{Action: control.ActionConfirm, Token: prompt.ConfirmToken, Accept: true}
	if err := client.Call(context.Background(), control.ActionConfirm, confirm, &reply); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if reply.Kind != "success" || !strings.Contains(reply.Text, "Round restarted.") {
		t.Fatalf("reply = %+v", reply)
	}

	if err := client.Call(context.Background(), control.ActionConfirm, confirm, &reply); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if reply.Text != "This confirmation has expired." {
		t.Fatalf("second reply = %+v", reply)
	}
}

func TestCollectorProgressAndAttachment(t *testing.T) {
	collector := &Collector{}
	if wire := collector.Wire(); wire.Kind != "failed" {
		t.Fatalf("empty collector = %+v", wire)
	}
	collector.Progress(context.Background(), "Starting server, please wait...")
	collector.Respond(context.Background(), Reply{Kind: ReplyInfo, Text: "first"})
	collector.Respond(context.Background(), Reply{Kind: ReplyInfo, Text: "logs", Attachment: &Attachment{Name: "scpsl_logs.txt", Content: []byte("x")}})

	wire := collector.Wire()
	if wire.Text != "logs" || wire.Progress != "Starting server, please wait..." || wire.Attachment == nil || wire.Attachment.Name != "scpsl_logs.txt" {
		t.Fatalf("wire = %+v", wire)
	}
}
