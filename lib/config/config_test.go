// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.Name != "scpsl" {
		t.Errorf("session.name = %q, want scpsl", cfg.Session.Name)
	}
	if cfg.Session.Port != 7777 {
		t.Errorf("session.port = %d, want 7777", cfg.Session.Port)
	}
	if cfg.Session.StopEscalation != EscalateKill {
		t.Errorf("session.stop_escalation = %q, want kill", cfg.Session.StopEscalation)
	}
	if cfg.Features.Console || cfg.Features.FetchLogs {
		t.Error("feature toggles must default to off")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadRequiresWardenConfig(t *testing.T) {
	t.Setenv("WARDEN_CONFIG", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when WARDEN_CONFIG is not set")
	}
	if !strings.HasPrefix(err.Error(), "WARDEN_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "warden.yaml", `
paths:
  state: /var/lib/warden
session:
  name: scpsl-test
  start_timeout: 2m
  stop_escalation: manual
features:
  console: true
control:
  roles: ["1083746027162173440"]
`)
	t.Setenv("WARDEN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Name != "scpsl-test" {
		t.Errorf("session.name = %q", cfg.Session.Name)
	}
	if cfg.Session.StartTimeout.Std() != 2*time.Minute {
		t.Errorf("session.start_timeout = %v, want 2m", cfg.Session.StartTimeout)
	}
	if cfg.Session.StopTimeout.Std() != 60*time.Second {
		t.Errorf("session.stop_timeout lost its default: %v", cfg.Session.StopTimeout)
	}
	if cfg.Session.StopEscalation != EscalateManual {
		t.Errorf("session.stop_escalation = %q", cfg.Session.StopEscalation)
	}
	if !cfg.Features.Enabled("console") || cfg.Features.Enabled("fetchlogs") {
		t.Errorf("features = %+v", cfg.Features)
	}
	if cfg.Control.Socket != "/var/lib/warden/control.sock" {
		t.Errorf("control.socket = %q, want expansion of ${WARDEN_STATE}", cfg.Control.Socket)
	}
	if cfg.RebootMarkerPath() != "/var/lib/warden/reboot-marker.json" {
		t.Errorf("RebootMarkerPath = %q", cfg.RebootMarkerPath())
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "warden.yaml", "session:\n  start_timeout: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Session.Port = 0
	cfg.Session.StopEscalation = "ignore"
	cfg.Logs.Source = LogSourceFile
	cfg.Reboot.Method = "magic"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"session.port 0 out of range",
		`session.stop_escalation "ignore"`,
		"logs.file is required",
		`reboot.method "magic"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestFeaturesEnabled(t *testing.T) {
	var features FeaturesConfig
	for _, command := range []string{"console", "fetchlogs"} {
		if features.Enabled(command) {
			t.Errorf("%s enabled by zero value", command)
		}
	}
	if !features.Enabled("startserver") {
		t.Error("untoggled command disabled")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("WARDEN_TEST_DIR", "/srv/game")
	vars := map[string]string{"WARDEN_STATE": "/state"}

	tests := []struct {
		input string
		want  string
	}{
		{"${WARDEN_STATE}/audit", "/state/audit"},
		{"${WARDEN_TEST_DIR}/scpsl", "/srv/game/scpsl"},
		{"${WARDEN_TEST_MISSING:-/fallback}", "/fallback"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestLoadSecretsFrom(t *testing.T) {
	secrets, err := LoadSecretsFrom(map[string]string{
		"DISCORD_TOKEN": "token-value",
		"GUILD_ID":      "998877",
	})
	if err != nil {
		t.Fatalf("LoadSecretsFrom: %v", err)
	}
	if secrets.DiscordToken != "token-value" || secrets.GuildID != "998877" || secrets.WebhookURL != "" {
		t.Fatalf("secrets = %#v", secrets)
	}
	if strings.Contains(secrets.String(), "token-value") {
		t.Fatalf("String() leaks the token: %s", secrets)
	}
}

func TestParsePermissionsKeepsSnowflakesExact(t *testing.T) {
	permissions, err := ParsePermissions([]byte(`{
		// numbers beyond 2^53 must not lose precision
		"stopserver": [1083746027162173443, "1083746027162173444"],
		"console": [],
	}`))
	if err != nil {
		t.Fatalf("ParsePermissions: %v", err)
	}
	stop := permissions["stopserver"]
	if len(stop) != 2 || stop[0] != "1083746027162173443" || stop[1] != "1083746027162173444" {
		t.Fatalf("stopserver roles = %v", stop)
	}
	if roles, ok := permissions["console"]; !ok || len(roles) != 0 {
		t.Fatalf("console roles = %v, present=%v", roles, ok)
	}
}

func TestParsePermissionsRejectsBadEntries(t *testing.T) {
	for _, input := range []string{
		`{"stopserver": [1.5]}`,
		`{"stopserver": [-3]}`,
		`{"stopserver": [true]}`,
		`{"stopserver": [""]}`,
		`{"stopserver": 12}`,
		`not json`,
	} {
		if _, err := ParsePermissions([]byte(input)); err == nil {
			t.Errorf("ParsePermissions(%s) succeeded", input)
		}
	}
}

func TestLoadPermissionsMissingFile(t *testing.T) {
	if _, err := LoadPermissions(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
