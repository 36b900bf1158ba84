// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the warden daemon configuration.
type Config struct {
	// Paths configures on-disk locations.
	Paths PathsConfig `yaml:"paths"`

	// Session configures the managed game-server session.
	Session SessionConfig `yaml:"session"`

	// Logs configures log retrieval for fetchlogs.
	Logs LogsConfig `yaml:"logs"`

	// Features holds the fail-closed feature toggles.
	Features FeaturesConfig `yaml:"features"`

	// Audit configures the audit trail.
	Audit AuditConfig `yaml:"audit"`

	// Reboot configures host reboots.
	Reboot RebootConfig `yaml:"reboot"`

	// Discord configures the Discord bot.
	Discord DiscordConfig `yaml:"discord"`

	// Control configures the local operator socket.
	Control ControlConfig `yaml:"control"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// State holds the reboot marker and the audit spool.
	State string `yaml:"state"`

	// Permissions is the JSON permission file.
	Permissions string `yaml:"permissions"`
}

// StopEscalation selects what happens when a graceful stop times out.
type StopEscalation string

const (
	// EscalateKill force-kills the session and waits for confirmed exit.
	EscalateKill StopEscalation = "kill"

	// EscalateManual leaves the session Stopping and reports a timeout;
	// an operator must issue a forced stop.
	EscalateManual StopEscalation = "manual"
)

// SessionConfig configures the tmux session hosting the game server.
type SessionConfig struct {
	// TmuxSocket is the tmux server socket. Empty targets the default
	// server of the user warden runs as.
	TmuxSocket string `yaml:"tmux_socket"`

	// TmuxConfig is passed as tmux -f when warden starts the server.
	TmuxConfig string `yaml:"tmux_config"`

	// Name is the tmux session name.
	Name string `yaml:"name"`

	// Directory is the working directory of the game server.
	Directory string `yaml:"directory"`

	// Command launches the game server inside the session.
	Command []string `yaml:"command"`

	// Port is the game port. The server counts as ready once it is bound.
	Port int `yaml:"port"`

	// ProcessPattern matches the game process command line.
	ProcessPattern string `yaml:"process_pattern"`

	// Verified seeds the verified flag required for visibility changes.
	Verified bool `yaml:"verified"`

	// StartTimeout bounds the wait for the game port after launch.
	StartTimeout Duration `yaml:"start_timeout"`

	// StopTimeout bounds the wait for graceful exit.
	StopTimeout Duration `yaml:"stop_timeout"`

	// KillTimeout bounds the wait for exit after a forced kill.
	KillTimeout Duration `yaml:"kill_timeout"`

	// SoftRestartTimeout bounds the wait for the soft-restart marker.
	SoftRestartTimeout Duration `yaml:"soft_restart_timeout"`

	// VisibilityTimeout bounds the wait for the visibility confirmation.
	VisibilityTimeout Duration `yaml:"visibility_timeout"`

	// ConsoleSettle is how long console output is collected after a
	// command is injected.
	ConsoleSettle Duration `yaml:"console_settle"`

	// PollInterval is the readiness and exit poll period.
	PollInterval Duration `yaml:"poll_interval"`

	// MarkerPollInterval is the console marker poll period.
	MarkerPollInterval Duration `yaml:"marker_poll_interval"`

	// StopEscalation is "kill" (default) or "manual".
	StopEscalation StopEscalation `yaml:"stop_escalation"`
}

// LogSource selects where fetchlogs reads from.
type LogSource string

const (
	// LogSourcePane reads tmux scrollback.
	LogSourcePane LogSource = "pane"

	// LogSourceFile reads the file written by tmux pipe-pane.
	LogSourceFile LogSource = "file"
)

// LogsConfig configures log retrieval.
type LogsConfig struct {
	// Source is "pane" (default) or "file".
	Source LogSource `yaml:"source"`

	// File is the pipe-pane target. Required when Source is "file".
	File string `yaml:"file"`

	// Lines is how many lines fetchlogs retrieves.
	Lines int `yaml:"lines"`

	// ReadTimeout bounds one retrieval.
	ReadTimeout Duration `yaml:"read_timeout"`

	// InlineLimit is the character budget of the inline reply.
	InlineLimit int `yaml:"inline_limit"`

	// AttachmentLimit is the character budget of the attached log file.
	AttachmentLimit int `yaml:"attachment_limit"`
}

// FeaturesConfig holds feature toggles. An absent toggle is false.
type FeaturesConfig struct {
	// Console enables raw console injection.
	Console bool `yaml:"console"`

	// FetchLogs enables log retrieval.
	FetchLogs bool `yaml:"fetchlogs"`
}

// Enabled reports whether commandKey may be reached. Only console and
// fetchlogs are toggled; every other command is always enabled.
func (f FeaturesConfig) Enabled(commandKey string) bool {
	switch commandKey {
	case "console":
		return f.Console
	case "fetchlogs":
		return f.FetchLogs
	default:
		return true
	}
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// QueueSize bounds records waiting for delivery. Overflow drops the
	// record and logs it locally.
	QueueSize int `yaml:"queue_size"`

	// DeliveryTimeout bounds a single delivery including retries.
	DeliveryTimeout Duration `yaml:"delivery_timeout"`

	// RetryAttempts is the number of webhook attempts per record.
	RetryAttempts int `yaml:"retry_attempts"`

	// Spool enables the local JSONL spool under paths.state/audit.
	Spool bool `yaml:"spool"`

	// SpoolMaxBytes rotates the spool file past this size.
	SpoolMaxBytes int64 `yaml:"spool_max_bytes"`
}

// RebootMethod selects how the host is rebooted.
type RebootMethod string

const (
	// RebootCommand runs Reboot.Command (default "sudo reboot").
	RebootCommand RebootMethod = "command"

	// RebootSyscall calls reboot(2) directly. Requires CAP_SYS_BOOT.
	RebootSyscall RebootMethod = "syscall"
)

// RebootConfig configures host reboots.
type RebootConfig struct {
	// Method is "command" (default) or "syscall".
	Method RebootMethod `yaml:"method"`

	// Command is the reboot command for the "command" method.
	Command []string `yaml:"command"`

	// StopTimeout bounds the whole stop phase before a reboot.
	StopTimeout Duration `yaml:"stop_timeout"`

	// MarkerMaxAge ignores reboot markers older than this at startup.
	MarkerMaxAge Duration `yaml:"marker_max_age"`
}

// DiscordConfig configures the Discord bot.
type DiscordConfig struct {
	// APIBase is the REST base URL.
	APIBase string `yaml:"api_base"`

	// GatewayURL is used when the gateway URL cannot be discovered.
	GatewayURL string `yaml:"gateway_url"`

	// ConfirmTimeout is how long a confirmation prompt stays valid.
	ConfirmTimeout Duration `yaml:"confirm_timeout"`

	// ReconnectMax caps the gateway reconnect backoff.
	ReconnectMax Duration `yaml:"reconnect_max"`

	// Activity is the presence text shown while online.
	Activity string `yaml:"activity"`
}

// ControlConfig configures the local control socket.
type ControlConfig struct {
	// Socket is the unix socket path. Empty disables the socket.
	Socket string `yaml:"socket"`

	// Roles are the role ids granted to local callers. Local callers
	// pass through the same permission checks as Discord users.
	Roles []string `yaml:"roles"`
}

// Default returns the defaults applied before the config file.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			State:       "${HOME}/.local/state/warden",
			Permissions: "/etc/warden/permission.json",
		},
		Session: SessionConfig{
			Name:               "scpsl",
			Directory:          "/home/steam/steamcmd/scpsl",
			Command:            []string{"./LocalAdmin", "7777"},
			Port:               7777,
			ProcessPattern:     "SCPSL.x86_64",
			StartTimeout:       Duration(60 * time.Second),
			StopTimeout:        Duration(60 * time.Second),
			KillTimeout:        Duration(15 * time.Second),
			SoftRestartTimeout: Duration(5 * time.Second),
			VisibilityTimeout:  Duration(5 * time.Second),
			ConsoleSettle:      Duration(2 * time.Second),
			PollInterval:       Duration(time.Second),
			MarkerPollInterval: Duration(200 * time.Millisecond),
			StopEscalation:     EscalateKill,
		},
		Logs: LogsConfig{
			Source:          LogSourcePane,
			Lines:           1000,
			ReadTimeout:     Duration(2 * time.Second),
			InlineLimit:     2000,
			AttachmentLimit: 10000,
		},
		Audit: AuditConfig{
			QueueSize:       256,
			DeliveryTimeout: Duration(10 * time.Second),
			RetryAttempts:   3,
			SpoolMaxBytes:   4 << 20,
		},
		Reboot: RebootConfig{
			Method:       RebootCommand,
			Command:      []string{"sudo", "reboot"},
			StopTimeout:  Duration(90 * time.Second),
			MarkerMaxAge: Duration(time.Hour),
		},
		Discord: DiscordConfig{
			APIBase:        "https://discord.com/api/v10",
			GatewayURL:     "wss://gateway.discord.gg/?v=10&encoding=json",
			ConfirmTimeout: Duration(60 * time.Second),
			ReconnectMax:   Duration(2 * time.Minute),
			Activity:       "SCP: Secret Laboratory",
		},
		Control: ControlConfig{
			Socket: "${WARDEN_STATE}/control.sock",
		},
	}
}

// Load loads the file named by WARDEN_CONFIG. There is no fallback.
func Load() (*Config, error) {
	configPath := os.Getenv("WARDEN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over [Default], expands path
// variables and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["WARDEN_STATE"] = c.Paths.State

	c.Paths.Permissions = expandVars(c.Paths.Permissions, vars)
	c.Session.Directory = expandVars(c.Session.Directory, vars)
	c.Session.TmuxSocket = expandVars(c.Session.TmuxSocket, vars)
	c.Logs.File = expandVars(c.Logs.File, vars)
	c.Control.Socket = expandVars(c.Control.Socket, vars)
}

// SpoolDir is where the audit spool lives.
func (c *Config) SpoolDir() string {
	return filepath.Join(c.Paths.State, "audit")
}

// RebootMarkerPath is the reboot marker file.
func (c *Config) RebootMarkerPath() string {
	return filepath.Join(c.Paths.State, "reboot-marker.json")
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Paths.Permissions == "" {
		errs = append(errs, errors.New("paths.permissions is required"))
	}
	if c.Session.Name == "" {
		errs = append(errs, errors.New("session.name is required"))
	}
	if len(c.Session.Command) == 0 {
		errs = append(errs, errors.New("session.command is required"))
	}
	if c.Session.Port <= 0 || c.Session.Port > 65535 {
		errs = append(errs, fmt.Errorf("session.port %d out of range", c.Session.Port))
	}
	if c.Session.ProcessPattern == "" {
		errs = append(errs, errors.New("session.process_pattern is required"))
	}
	switch c.Session.StopEscalation {
	case EscalateKill, EscalateManual:
	default:
		errs = append(errs, fmt.Errorf("session.stop_escalation %q: want kill or manual", c.Session.StopEscalation))
	}

	positive := map[string]Duration{
		"session.start_timeout":        c.Session.StartTimeout,
		"session.stop_timeout":         c.Session.StopTimeout,
		"session.kill_timeout":         c.Session.KillTimeout,
		"session.soft_restart_timeout": c.Session.SoftRestartTimeout,
		"session.visibility_timeout":   c.Session.VisibilityTimeout,
		"session.poll_interval":        c.Session.PollInterval,
		"session.marker_poll_interval": c.Session.MarkerPollInterval,
		"logs.read_timeout":            c.Logs.ReadTimeout,
		"audit.delivery_timeout":       c.Audit.DeliveryTimeout,
		"reboot.stop_timeout":          c.Reboot.StopTimeout,
		"discord.confirm_timeout":      c.Discord.ConfirmTimeout,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch c.Logs.Source {
	case LogSourcePane:
	case LogSourceFile:
		if c.Logs.File == "" {
			errs = append(errs, errors.New("logs.file is required when logs.source is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("logs.source %q: want pane or file", c.Logs.Source))
	}
	if c.Logs.Lines <= 0 {
		errs = append(errs, errors.New("logs.lines must be positive"))
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, errors.New("audit.queue_size must be positive"))
	}
	if c.Audit.RetryAttempts <= 0 {
		errs = append(errs, errors.New("audit.retry_attempts must be positive"))
	}

	switch c.Reboot.Method {
	case RebootCommand:
		if len(c.Reboot.Command) == 0 {
			errs = append(errs, errors.New("reboot.command is required for the command method"))
		}
	case RebootSyscall:
	default:
		errs = append(errs, fmt.Errorf("reboot.method %q: want command or syscall", c.Reboot.Method))
	}

	return errors.Join(errs...)
}
