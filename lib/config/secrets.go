// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets are the credentials read from the environment.
type Secrets struct {
	// DiscordToken is the bot token.
	DiscordToken string `env:"DISCORD_TOKEN"`

	// GuildID scopes slash command registration to one guild. Empty
	// registers global commands.
	GuildID string `env:"GUILD_ID"`

	// WebhookURL receives audit embeds. Empty disables the webhook sink.
	WebhookURL string `env:"WEBHOOK_URL"`
}

// LoadSecrets reads [Secrets] from the process environment.
func LoadSecrets() (Secrets, error) {
	var secrets Secrets
	if err := env.Parse(&secrets); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return secrets, nil
}

// LoadSecretsFrom reads [Secrets] from an explicit environment map.
func LoadSecretsFrom(environment map[string]string) (Secrets, error) {
	var secrets Secrets
	if err := env.ParseWithOptions(&secrets, env.Options{Environment: environment}); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return secrets, nil
}

// String hides credential values.
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{DiscordToken:%s GuildID:%s WebhookURL:%s}",
		redact(s.DiscordToken), s.GuildID, redact(s.WebhookURL))
}

func redact(value string) string {
	if value == "" {
		return "<unset>"
	}
	return "<redacted>"
}
