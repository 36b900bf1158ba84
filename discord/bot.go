// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/lib/clock"
)

// Component custom id prefixes for confirmation buttons.
const (
	confirmPrefix = "warden:confirm:"
	cancelPrefix  = "warden:cancel:"
)

// Dispatcher runs invocations and answers confirmations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv dispatch.Invocation, responder dispatch.Responder)
	Confirm(ctx context.Context, token, callerID string, accept bool, responder dispatch.Responder)
}

// BotConfig configures a [Bot].
type BotConfig struct {
	Client     *Client
	Dispatcher Dispatcher

	// Token authenticates the gateway session.
	Token string

	// GuildID is the guild commands are registered in. Empty registers
	// global commands.
	GuildID string

	// GatewayURL is used when /gateway/bot cannot be reached.
	GatewayURL string

	// Commands are registered on READY. Defaults to dispatch.Commands().
	Commands []dispatch.Command

	// Activity is the "Playing" text shown while online.
	Activity string

	ReconnectMax time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bot serves warden's slash commands.
type Bot struct {
	config BotConfig
	client *Client
	logger *slog.Logger

	mu            sync.Mutex
	gateway       *Gateway
	applicationID string
}

// NewBot returns a Bot. Call Run to connect.
func NewBot(config BotConfig) (*Bot, error) {
	if config.Client == nil {
		return nil, errors.New("discord: Client is required")
	}
	if config.Dispatcher == nil {
		return nil, errors.New("discord: Dispatcher is required")
	}
	if config.Commands == nil {
		config.Commands = dispatch.Commands()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Bot{
		config: config,
		client: config.Client,
		logger: config.Logger,
	}, nil
}

// Run connects the gateway and serves interactions until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	url, err := b.client.GatewayURL(ctx)
	if err != nil {
		if b.config.GatewayURL == "" {
			return err
		}
		b.logger.Warn("gateway discovery failed, using configured URL", "error", err)
		url = b.config.GatewayURL
	}

	gateway, err := NewGateway(GatewayConfig{
		URL:          url,
		Token:        b.config.Token,
		Intents:      IntentGuilds,
		Handler:      b.HandleEvent,
		Presence:     b.onlinePresence(),
		ReconnectMax: b.config.ReconnectMax,
		Clock:        b.config.Clock,
		Logger:       b.logger,
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.gateway = gateway
	b.mu.Unlock()
	return gateway.Run(ctx)
}

// SetInvisible hides the bot's presence. It runs before a host reboot
// so the bot does not appear online while the host is down.
func (b *Bot) SetInvisible(ctx context.Context) error {
	b.mu.Lock()
	gateway := b.gateway
	b.mu.Unlock()
	if gateway == nil {
		return ErrNotConnected
	}
	return gateway.UpdatePresence(ctx, Presence{Status: StatusInvisible, Activities: []Activity{}})
}

func (b *Bot) onlinePresence() *Presence {
	presence := &Presence{Status: StatusOnline, Activities: []Activity{}}
	if b.config.Activity != "" {
		presence.Activities = append(presence.Activities, Activity{Name: b.config.Activity})
	}
	return presence
}

// HandleEvent handles one gateway dispatch event.
func (b *Bot) HandleEvent(ctx context.Context, event Event) {
	switch event.Type {
	case "READY":
		var ready Ready
		if err := json.Unmarshal(event.Data, &ready); err != nil {
			b.logger.Error("decoding READY", "error", err)
			return
		}
		b.mu.Lock()
		b.applicationID = ready.Application.ID
		b.mu.Unlock()
		b.logger.Info("discord session ready", "user", ready.User.Username, "application_id", ready.Application.ID)
		b.registerCommands(ctx, ready.Application.ID)

	case "INTERACTION_CREATE":
		var interaction Interaction
		if err := json.Unmarshal(event.Data, &interaction); err != nil {
			b.logger.Error("decoding interaction", "error", err)
			return
		}
		switch interaction.Type {
		case InteractionApplicationCmd:
			b.handleCommand(ctx, interaction)
		case InteractionMessageComponent:
			b.handleComponent(ctx, interaction)
		}
	}
}

func (b *Bot) registerCommands(ctx context.Context, applicationID string) {
	commands := ApplicationCommands(b.config.Commands)
	var registered []ApplicationCommand
	var err error
	if b.config.GuildID == "" {
		registered, err = b.client.BulkOverwriteGlobalCommands(ctx, applicationID, commands)
	} else {
		registered, err = b.client.BulkOverwriteGuildCommands(ctx, applicationID, b.config.GuildID, commands)
	}
	if err != nil {
		b.logger.Error("registering slash commands", "error", err, "guild_id", b.config.GuildID)
		return
	}
	b.logger.Info("slash commands registered", "count", len(registered), "guild_id", b.config.GuildID)
}

func (b *Bot) handleCommand(ctx context.Context, interaction Interaction) {
	if interaction.Data == nil {
		return
	}
	user, roles := interaction.Caller()
	logger := b.logger.With("command", interaction.Data.Name, "caller_id", user.ID)
	if b.config.GuildID != "" && interaction.GuildID != b.config.GuildID {
		// Roles only mean something in the configured guild.
		roles = nil
	}

	command, known := dispatch.LookupCommand(interaction.Data.Name)
	ephemeral := !known || command.Ephemeral
	ack := InteractionResponse{Type: CallbackDeferredChannelMessage, Data: &MessageParams{}}
	if ephemeral {
		ack.Data.Flags = MessageFlagEphemeral
	}
	if err := b.client.CreateInteractionResponse(ctx, interaction.ID, interaction.Token, ack); err != nil {
		logger.Error("acknowledging interaction", "error", err)
		return
	}

	inv := dispatch.Invocation{
		CommandKey: interaction.Data.Name,
		CallerID:   user.ID,
		CallerName: user.DisplayName(),
		Roles:      roles,
		Options:    optionValues(interaction.Data.Options),
	}
	responder := &commandResponder{
		client:        b.client,
		applicationID: interaction.ApplicationID,
		token:         interaction.Token,
		ephemeral:     ephemeral,
	}
	b.config.Dispatcher.Dispatch(ctx, inv, responder)
}

func (b *Bot) handleComponent(ctx context.Context, interaction Interaction) {
	if interaction.Data == nil {
		return
	}
	user, _ := interaction.Caller()
	logger := b.logger.With("custom_id", interaction.Data.CustomID, "caller_id", user.ID)

	var token string
	var accept bool
	switch customID := interaction.Data.CustomID; {
	case strings.HasPrefix(customID, confirmPrefix):
		token, accept = strings.TrimPrefix(customID, confirmPrefix), true
	case strings.HasPrefix(customID, cancelPrefix):
		token = strings.TrimPrefix(customID, cancelPrefix)
	default:
		logger.Warn("ignoring unknown component")
		return
	}

	ack := InteractionResponse{Type: CallbackDeferredUpdateMessage}
	if err := b.client.CreateInteractionResponse(ctx, interaction.ID, interaction.Token, ack); err != nil {
		logger.Error("acknowledging component", "error", err)
		return
	}
	responder := &componentResponder{
		client:        b.client,
		applicationID: interaction.ApplicationID,
		token:         interaction.Token,
	}
	b.config.Dispatcher.Confirm(ctx, token, user.ID, accept, responder)
}

// ApplicationCommands converts command descriptions to slash command
// registrations.
func ApplicationCommands(commands []dispatch.Command) []ApplicationCommand {
	registrations := make([]ApplicationCommand, 0, len(commands))
	for _, command := range commands {
		registration := ApplicationCommand{
			Name:        command.Key,
			Description: command.Description,
			Type:        1,
		}
		for _, option := range command.Options {
			declared := ApplicationCommandOption{
				Type:        OptionTypeString,
				Name:        option.Name,
				Description: option.Description,
				Required:    option.Required,
			}
			if option.Type == dispatch.OptionBoolean {
				declared.Type = OptionTypeBoolean
			}
			for _, choice := range option.Choices {
				declared.Choices = append(declared.Choices, OptionChoice{Name: choice, Value: choice})
			}
			registration.Options = append(registration.Options, declared)
		}
		registrations = append(registrations, registration)
	}
	return registrations
}

// optionValues flattens interaction options to strings. Booleans
// become "true" or "false".
func optionValues(options []InteractionOption) map[string]string {
	if len(options) == 0 {
		return nil
	}
	values := make(map[string]string, len(options))
	for _, option := range options {
		var text string
		var flag bool
		switch {
		case json.Unmarshal(option.Value, &text) == nil:
			values[option.Name] = text
		case json.Unmarshal(option.Value, &flag) == nil:
			values[option.Name] = strconv.FormatBool(flag)
		default:
			values[option.Name] = string(option.Value)
		}
	}
	return values
}
