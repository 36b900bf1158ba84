// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import "encoding/json"

// Interaction types.
const (
	InteractionPing             = 1
	InteractionApplicationCmd   = 2
	InteractionMessageComponent = 3
)

// Interaction callback types.
const (
	CallbackChannelMessage         = 4
	CallbackDeferredChannelMessage = 5
	CallbackDeferredUpdateMessage  = 6
)

// Application command option types.
const (
	OptionTypeString  = 3
	OptionTypeBoolean = 5
)

// Component types and button styles.
const (
	ComponentActionRow = 1
	ComponentButton    = 2

	ButtonSecondary = 2
	ButtonDanger    = 4
)

// MessageFlagEphemeral shows a message only to the invoking user.
const MessageFlagEphemeral = 1 << 6

// User is a Discord user.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
}

// DisplayName is the global name when set, otherwise the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Member is a guild member.
type Member struct {
	User  *User    `json:"user,omitempty"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`
}

// Interaction is an INTERACTION_CREATE payload.
type Interaction struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Type          int              `json:"type"`
	Token         string           `json:"token"`
	GuildID       string           `json:"guild_id,omitempty"`
	ChannelID     string           `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Data          *InteractionData `json:"data,omitempty"`
}

// Caller returns the invoking user and their guild roles. Interactions
// outside a guild carry no roles.
func (i Interaction) Caller() (User, []string) {
	if i.Member != nil && i.Member.User != nil {
		return *i.Member.User, i.Member.Roles
	}
	if i.User != nil {
		return *i.User, nil
	}
	return User{}, nil
}

// InteractionData is the command or component data of an interaction.
type InteractionData struct {
	// Name is the slash command name.
	Name    string              `json:"name,omitempty"`
	Options []InteractionOption `json:"options,omitempty"`

	// CustomID identifies the clicked component.
	CustomID      string `json:"custom_id,omitempty"`
	ComponentType int    `json:"component_type,omitempty"`
}

// InteractionOption is one option value of a slash command.
type InteractionOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ApplicationCommand is a slash command registration.
type ApplicationCommand struct {
	ID          string                     `json:"id,omitempty"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Type        int                        `json:"type,omitempty"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// ApplicationCommandOption is one declared option of a slash command.
type ApplicationCommandOption struct {
	Type        int            `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Required    bool           `json:"required,omitempty"`
	Choices     []OptionChoice `json:"choices,omitempty"`
}

// OptionChoice is one allowed value of a string option.
type OptionChoice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Component is a message component. Only action rows and buttons are
// used.
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// AllowedMentions controls which mentions in content ping.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// AttachmentRef names an uploaded file in a message payload.
type AttachmentRef struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

// MessageParams is the body of a message create or edit. Components is
// a pointer so an edit can clear the buttons with an empty slice.
type MessageParams struct {
	Content         string           `json:"content,omitempty"`
	Flags           int              `json:"flags,omitempty"`
	Components      *[]Component     `json:"components,omitempty"`
	Attachments     []AttachmentRef  `json:"attachments,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

// File is an attachment uploaded with a message.
type File struct {
	Name    string
	Content []byte
}

// InteractionResponse is an interaction callback body.
type InteractionResponse struct {
	Type int            `json:"type"`
	Data *MessageParams `json:"data,omitempty"`
}

// Message is the subset of a message object warden reads.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// Activity is a presence activity.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Presence statuses.
const (
	StatusOnline    = "online"
	StatusInvisible = "invisible"
)

// Presence is a gateway presence update.
type Presence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// Ready is the READY event payload.
type Ready struct {
	SessionID   string `json:"session_id"`
	User        User   `json:"user"`
	Application struct {
		ID string `json:"id"`
	} `json:"application"`
}
