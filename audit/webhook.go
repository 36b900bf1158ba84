// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// Embed colors and titles per outcome.
const (
	colorSuccess = 0x00ff00
	colorDenied  = 0xff0000
	colorFailed  = 0xffa500
)

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL string

	// Client sends requests. Nil uses a client with a 10 second
	// timeout.
	Client *http.Client

	// Attempts is the number of tries per record. Zero means 3.
	Attempts int

	// Clock paces retry backoff.
	Clock clock.Clock
}

// WebhookSink posts records to a Discord webhook as embeds. Transient
// failures (transport errors, 429, 5xx) are retried with a backoff of
// 1s, 2s, 4s between attempts.
type WebhookSink struct {
	url      string
	client   *http.Client
	attempts int
	clock    clock.Clock
}

// NewWebhookSink returns a sink posting to config.URL.
func NewWebhookSink(config WebhookConfig) *WebhookSink {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if config.Attempts <= 0 {
		config.Attempts = 3
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &WebhookSink{
		url:      config.URL,
		client:   config.Client,
		attempts: config.Attempts,
		clock:    config.Clock,
	}
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Footer    *embedFooter `json:"footer,omitempty"`
	Timestamp string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Embed field values are limited to 1024 characters by Discord.
const maxFieldValue = 1024

func field(name, value string, inline bool) embedField {
	if value == "" {
		value = "none"
	}
	if runes := []rune(value); len(runes) > maxFieldValue {
		value = string(runes[:maxFieldValue-3]) + "..."
	}
	return embedField{Name: name, Value: value, Inline: inline}
}

// roleMentions renders role ids as Discord role mentions.
func roleMentions(roles []string) string {
	mentions := make([]string, len(roles))
	for i, role := range roles {
		mentions[i] = "<@&" + role + ">"
	}
	return strings.Join(mentions, ", ")
}

func buildEmbed(record Record) embed {
	e := embed{
		Fields: []embedField{
			field("User", fmt.Sprintf("%s (%s)", record.CallerName, record.CallerID), true),
			field("Command", record.CommandKey, true),
		},
		Footer:    &embedFooter{Text: fmt.Sprintf("#%d %s", record.Sequence, record.ID)},
		Timestamp: record.Timestamp.UTC().Format(time.RFC3339),
	}
	switch record.Outcome.Kind {
	case Success:
		e.Title, e.Color = "Command Used", colorSuccess
		e.Fields = append(e.Fields, field("Access Granted By Role", roleMentions(record.Roles), true))
	case Denied:
		e.Title, e.Color = "Unauthorized Attempt", colorDenied
		e.Fields = append(e.Fields, field("Reason", record.Outcome.Reason, true))
	default:
		e.Title, e.Color = "Command Failed", colorFailed
		e.Fields = append(e.Fields, field("Reason", record.Outcome.Reason, false))
	}
	if record.ArgsSummary != "" {
		e.Fields = append(e.Fields, field("Arguments", record.ArgsSummary, false))
	}
	return e
}

// Deliver posts record, retrying transient failures until ctx ends or
// attempts run out.
func (s *WebhookSink) Deliver(ctx context.Context, record Record) error {
	body, err := json.Marshal(webhookPayload{Embeds: []embed{buildEmbed(record)}})
	if err != nil {
		return fmt.Errorf("%w: encoding embed: %w", ErrDeliveryFailed, err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w (last error: %w)", ErrDeliveryFailed, ctx.Err(), lastErr)
			case <-s.clock.After(backoff):
			}
		}
		retry, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
}

// post sends one request and reports whether a failure is worth
// retrying.
func (s *WebhookSink) post(ctx context.Context, body []byte) (retry bool, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("posting webhook: %w", err)
	}
	defer response.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("webhook returned %s: %s", response.Status, strings.TrimSpace(string(detail)))
	return response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500, err
}
