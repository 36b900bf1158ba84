// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/version"
)

// DefaultAPIBase is the versioned REST root.
const DefaultAPIBase = "https://discord.com/api/v10"

// maxResponseSize bounds REST response bodies.
const maxResponseSize = 4 << 20

// maxRateLimitWait caps how long a request waits out a 429 before
// giving up.
const maxRateLimitWait = 30 * time.Second

// APIError is a non-2xx REST response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int

	// Code is Discord's JSON error code, zero when absent.
	Code    int
	Message string

	// RetryAfter is set on 429 responses.
	RetryAfter time.Duration
}

func (err *APIError) Error() string {
	if err.Code != 0 {
		return fmt.Sprintf("discord: %s %s: HTTP %d: %s (code %d)", err.Method, err.Path, err.StatusCode, err.Message, err.Code)
	}
	return fmt.Sprintf("discord: %s %s: HTTP %d: %s", err.Method, err.Path, err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a 404, which Discord returns for
// interaction tokens that have expired.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	// BaseURL defaults to [DefaultAPIBase].
	BaseURL string

	// Token is the bot token, sent as "Bot <token>".
	Token string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is a Discord REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("discord: Token is required")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: config.HTTPClient,
		clock:      config.Clock,
		logger:     config.Logger,
	}, nil
}

// GatewayURL returns the websocket URL from /gateway/bot with the
// version and encoding query set.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var response struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &response); err != nil {
		return "", err
	}
	if response.URL == "" {
		return "", errors.New("discord: gateway response has no url")
	}
	return response.URL + "/?v=10&encoding=json", nil
}

// BulkOverwriteGuildCommands replaces every guild command of the
// application with commands.
func (c *Client) BulkOverwriteGuildCommands(ctx context.Context, applicationID, guildID string, commands []ApplicationCommand) ([]ApplicationCommand, error) {
	var registered []ApplicationCommand
	path := fmt.Sprintf("/applications/%s/guilds/%s/commands", url.PathEscape(applicationID), url.PathEscape(guildID))
	if err := c.do(ctx, http.MethodPut, path, commands, &registered); err != nil {
		return nil, err
	}
	return registered, nil
}

// BulkOverwriteGlobalCommands replaces every global command of the
// application with commands.
func (c *Client) BulkOverwriteGlobalCommands(ctx context.Context, applicationID string, commands []ApplicationCommand) ([]ApplicationCommand, error) {
	var registered []ApplicationCommand
	path := fmt.Sprintf("/applications/%s/commands", url.PathEscape(applicationID))
	if err := c.do(ctx, http.MethodPut, path, commands, &registered); err != nil {
		return nil, err
	}
	return registered, nil
}

// CreateInteractionResponse answers an interaction. It must be called
// within three seconds of the interaction arriving.
func (c *Client) CreateInteractionResponse(ctx context.Context, interactionID, token string, response InteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(interactionID), url.PathEscape(token))
	return c.do(ctx, http.MethodPost, path, response, nil)
}

// EditOriginalResponse edits the message created by the interaction
// callback. Files are uploaded as attachments.
func (c *Client) EditOriginalResponse(ctx context.Context, applicationID, token string, params MessageParams, files ...File) (Message, error) {
	var message Message
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", url.PathEscape(applicationID), url.PathEscape(token))
	err := c.send(ctx, http.MethodPatch, path, params, files, &message)
	return message, err
}

// DeleteOriginalResponse deletes the message created by the
// interaction callback.
func (c *Client) DeleteOriginalResponse(ctx context.Context, applicationID, token string) error {
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", url.PathEscape(applicationID), url.PathEscape(token))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateFollowup sends a follow-up message for an interaction.
func (c *Client) CreateFollowup(ctx context.Context, applicationID, token string, params MessageParams, files ...File) (Message, error) {
	var message Message
	path := fmt.Sprintf("/webhooks/%s/%s", url.PathEscape(applicationID), url.PathEscape(token))
	err := c.send(ctx, http.MethodPost, path, params, files, &message)
	return message, err
}

// send issues a message request as JSON, or as multipart/form-data when
// files are attached.
func (c *Client) send(ctx context.Context, method, path string, params MessageParams, files []File, result any) error {
	if len(files) == 0 {
		return c.do(ctx, method, path, params, result)
	}
	params.Attachments = make([]AttachmentRef, len(files))
	for i, file := range files {
		params.Attachments[i] = AttachmentRef{ID: i, Filename: file.Name}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("discord: encoding message: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="payload_json"`)
	header.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("discord: building multipart body: %w", err)
	}
	part.Write(payload)
	for i, file := range files {
		part, err := writer.CreateFormFile(fmt.Sprintf("files[%d]", i), file.Name)
		if err != nil {
			return fmt.Errorf("discord: building multipart body: %w", err)
		}
		part.Write(file.Content)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("discord: building multipart body: %w", err)
	}
	return c.request(ctx, method, path, writer.FormDataContentType(), body.Bytes(), result)
}

// do issues a JSON request. A nil body sends no body; a nil result
// discards the response.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var encoded []byte
	contentType := ""
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("discord: encoding %s %s: %w", method, path, err)
		}
		contentType = "application/json"
	}
	return c.request(ctx, method, path, contentType, encoded, result)
}

// request sends one request, waiting out a single 429 before retrying.
func (c *Client) request(ctx context.Context, method, path, contentType string, body []byte, result any) error {
	err := c.attempt(ctx, method, path, contentType, body, result)
	var apiError *APIError
	if !errors.As(err, &apiError) || apiError.StatusCode != http.StatusTooManyRequests {
		return err
	}
	wait := apiError.RetryAfter
	if wait <= 0 || wait > maxRateLimitWait {
		return err
	}
	c.logger.Warn("discord rate limited", "method", method, "path", redactPath(path), "retry_after", wait)
	select {
	case <-c.clock.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.attempt(ctx, method, path, contentType, body, result)
}

func (c *Client) attempt(ctx context.Context, method, path, contentType string, body []byte, result any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("discord: building request: %w", err)
	}
	request.Header.Set("Authorization", "Bot "+c.token)
	request.Header.Set("User-Agent", "DiscordBot (https://github.com/wardenhq/warden, "+version.Version+")")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("discord: %s %s: %w", method, redactPath(path), err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("discord: reading response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return parseAPIError(method, redactPath(path), response.StatusCode, data)
	}
	if result == nil || response.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("discord: decoding %s %s response: %w", method, redactPath(path), err)
	}
	return nil
}

func parseAPIError(method, path string, status int, data []byte) *APIError {
	apiError := &APIError{Method: method, Path: path, StatusCode: status}
	var body struct {
		Code       int     `json:"code"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiError.Code = body.Code
		apiError.Message = body.Message
		apiError.RetryAfter = time.Duration(body.RetryAfter * float64(time.Second))
	} else {
		apiError.Message = strings.TrimSpace(string(data))
		if apiError.Message == "" {
			apiError.Message = http.StatusText(status)
		}
	}
	return apiError
}

// redactPath hides interaction tokens, which grant reply access to an
// interaction for fifteen minutes.
func redactPath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if (segments[i-1] == "webhooks" || segments[i-1] == "interactions") && i+1 < len(segments) {
			segments[i+1] = "<token>"
		}
	}
	return strings.Join(segments, "/")
}
