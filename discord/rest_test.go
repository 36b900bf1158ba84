// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/testutil"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type recordedRequest struct {
	Method        string
	Path          string
	ContentType   string
	Authorization string
	Body          []byte
}

// restRecorder is a fake Discord REST API. Responses come from reply,
// or default to an empty success.
type restRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	reply    func(request recordedRequest) (int, string)
	server   *httptest.Server
}

func newRESTRecorder(t *testing.T) *restRecorder {
	t.Helper()
	recorder := &restRecorder{}
	recorder.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		request := recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			ContentType:   r.Header.Get("Content-Type"),
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		}
		recorder.mu.Lock()
		recorder.requests = append(recorder.requests, request)
		reply := recorder.reply
		recorder.mu.Unlock()

		status, response := http.StatusOK, `{"id":"message-1"}`
		if r.Method == http.MethodDelete || strings.HasSuffix(r.URL.Path, "/callback") {
			status, response = http.StatusNoContent, ""
		}
		if reply != nil {
			status, response = reply(request)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(recorder.server.Close)
	return recorder
}

func (r *restRecorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func (r *restRecorder) client(t *testing.T, fake *clock.FakeClock) *Client {
	t.Helper()
	config := ClientConfig{BaseURL: r.server.URL, Token: "bot-token"}
	if fake != nil {
		config.Clock = fake
	}
	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// multipartParts decodes a multipart body into part name -> content
// and part name -> filename.
func multipartParts(t *testing.T, request recordedRequest) (map[string][]byte, map[string]string) {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(request.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type %q is not multipart: %v", request.ContentType, err)
	}
	reader := multipart.NewReader(bytes.NewReader(request.Body), params["boundary"])
	contents := make(map[string][]byte)
	filenames := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		data, _ := io.ReadAll(part)
		contents[part.FormName()] = data
		filenames[part.FormName()] = part.FileName()
	}
	return contents, filenames
}

func TestBulkOverwriteGuildCommands(t *testing.T) {
	recorder := newRESTRecorder(t)
	recorder.reply = func(request recordedRequest) (int, string) {
		return http.StatusOK, string(request.Body)
	}
	client := recorder.client(t, nil)

	commands := []ApplicationCommand{{Name: "help", Description: "Show commands", Type: 1}}
	registered, err := client.BulkOverwriteGuildCommands(context.Background(), "app", "guild", commands)
	if err != nil {
		t.Fatalf("BulkOverwriteGuildCommands: %v", err)
	}
	if len(registered) != 1 || registered[0].Name != "help" {
		t.Fatalf("registered = %+v", registered)
	}

	request := recorder.all()[0]
	if request.Method != http.MethodPut || request.Path != "/applications/app/guilds/guild/commands" {
		t.Fatalf("request = %s %s", request.Method, request.Path)
	}
	if request.Authorization != "Bot bot-token" {
		t.Fatalf("authorization = %q", request.Authorization)
	}
}

func TestEditOriginalResponseUploadsFiles(t *testing.T) {
	recorder := newRESTRecorder(t)
	client := recorder.client(t, nil)

	params := MessageParams{Content: "Console output attached."}
	file := File{Name: "command_output.txt", Content: []byte("line 1\nline 2\n")}
	if _, err := client.EditOriginalResponse(context.Background(), "app", "interaction-token", params, file); err != nil {
		t.Fatalf("EditOriginalResponse: %v", err)
	}

	request := recorder.all()[0]
	if request.Method != http.MethodPatch || request.Path != "/webhooks/app/interaction-token/messages/@original" {
		t.Fatalf("request = %s %s", request.Method, request.Path)
	}
	contents, filenames := multipartParts(t, request)
	var payload MessageParams
	if err := json.Unmarshal(contents["payload_json"], &payload); err != nil {
		t.Fatalf("payload_json: %v", err)
	}
	if payload.Content != "Console output attached." || len(payload.Attachments) != 1 || payload.Attachments[0].Filename != "command_output.txt" {
		t.Fatalf("payload = %+v", payload)
	}
	if string(contents["files[0]"]) != "line 1\nline 2\n" || filenames["files[0]"] != "command_output.txt" {
		t.Fatalf("file part = %q (%q)", contents["files[0]"], filenames["files[0]"])
	}
}

func TestAPIErrorParsing(t *testing.T) {
	recorder := newRESTRecorder(t)
	recorder.reply = func(recordedRequest) (int, string) {
		return http.StatusNotFound, `{"message": "Unknown Webhook", "code": 10015}`
	}
	client := recorder.client(t, nil)

	err := client.DeleteOriginalResponse(context.Background(), "app", "secret-token")
	if !IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	var apiError *APIError
	if !errors.As(err, &apiError) || apiError.Code != 10015 || apiError.Message != "Unknown Webhook" {
		t.Fatalf("api error = %+v", apiError)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks interaction token: %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	recorder := newRESTRecorder(t)
	var calls int
	recorder.reply = func(recordedRequest) (int, string) {
		calls++
		if calls == 1 {
			return http.StatusTooManyRequests, `{"message": "You are being rate limited.", "retry_after": 1.5, "global": false}`
		}
		return http.StatusNoContent, ""
	}
	fake := clock.Fake(epoch)
	client := recorder.client(t, fake)

	done := make(chan error, 1)
	go func() {
		done <- client.CreateInteractionResponse(context.Background(), "1", "token", InteractionResponse{Type: CallbackDeferredUpdateMessage})
	}()
	fake.WaitForTimers(1)
	fake.Advance(1500 * time.Millisecond)
	if err := testutil.RequireReceive(t, done, 5*time.Second, "request did not finish"); err != nil {
		t.Fatalf("CreateInteractionResponse: %v", err)
	}
	if got := len(recorder.all()); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestGatewayURLAddsQuery(t *testing.T) {
	recorder := newRESTRecorder(t)
	recorder.reply = func(recordedRequest) (int, string) {
		return http.StatusOK, `{"url": "wss://gateway.discord.gg", "shards": 1}`
	}
	url, err := recorder.client(t, nil).GatewayURL(context.Background())
	if err != nil {
		t.Fatalf("GatewayURL: %v", err)
	}
	if url != "wss://gateway.discord.gg/?v=10&encoding=json" {
		t.Fatalf("url = %q", url)
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"/interactions/123/tok/callback":       "/interactions/123/<token>/callback",
		"/webhooks/app/tok/messages/@original": "/webhooks/app/<token>/messages/@original",
		"/applications/app/guilds/g/commands":  "/applications/app/guilds/g/commands",
	}
	for input, want := range tests {
		if got := redactPath(input); got != want {
			t.Errorf("redactPath(%q) = %q, want %q", input, got, want)
		}
	}
}
