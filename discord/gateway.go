// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wardenhq/warden/lib/clock"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// IntentGuilds is the only intent warden needs. Interactions arrive
// regardless of intents.
const IntentGuilds = 1 << 0

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	helloWait      = 30 * time.Second
)

// ErrNotConnected is returned by [Gateway.UpdatePresence] while no
// session is open.
var ErrNotConnected = errors.New("discord: gateway not connected")

// ErrAuthentication is returned by [Gateway.Run] when Discord rejects
// the token or intents. Reconnecting cannot help.
var ErrAuthentication = errors.New("discord: gateway rejected credentials")

// errZombie means a heartbeat went unacknowledged.
var errZombie = errors.New("heartbeat not acknowledged")

// errReconnect means Discord asked for a new connection.
var errReconnect = errors.New("reconnect requested")

// Event is a gateway dispatch event.
type Event struct {
	Type     string
	Sequence int64
	Data     json.RawMessage
}

// payload is one gateway frame.
type payload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Type     string          `json:"t,omitempty"`
}

// GatewayConfig configures a [Gateway].
type GatewayConfig struct {
	// URL is the websocket URL including version and encoding.
	URL string

	Token   string
	Intents int

	// Handler receives every dispatch event on its own goroutine.
	Handler func(ctx context.Context, event Event)

	// Presence is sent with identify. Later updates replace it.
	Presence *Presence

	// ReconnectMin and ReconnectMax bound the reconnect backoff.
	// Defaults are one second and two minutes.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Dialer defaults to websocket.DefaultDialer with TCP keepalive.
	Dialer *websocket.Dialer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Gateway keeps one websocket session to Discord open, reconnecting
// with exponential backoff until its context ends.
type Gateway struct {
	config GatewayConfig
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	outbound chan []byte
	presence *Presence
}

// NewGateway returns a Gateway.
func NewGateway(config GatewayConfig) (*Gateway, error) {
	if config.URL == "" {
		return nil, errors.New("discord: gateway URL is required")
	}
	if config.Token == "" {
		return nil, errors.New("discord: Token is required")
	}
	if config.Handler == nil {
		return nil, errors.New("discord: Handler is required")
	}
	if config.ReconnectMin <= 0 {
		config.ReconnectMin = time.Second
	}
	if config.ReconnectMax < config.ReconnectMin {
		config.ReconnectMax = 2 * time.Minute
	}
	if config.Dialer == nil {
		netDialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		config.Dialer = &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			NetDialContext:   netDialer.DialContext,
		}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Gateway{
		config:   config,
		clock:    config.Clock,
		logger:   config.Logger,
		presence: config.Presence,
	}, nil
}

// Run connects and serves sessions until ctx is cancelled or Discord
// rejects the credentials. The backoff resets after every session that
// completed the handshake.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := g.config.ReconnectMin
	for {
		identified, err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthentication) {
			return err
		}
		if identified {
			backoff = g.config.ReconnectMin
		}
		g.logger.Warn("discord gateway disconnected", "error", err, "retry_in", backoff)

		select {
		case <-g.clock.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, g.config.ReconnectMax)
	}
}

// UpdatePresence sends presence on the open session and keeps it for
// the identify of later sessions.
func (g *Gateway) UpdatePresence(ctx context.Context, presence Presence) error {
	data, err := json.Marshal(payload{Op: opPresenceUpdate, Data: mustMarshal(presence)})
	if err != nil {
		return fmt.Errorf("discord: encoding presence: %w", err)
	}

	g.mu.Lock()
	g.presence = &presence
	outbound := g.outbound
	g.mu.Unlock()

	if outbound == nil {
		return ErrNotConnected
	}
	select {
	case outbound <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session runs one websocket connection. identified reports whether
// the handshake completed.
func (g *Gateway) session(ctx context.Context) (identified bool, err error) {
	conn, response, err := g.config.Dialer.DialContext(ctx, g.config.URL, nil)
	if err != nil {
		if response != nil {
			return false, fmt.Errorf("dialing gateway (status %d): %w", response.StatusCode, err)
		}
		return false, fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	conn.SetReadDeadline(time.Now().Add(helloWait))
	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return false, fmt.Errorf("reading hello: %w", err)
	}
	if hello.Op != opHello {
		return false, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil || helloData.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("invalid hello payload: %s", hello.Data)
	}
	conn.SetReadDeadline(time.Time{})
	interval := time.Duration(helloData.HeartbeatInterval) * time.Millisecond

	outbound := make(chan []byte, 16)
	g.mu.Lock()
	presence := g.presence
	g.outbound = outbound
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.outbound = nil
		g.mu.Unlock()
	}()

	if err := g.write(conn, identifyPayload(g.config.Token, g.config.Intents, presence)); err != nil {
		return false, fmt.Errorf("sending identify: %w", err)
	}
	g.logger.Info("discord gateway connected", "heartbeat_interval", interval)

	frames := make(chan payload)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go g.readLoop(conn, frames, readErr, done)

	// The first heartbeat is jittered across one interval.
	firstBeat := g.clock.After(time.Duration(rand.Float64() * float64(interval)))
	var ticker *clock.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	var sequence *int64
	acknowledged := true
	beat := func() error {
		if !acknowledged {
			return errZombie
		}
		acknowledged = false
		return g.write(conn, mustMarshal(payload{Op: opHeartbeat, Data: mustMarshal(sequence)}))
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return identified, ctx.Err()

		case <-firstBeat:
			firstBeat = nil
			ticker = g.clock.NewTicker(interval)
			tick = ticker.C
			if err := beat(); err != nil {
				return identified, err
			}

		case <-tick:
			if err := beat(); err != nil {
				return identified, err
			}

		case data := <-outbound:
			if err := g.write(conn, data); err != nil {
				return identified, fmt.Errorf("writing: %w", err)
			}

		case err := <-readErr:
			return identified, classifyClose(err)

		case frame := <-frames:
			if frame.Sequence != nil {
				sequence = frame.Sequence
			}
			switch frame.Op {
			case opDispatch:
				if frame.Type == "READY" {
					identified = true
				}
				event := Event{Type: frame.Type, Data: frame.Data}
				if frame.Sequence != nil {
					event.Sequence = *frame.Sequence
				}
				go g.config.Handler(ctx, event)
			case opHeartbeat:
				acknowledged = true
				if err := beat(); err != nil {
					return identified, err
				}
			case opHeartbeatACK:
				acknowledged = true
			case opReconnect:
				return identified, errReconnect
			case opInvalidSession:
				return identified, errors.New("session invalidated")
			}
		}
	}
}

// readLoop forwards frames until the connection fails or done closes.
func (g *Gateway) readLoop(conn *websocket.Conn, frames chan<- payload, readErr chan<- error, done <-chan struct{}) {
	for {
		var frame payload
		if err := conn.ReadJSON(&frame); err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- frame:
		case <-done:
			return
		}
	}
}

func (g *Gateway) write(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// classifyClose maps close codes that reconnecting cannot fix to
// ErrAuthentication.
func classifyClose(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case 4004, 4010, 4011, 4012, 4013, 4014:
			return fmt.Errorf("%w: close %d %s", ErrAuthentication, closeErr.Code, closeErr.Text)
		}
	}
	return fmt.Errorf("reading: %w", err)
}

func identifyPayload(token string, intents int, presence *Presence) []byte {
	identify := struct {
		Token      string    `json:"token"`
		Intents    int       `json:"intents"`
		Properties any       `json:"properties"`
		Presence   *Presence `json:"presence,omitempty"`
	}{
		Token:   token,
		Intents: intents,
		Properties: map[string]string{
			"os":      "linux",
			"browser": "warden",
			"device":  "warden",
		},
		Presence: presence,
	}
	return mustMarshal(payload{Op: opIdentify, Data: mustMarshal(identify)})
}

// mustMarshal encodes values whose types cannot fail to marshal.
func mustMarshal(value any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("discord: marshaling %T: %v", value, err))
	}
	return data
}
