package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"quickchat/internal/pkg/logx"
	"quickchat/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	reconnectBase    = 500 * time.Millisecond
	reconnectCap     = 15 * time.Second
	reconnectJitter  = 20
	handshakeTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send while no socket is open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost is reported to the handler when an established socket drops.
	ErrConnectionLost = errors.New("connection lost")
)

// EventHandler receives everything a Transport observes.
type EventHandler interface {
	HandleConnected()
	HandleEvent(env protocol.Envelope)
	HandleConnectError(err error)
}

// Sender emits one event to the relay.
type Sender interface {
	Send(eventType protocol.EventType, payload any) error
}

// WSTransport is the client's single relay connection. It dials, registers the identity,
// and reconnects with exponential backoff until its context ends. register is sent on every
// successful connect, so the relay re-learns the identity after a drop.
type WSTransport struct {
	url    string
	userID string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	logger zerolog.Logger
}

// NewWSTransport prepares a transport for the relay at wsURL (e.g. ws://localhost:5000/ws).
func NewWSTransport(wsURL, userID string) *WSTransport {
	return &WSTransport{
		url:    wsURL,
		userID: userID,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logx.Component("Transport").With().Str("user_id", userID).Logger(),
	}
}

// Run keeps the connection alive until ctx is cancelled, delivering events to h.
func (t *WSTransport) Run(ctx context.Context, h EventHandler) {
	for {
		conn, err := t.dial(ctx, h)
		if err != nil {
			return
		}

		t.serve(ctx, conn, h)

		if ctx.Err() != nil {
			return
		}
		h.HandleConnectError(ErrConnectionLost)
	}
}

// dial retries until a socket opens or ctx ends. Each failure is reported to h.
func (t *WSTransport) dial(ctx context.Context, h EventHandler) (*websocket.Conn, error) {
	backoff := retry.NewExponential(reconnectBase)
	backoff = retry.WithCappedDuration(reconnectCap, backoff)
	backoff = retry.WithJitterPercent(reconnectJitter, backoff)

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Debug().Err(err).Msg("Dial failed, retrying")
			h.HandleConnectError(err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

// serve registers on conn and reads from it until it fails or ctx ends.
func (t *WSTransport) serve(ctx context.Context, conn *websocket.Conn, h EventHandler) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := t.Send(protocol.EventRegister, protocol.RegisterPayload{UserID: t.userID}); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to register")
		return
	}
	h.HandleConnected()
	t.logger.Info().Msg("Connected and registered")

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Info().Err(err).Msg("Connection dropped")
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		h.HandleEvent(env)
	}
}

// Send writes one event. It fails with ErrNotConnected while the transport is between connections.
func (t *WSTransport) Send(eventType protocol.EventType, payload any) error {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}
