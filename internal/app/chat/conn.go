package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quickchat/internal/pkg/logx"
	"quickchat/internal/protocol"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds inbound frames. It leaves room for a maximum-size image of multi-byte
	// characters plus the envelope; anything larger is a protocol violation and closes the connection.
	maxFrameSize = 4 << 20

	// sendQueueSize is the number of outbound frames buffered per connection.
	sendQueueSize = 256
)

// Conn is one relay connection: Unregistered until a register event binds a user id, Closed
// once its read pump exits.
type Conn struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// send is written only by the Hub goroutine and closed by it exactly once.
	send      chan []byte
	closeOnce sync.Once

	// userID is owned by the read pump goroutine.
	userID string

	logger zerolog.Logger
}

// NewConn wraps an upgraded WebSocket. Pass it to Hub.Attach, then start WritePump and ReadPump.
func NewConn(hub *Hub, wsConn *websocket.Conn, remoteIP string) *Conn {
	id := uuid.NewString()

	return &Conn{
		id:   id,
		hub:  hub,
		conn: wsConn,
		send: make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().
			Str("conn_id", id).
			Str("remote_ip", logx.AnonymizeIP(remoteIP)).
			Logger(),
	}
}

// ID returns the connection's log identifier.
func (c *Conn) ID() string {
	return c.id
}

// enqueue offers frame to the send queue without blocking. Called only from the Hub goroutine.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump reads frames until the connection fails or closes, then detaches from the Hub.
func (c *Conn) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			return
		}

		c.processInbound(frame)
	}
}

func (c *Conn) cleanupOnDisconnect() {
	c.logger.Debug().Str("user_id", c.userID).Msg("Connection cleanup starting.")

	c.hub.Detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error")
	}
}

// processInbound dispatches one client frame.
func (c *Conn) processInbound(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Client sent invalid JSON")
		return
	}

	switch env.Type {
	case protocol.EventRegister:
		c.handleRegister(env)

	case protocol.EventMessageSend:
		c.handleSend(env)

	default:
		c.logger.Warn().Str("event", string(env.Type)).Msg("Client sent unsupported event type")
	}
}

func (c *Conn) handleRegister(env protocol.Envelope) {
	var payload protocol.RegisterPayload
	if err := env.DecodePayload(&payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid register payload")
		return
	}

	if payload.UserID == "" {
		return
	}

	if c.userID != "" {
		c.logger.Debug().
			Str("user_id", c.userID).
			Str("requested_user_id", payload.UserID).
			Msg("Connection already registered; ignoring register.")
		return
	}

	c.userID = payload.UserID
	c.logger = c.logger.With().Str("user_id", c.userID).Logger()
	c.hub.Register(c, c.userID)
}

func (c *Conn) handleSend(env protocol.Envelope) {
	if c.userID == "" {
		c.logger.Debug().Msg("Ignoring message from unregistered connection.")
		return
	}

	var payload protocol.SendPayload
	if err := env.DecodePayload(&payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid message:send payload")
		return
	}

	c.hub.Send(c, payload)
}

// WritePump drains the send queue into the WebSocket and keeps the connection alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueued(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueued writes one frame, or a close frame once the queue is closed.
// It returns false when the pump should stop.
func (c *Conn) writeQueued(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Conn) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
