/*
Package chat implements the real-time relay: per-connection registration, presence broadcast,
and the message send path from validation through persistence to fan-out.

This file defines the Hub, the single event loop that owns the connection set, the per-user
broadcast groups and the presence registry. Every mutation of those structures, and every write
into a connection's send queue, happens on the Hub goroutine, so a presence change and the
snapshot broadcast after it are always consistent.
*/
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"quickchat/internal/app/presence"
	"quickchat/internal/app/store"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/protocol"
)

const (
	// deliveryChannelBuffer bounds outbound work queued for the Hub loop.
	deliveryChannelBuffer = 1024

	// persistTimeout bounds a single message write to the store.
	persistTimeout = 10 * time.Second
)

type registration struct {
	conn   *Conn
	userID string
}

// delivery is one outbound frame. It targets either the broadcast groups of userIDs or,
// when conn is set, that connection alone.
type delivery struct {
	frame   []byte
	userIDs []string
	conn    *Conn
}

// Hub coordinates all relay connections.
type Hub struct {
	store    store.ConversationStore
	presence *presence.Registry

	// conns maps every attached connection to the user id it registered as ("" until it does).
	conns map[*Conn]string

	// groups maps a user id to every connection registered under it.
	groups map[string]map[*Conn]struct{}

	attach     chan *Conn
	register   chan registration
	detach     chan *Conn
	deliveries chan delivery

	// ctx is cancelled when the Hub stops, aborting in-flight persistence.
	ctx    context.Context
	cancel context.CancelFunc

	stopChan chan struct{}
	stopped  chan struct{}

	logger zerolog.Logger
}

// NewHub creates a Hub persisting through st and tracking presence in registry.
// Call Run in its own goroutine before attaching connections.
func NewHub(st store.ConversationStore, registry *presence.Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		store:      st,
		presence:   registry,
		conns:      make(map[*Conn]string),
		groups:     make(map[string]map[*Conn]struct{}),
		attach:     make(chan *Conn),
		register:   make(chan registration),
		detach:     make(chan *Conn),
		deliveries: make(chan delivery, deliveryChannelBuffer),
		ctx:        ctx,
		cancel:     cancel,
		stopChan:   make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logx.Component("Hub"),
	}
}

// Presence exposes the registry for read-only queries such as health reporting.
func (h *Hub) Presence() *presence.Registry {
	return h.presence
}

// Run processes Hub events until Stop is called.
func (h *Hub) Run() {
	defer close(h.stopped)
	defer h.closeAll()

	h.logger.Info().Msg("Hub loop started.")

	for {
		select {
		case c := <-h.attach:
			h.conns[c] = ""
			h.logger.Debug().Str("conn_id", c.id).Int("connections", len(h.conns)).Msg("Connection attached.")

		case reg := <-h.register:
			h.handleRegister(reg.conn, reg.userID)

		case c := <-h.detach:
			h.handleDetach(c)

		case d := <-h.deliveries:
			h.handleDelivery(d)

		case <-h.stopChan:
			h.logger.Info().Msg("Hub forced stop initiated.")
			return
		}
	}
}

// Stop terminates the Run loop, closes every connection's send queue and waits for the loop to exit.
func (h *Hub) Stop() {
	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}
	h.cancel()
	<-h.stopped
}

// Attach adds a freshly upgraded, still unregistered connection.
func (h *Hub) Attach(c *Conn) {
	select {
	case h.attach <- c:
	case <-h.stopChan:
		c.closeSend()
	}
}

// Register binds c to userID.
func (h *Hub) Register(c *Conn, userID string) {
	select {
	case h.register <- registration{conn: c, userID: userID}:
	case <-h.stopChan:
	}
}

// Detach removes c. Detaching an unknown or already detached connection is a no-op.
func (h *Hub) Detach(c *Conn) {
	select {
	case h.detach <- c:
	case <-h.stopChan:
	}
}

// Deliver queues frame for every connection registered under any of userIDs.
func (h *Hub) Deliver(frame []byte, userIDs ...string) {
	h.enqueue(delivery{frame: frame, userIDs: userIDs})
}

// Unicast queues frame for c alone.
func (h *Hub) Unicast(c *Conn, frame []byte) {
	h.enqueue(delivery{frame: frame, conn: c})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliveries <- d:
	case <-h.stopChan:
	}
}

func (h *Hub) handleRegister(c *Conn, userID string) {
	bound, attached := h.conns[c]
	switch {
	case !attached:
		h.logger.Debug().Str("conn_id", c.id).Msg("Ignoring register for detached connection.")
		return
	case bound != "":
		h.logger.Debug().Str("conn_id", c.id).Str("user_id", bound).Msg("Connection already registered; ignoring.")
		return
	}

	h.conns[c] = userID
	group, ok := h.groups[userID]
	if !ok {
		group = make(map[*Conn]struct{})
		h.groups[userID] = group
	}
	group[c] = struct{}{}
	h.presence.Register(userID)

	h.logger.Info().
		Str("conn_id", c.id).
		Str("user_id", userID).
		Int("user_connections", len(group)).
		Msg("Connection registered.")

	h.broadcastPresence()
}

func (h *Hub) handleDetach(c *Conn) {
	userID, attached := h.conns[c]
	if !attached {
		return
	}

	delete(h.conns, c)
	c.closeSend()

	if userID == "" {
		h.logger.Debug().Str("conn_id", c.id).Msg("Unregistered connection detached.")
		return
	}

	if group, ok := h.groups[userID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, userID)
		}
	}
	h.presence.Unregister(userID)

	h.logger.Info().
		Str("conn_id", c.id).
		Str("user_id", userID).
		Bool("still_online", h.presence.IsOnline(userID)).
		Msg("Connection closed.")

	h.broadcastPresence()
}

// broadcastPresence sends the full online snapshot to every attached connection.
func (h *Hub) broadcastPresence() {
	frame, err := protocol.Encode(protocol.EventPresenceUpdate, protocol.PresencePayload{
		OnlineUserIDs: h.presence.OnlineUserIDs(),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build presence update.")
		return
	}

	var slow []*Conn
	for c := range h.conns {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.dropSlow(slow)
}

func (h *Hub) handleDelivery(d delivery) {
	if d.conn != nil {
		if _, attached := h.conns[d.conn]; attached && !d.conn.enqueue(d.frame) {
			h.dropSlow([]*Conn{d.conn})
		}
		return
	}

	targets := make(map[*Conn]struct{})
	for _, userID := range d.userIDs {
		for c := range h.groups[userID] {
			targets[c] = struct{}{}
		}
	}

	var slow []*Conn
	for c := range targets {
		if !c.enqueue(d.frame) {
			slow = append(slow, c)
		}
	}
	h.dropSlow(slow)
}

// dropSlow detaches connections whose send queue is full.
func (h *Hub) dropSlow(slow []*Conn) {
	for _, c := range slow {
		h.logger.Warn().Str("conn_id", c.id).Msg("Connection send queue full, detaching.")
		h.handleDetach(c)
	}
}

// closeAll closes every connection and takes their users offline.
func (h *Hub) closeAll() {
	for c, userID := range h.conns {
		c.closeSend()
		if userID != "" {
			h.presence.Unregister(userID)
		}
	}
	h.conns = make(map[*Conn]string)
	h.groups = make(map[string]map[*Conn]struct{})
	h.logger.Info().Msg("Hub loop finished.")
}
