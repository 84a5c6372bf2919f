/*
Package protocol defines the JSON events exchanged between the relay and its clients.

Every WebSocket text frame carries one Envelope. Payload shapes are shared by the server
relay and the Go client so both sides agree on field names.
*/
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a socket event.
type EventType string

const (
	// EventRegister binds a connection to a user id (client -> server).
	EventRegister EventType = "register"

	// EventPresenceUpdate carries the full online-user snapshot (server -> all).
	EventPresenceUpdate EventType = "presence:update"

	// EventMessageSend requests persistence and delivery of a message (client -> server).
	EventMessageSend EventType = "message:send"

	// EventMessageNew delivers a saved message to both parties (server -> sender and receiver groups).
	EventMessageNew EventType = "message:new"

	// EventMessageError reports a failed send to the sending connection only.
	EventMessageError EventType = "message:error"

	// EventConnectError is raised locally by the client transport and never sent on the wire.
	EventConnectError EventType = "connect_error"
)

// MaxImageURLLength is the largest encoded image, in characters, the relay accepts.
// It matches the ceiling of the client-side compression step.
const MaxImageURLLength = 700_000

// Envelope is the frame format for every event.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(eventType EventType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// Encode returns the wire bytes for an event.
func Encode(eventType EventType, payload any) ([]byte, error) {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses one frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst. An absent payload leaves dst untouched.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Message is a persisted chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RegisterPayload is the body of EventRegister.
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// PresencePayload is the body of EventPresenceUpdate.
type PresencePayload struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

// SendPayload is the body of EventMessageSend.
type SendPayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Text       string `json:"text,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// NewMessagePayload is the body of EventMessageNew: the saved message plus its receiver.
type NewMessagePayload struct {
	Message
	ReceiverID string `json:"receiverId"`
}

// ErrorPayload is the body of EventMessageError.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}
