/*
Package store persists users, pair conversations and their messages.

The relay depends only on ConversationStore; HTTP handlers additionally use UserStore.
Two implementations are provided: Postgres for deployments and Memory for development and tests.
Write failures are reported as wrapped sentinel errors so callers can classify them with errors.Is.
*/
package store

import (
	"context"
	"errors"
	"time"

	"quickchat/internal/app/user"
	"quickchat/internal/protocol"
)

var (
	// ErrValueTooLong means a message field exceeded its storage limit.
	ErrValueTooLong = errors.New("value too long for field")

	// ErrInvalidReference means a user id does not name an existing user.
	ErrInvalidReference = errors.New("invalid user reference")

	// ErrSchemaMismatch means the database schema is not the one this build expects.
	ErrSchemaMismatch = errors.New("database schema mismatch")

	// ErrEmptyMessage means neither text nor image was supplied.
	ErrEmptyMessage = errors.New("message has no content")

	// ErrEmailTaken means another account already uses the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// MaxTextLength is the longest text body the stores accept, in bytes.
const MaxTextLength = 5000

// DefaultListUsersLimit caps user listings.
const DefaultListUsersLimit = 50

// Content is the body of a new message. At least one field must be non-empty.
type Content struct {
	Text     string
	ImageURL string
}

// Empty reports whether the content has neither text nor image.
func (c Content) Empty() bool {
	return c.Text == "" && c.ImageURL == ""
}

// ConversationStore is what the relay needs from persistence.
type ConversationStore interface {
	// FindOrCreateConversation returns the id of the conversation between a and b, creating it
	// if needed. The result does not depend on argument order.
	FindOrCreateConversation(ctx context.Context, a, b string) (string, error)

	// AppendMessage stores a message from senderID in the conversation.
	AppendMessage(ctx context.Context, conversationID, senderID string, content Content) (protocol.Message, error)

	// ListMessages returns the pair's history ordered by creation time, oldest first.
	// It returns an empty slice when the pair has never talked.
	ListMessages(ctx context.Context, a, b string) ([]protocol.Message, error)
}

// NewUser holds the fields for account creation. PasswordHash is empty for guests.
type NewUser struct {
	DisplayName  string
	Email        string
	AvatarKey    string
	Bio          string
	PasswordHash string
}

// Credentials pairs a user with its stored password hash.
type Credentials struct {
	User         user.User
	PasswordHash string
}

// ProfileUpdate carries optional profile edits; nil fields are left unchanged.
// A non-nil empty Bio or AvatarKey clears the field.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	AvatarKey   *string
}

// UserStore is the account side of persistence.
type UserStore interface {
	CreateUser(ctx context.Context, in NewUser) (user.User, error)
	UpsertUser(ctx context.Context, in NewUser) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (Credentials, error)
	ListUsers(ctx context.Context, excludeID string, limit int) ([]user.User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (user.User, error)
}

// Store combines both halves.
type Store interface {
	ConversationStore
	UserStore
}

// CanonicalPair orders two ids so the lexicographically smaller comes first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// validateContent applies the checks both implementations share.
func validateContent(content Content) error {
	if content.Empty() {
		return ErrEmptyMessage
	}
	if len(content.Text) > MaxTextLength {
		return ErrValueTooLong
	}
	return nil
}

// nowUTC is replaced in tests that need deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
