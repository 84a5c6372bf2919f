package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, s *Memory, name string) string {
	t.Helper()
	u, err := s.CreateUser(context.Background(), NewUser{DisplayName: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u.ID
}

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("zed", "amy")
	assert.Equal(t, "amy", a)
	assert.Equal(t, "zed", b)

	a, b = CanonicalPair("amy", "zed")
	assert.Equal(t, "amy", a)
	assert.Equal(t, "zed", b)
}

func TestMemory_FindOrCreateConversationIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	alice, bob := newUser(t, s, "alice"), newUser(t, s, "bob")

	first, err := s.FindOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	second, err := s.FindOrCreateConversation(ctx, bob, alice)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMemory_UnknownParticipantIsInvalidReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	alice := newUser(t, s, "alice")

	_, err := s.FindOrCreateConversation(ctx, alice, "nobody")
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.AppendMessage(ctx, "missing-conversation", alice, Content{Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestMemory_AppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	alice, bob := newUser(t, s, "alice"), newUser(t, s, "bob")

	history, err := s.ListMessages(ctx, alice, bob)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := nowUTC
	nowUTC = func() time.Time { return tick }
	defer func() { nowUTC = restore }()

	convID, err := s.FindOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, convID, alice, Content{Text: "first"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, convID, bob, Content{ImageURL: "data:image/png;base64,AAAA"})
	require.NoError(t, err)

	tick = tick.Add(-time.Minute)
	_, err = s.AppendMessage(ctx, convID, bob, Content{Text: "older"})
	require.NoError(t, err)

	history, err = s.ListMessages(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "older", history[0].Text)
	assert.Equal(t, "first", history[1].Text, "equal timestamps keep insertion order")
	assert.Equal(t, "data:image/png;base64,AAAA", history[2].ImageURL)
	assert.Equal(t, convID, history[2].ConversationID)
	assert.Equal(t, bob, history[2].SenderID)
}

func TestMemory_AppendMessageValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	alice, bob := newUser(t, s, "alice"), newUser(t, s, "bob")
	convID, err := s.FindOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, convID, alice, Content{})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.AppendMessage(ctx, convID, alice, Content{Text: strings.Repeat("x", MaxTextLength+1)})
	assert.ErrorIs(t, err, ErrValueTooLong)

	_, err = s.AppendMessage(ctx, convID, "stranger", Content{Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidReference)

	history, err := s.ListMessages(ctx, alice, bob)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := s.CreateUser(ctx, NewUser{DisplayName: "First", Email: "First@Example.com", PasswordHash: "h1"})
	require.NoError(t, err)
	second, err := s.CreateUser(ctx, NewUser{DisplayName: "Second", Email: "second@example.com"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, NewUser{DisplayName: "Dup", Email: "first@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	creds, err := s.GetCredentialsByEmail(ctx, "FIRST@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, creds.User.ID)
	assert.Equal(t, "h1", creds.PasswordHash)

	listed, err := s.ListUsers(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID, "newest first")

	listed, err = s.ListUsers(ctx, second.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, first.ID, listed[0].ID)

	name, empty := "Renamed", ""
	updated, err := s.UpdateProfile(ctx, first.ID, ProfileUpdate{DisplayName: &name, Bio: &empty})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.DisplayName)
	assert.Empty(t, updated.Bio)

	_, err = s.UpdateProfile(ctx, "missing", ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := Seed(ctx, s)
	require.NoError(t, err)
	second, err := Seed(ctx, s)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	listed, err := s.ListUsers(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, listed, len(seedUsers))
}
