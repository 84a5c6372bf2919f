package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quickchat/internal/app/user"
	"quickchat/internal/protocol"
)

type memoryUser struct {
	user         user.User
	email        string
	passwordHash string
}

// Memory is an in-process Store. It enforces the same referential rules as the SQL schema:
// conversations and messages may only name existing users.
type Memory struct {
	mu sync.RWMutex

	users   map[string]*memoryUser
	byEmail map[string]string
	order   []string

	conversations map[[2]string]string
	members       map[string][2]string
	messages      map[string][]protocol.Message
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*memoryUser),
		byEmail:       make(map[string]string),
		conversations: make(map[[2]string]string),
		members:       make(map[string][2]string),
		messages:      make(map[string][]protocol.Message),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) FindOrCreateConversation(_ context.Context, a, b string) (string, error) {
	first, second := CanonicalPair(a, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[first]; !ok {
		return "", fmt.Errorf("conversation participant %q: %w", first, ErrInvalidReference)
	}
	if _, ok := m.users[second]; !ok {
		return "", fmt.Errorf("conversation participant %q: %w", second, ErrInvalidReference)
	}

	key := [2]string{first, second}
	if id, ok := m.conversations[key]; ok {
		return id, nil
	}

	id := uuid.NewString()
	m.conversations[key] = id
	m.members[id] = key

	return id, nil
}

func (m *Memory) AppendMessage(_ context.Context, conversationID, senderID string, content Content) (protocol.Message, error) {
	if err := validateContent(content); err != nil {
		return protocol.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[conversationID]; !ok {
		return protocol.Message{}, fmt.Errorf("conversation %q: %w", conversationID, ErrInvalidReference)
	}
	if _, ok := m.users[senderID]; !ok {
		return protocol.Message{}, fmt.Errorf("sender %q: %w", senderID, ErrInvalidReference)
	}

	msg := protocol.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           content.Text,
		ImageURL:       content.ImageURL,
		CreatedAt:      nowUTC(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	return msg, nil
}

func (m *Memory) ListMessages(_ context.Context, a, b string) ([]protocol.Message, error) {
	first, second := CanonicalPair(a, b)

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.conversations[[2]string{first, second}]
	if !ok {
		return []protocol.Message{}, nil
	}

	history := slices.Clone(m.messages[id])
	slices.SortStableFunc(history, func(x, y protocol.Message) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	if history == nil {
		history = []protocol.Message{}
	}

	return history, nil
}

func (m *Memory) CreateUser(_ context.Context, in NewUser) (user.User, error) {
	email := strings.ToLower(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[email]; taken {
		return user.User{}, ErrEmailTaken
	}

	return m.insertLocked(in, email), nil
}

func (m *Memory) UpsertUser(_ context.Context, in NewUser) (user.User, error) {
	email := strings.ToLower(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.byEmail[email]
	if !exists {
		return m.insertLocked(in, email), nil
	}

	record := m.users[id]
	record.user.DisplayName = in.DisplayName
	record.user.AvatarKey = in.AvatarKey
	return record.user, nil
}

func (m *Memory) insertLocked(in NewUser, email string) user.User {
	u := user.User{
		ID:          uuid.NewString(),
		DisplayName: in.DisplayName,
		AvatarKey:   in.AvatarKey,
		Bio:         in.Bio,
		CreatedAt:   nowUTC(),
	}

	m.users[u.ID] = &memoryUser{user: u, email: email, passwordHash: in.PasswordHash}
	m.byEmail[email] = u.ID
	m.order = append(m.order, u.ID)

	return u
}

func (m *Memory) GetUser(_ context.Context, id string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.users[id]
	if !ok {
		return user.User{}, ErrNotFound
	}
	return record.user, nil
}

func (m *Memory) GetCredentialsByEmail(_ context.Context, email string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	record := m.users[id]
	return Credentials{User: record.user, PasswordHash: record.passwordHash}, nil
}

// ListUsers returns the newest users first.
func (m *Memory) ListUsers(_ context.Context, excludeID string, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = DefaultListUsersLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]user.User, 0, min(limit, len(m.order)))
	for i := len(m.order) - 1; i >= 0 && len(users) < limit; i-- {
		id := m.order[i]
		if id == excludeID {
			continue
		}
		users = append(users, m.users[id].user)
	}

	return users, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id string, update ProfileUpdate) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.users[id]
	if !ok {
		return user.User{}, ErrNotFound
	}

	if update.DisplayName != nil {
		record.user.DisplayName = *update.DisplayName
	}
	if update.Bio != nil {
		record.user.Bio = *update.Bio
	}
	if update.AvatarKey != nil {
		record.user.AvatarKey = *update.AvatarKey
	}

	return record.user, nil
}
