package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"quickchat/internal/app/db"
	"quickchat/internal/app/user"
	"quickchat/internal/protocol"
)

// querier is the subset of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	db querier
}

// NewPostgres wraps a migrated pool (see db.NewPool).
func NewPostgres(pool querier) *Postgres {
	return &Postgres{db: pool}
}

var _ Store = (*Postgres)(nil)

// classify maps driver errors onto the package sentinels, keeping the original as context.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsValueTooLong(err):
		return fmt.Errorf("%s: %w: %v", op, ErrValueTooLong, err)
	case db.IsInvalidReference(err):
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidReference, err)
	case db.IsSchemaMismatch(err):
		return fmt.Errorf("%s: %w: %v", op, ErrSchemaMismatch, err)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrEmailTaken, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// canonicalID normalizes a user id to the lowercase UUID text form Postgres compares with.
func canonicalID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("user id %q: %w", id, ErrInvalidReference)
	}
	return parsed.String(), nil
}

func canonicalPair(a, b string) (string, string, error) {
	first, err := canonicalID(a)
	if err != nil {
		return "", "", err
	}
	second, err := canonicalID(b)
	if err != nil {
		return "", "", err
	}
	first, second = CanonicalPair(first, second)
	return first, second, nil
}

func nullable(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

const findOrCreateConversationSQL = `
INSERT INTO conversations (user_a_id, user_b_id)
VALUES ($1, $2)
ON CONFLICT (user_a_id, user_b_id) DO UPDATE SET user_a_id = EXCLUDED.user_a_id
RETURNING id::text`

func (p *Postgres) FindOrCreateConversation(ctx context.Context, a, b string) (string, error) {
	first, second, err := canonicalPair(a, b)
	if err != nil {
		return "", err
	}

	var id string
	err = p.db.QueryRow(ctx, findOrCreateConversationSQL, first, second).Scan(&id)
	if err != nil {
		return "", classify("find or create conversation", err)
	}
	return id, nil
}

const appendMessageSQL = `
INSERT INTO messages (conversation_id, sender_id, text, image_url)
VALUES ($1, $2, $3, $4)
RETURNING id::text, conversation_id::text, sender_id::text, text, image_url, created_at`

func (p *Postgres) AppendMessage(ctx context.Context, conversationID, senderID string, content Content) (protocol.Message, error) {
	if err := validateContent(content); err != nil {
		return protocol.Message{}, err
	}

	row := p.db.QueryRow(ctx, appendMessageSQL,
		conversationID, senderID, nullable(content.Text), nullable(content.ImageURL))

	msg, err := scanMessage(row)
	if err != nil {
		return protocol.Message{}, classify("append message", err)
	}
	return msg, nil
}

const listMessagesSQL = `
SELECT m.id::text, m.conversation_id::text, m.sender_id::text, m.text, m.image_url, m.created_at
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE c.user_a_id = $1 AND c.user_b_id = $2
ORDER BY m.created_at ASC, m.seq ASC`

func (p *Postgres) ListMessages(ctx context.Context, a, b string) ([]protocol.Message, error) {
	first, second, err := canonicalPair(a, b)
	if err != nil {
		// An id that cannot exist has no history.
		if errors.Is(err, ErrInvalidReference) {
			return []protocol.Message{}, nil
		}
		return nil, err
	}

	rows, err := p.db.Query(ctx, listMessagesSQL, first, second)
	if err != nil {
		return nil, classify("list messages", err)
	}
	defer rows.Close()

	history := []protocol.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, classify("scan message", err)
		}
		history = append(history, msg)
	}

	return history, classify("list messages", rows.Err())
}

func scanMessage(row pgx.Row) (protocol.Message, error) {
	var (
		msg      protocol.Message
		text     pgtype.Text
		imageURL pgtype.Text
	)

	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &text, &imageURL, &msg.CreatedAt); err != nil {
		return protocol.Message{}, err
	}
	msg.Text = text.String
	msg.ImageURL = imageURL.String
	msg.CreatedAt = msg.CreatedAt.UTC()

	return msg, nil
}

const userColumns = `id::text, display_name, avatar_key, bio, created_at`

func scanUser(row pgx.Row, extra ...any) (user.User, error) {
	var (
		u         user.User
		avatarKey pgtype.Text
		bio       pgtype.Text
	)

	dest := append([]any{&u.ID, &u.DisplayName, &avatarKey, &bio, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return user.User{}, err
	}
	u.AvatarKey = avatarKey.String
	u.Bio = bio.String
	u.CreatedAt = u.CreatedAt.UTC()

	return u, nil
}

const createUserSQL = `
INSERT INTO users (display_name, email, avatar_key, bio, password_hash)
VALUES ($1, lower($2), $3, $4, $5)
RETURNING ` + userColumns

func (p *Postgres) CreateUser(ctx context.Context, in NewUser) (user.User, error) {
	row := p.db.QueryRow(ctx, createUserSQL,
		in.DisplayName, in.Email, nullable(in.AvatarKey), nullable(in.Bio), nullable(in.PasswordHash))

	u, err := scanUser(row)
	if err != nil {
		return user.User{}, classify("create user", err)
	}
	return u, nil
}

const upsertUserSQL = `
INSERT INTO users (display_name, email, avatar_key, bio, password_hash)
VALUES ($1, lower($2), $3, $4, $5)
ON CONFLICT (email) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_key = EXCLUDED.avatar_key
RETURNING ` + userColumns

func (p *Postgres) UpsertUser(ctx context.Context, in NewUser) (user.User, error) {
	row := p.db.QueryRow(ctx, upsertUserSQL,
		in.DisplayName, in.Email, nullable(in.AvatarKey), nullable(in.Bio), nullable(in.PasswordHash))

	u, err := scanUser(row)
	if err != nil {
		return user.User{}, classify("upsert user", err)
	}
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (user.User, error) {
	canonical, err := canonicalID(id)
	if err != nil {
		return user.User{}, ErrNotFound
	}

	u, err := scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, canonical))
	if err != nil {
		return user.User{}, classify("get user", err)
	}
	return u, nil
}

func (p *Postgres) GetCredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	var hash pgtype.Text

	row := p.db.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = lower($1)`, email)
	u, err := scanUser(row, &hash)
	if err != nil {
		return Credentials{}, classify("get credentials", err)
	}
	return Credentials{User: u, PasswordHash: hash.String}, nil
}

const listUsersSQL = `
SELECT ` + userColumns + `
FROM users
WHERE $1 = '' OR id::text <> $1
ORDER BY created_at DESC
LIMIT $2`

func (p *Postgres) ListUsers(ctx context.Context, excludeID string, limit int) ([]user.User, error) {
	if limit <= 0 {
		limit = DefaultListUsersLimit
	}

	rows, err := p.db.Query(ctx, listUsersSQL, excludeID, limit)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, u)
	}

	return users, classify("list users", rows.Err())
}

const updateProfileSQL = `
UPDATE users SET
    display_name = COALESCE($2, display_name),
    bio          = CASE WHEN $3::boolean THEN NULLIF($4, '') ELSE bio END,
    avatar_key   = CASE WHEN $5::boolean THEN NULLIF($6, '') ELSE avatar_key END
WHERE id = $1
RETURNING ` + userColumns

func (p *Postgres) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (user.User, error) {
	canonical, err := canonicalID(id)
	if err != nil {
		return user.User{}, ErrNotFound
	}

	var displayName pgtype.Text
	if update.DisplayName != nil {
		displayName = pgtype.Text{String: *update.DisplayName, Valid: true}
	}

	row := p.db.QueryRow(ctx, updateProfileSQL,
		canonical,
		displayName,
		update.Bio != nil, deref(update.Bio),
		update.AvatarKey != nil, deref(update.AvatarKey),
	)

	u, err := scanUser(row)
	if err != nil {
		return user.User{}, classify("update profile", err)
	}
	return u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
