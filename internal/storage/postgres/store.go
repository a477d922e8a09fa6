package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omochice/realtime-chat/internal/chat"
)

const foreignKeyViolation = "23503"

// Store is the PostgreSQL persistence gateway.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ chat.Store = (*Store)(nil)

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres: nil pool")
	}
	return s.pool.Ping(ctx)
}

// CreateUser inserts a user projection and returns its id.
func (s *Store) CreateUser(ctx context.Context, username, avatar string) (chat.UserID, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO users (username, avatar) VALUES ($1, $2) RETURNING id",
		username, avatar,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create user: %w", err)
	}
	return chat.UserID(id), nil
}

func (s *Store) FindConversationsForUser(ctx context.Context, userID chat.UserID) ([]chat.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.user1_id, c.user2_id, c.created_at, c.updated_at,
		       u.id, u.username, u.avatar,
		       m.id, m.sender_id, m.content, m.message_type, m.is_read, m.read_at, m.created_at
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, message_type, is_read, read_at, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON TRUE
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]chat.ConversationSummary, 0)
	for rows.Next() {
		var (
			c         chat.ConversationSummary
			msgID     *int64
			senderID  *int64
			content   *string
			msgType   *string
			isRead    *bool
			readAt    *time.Time
			createdAt *time.Time
		)
		if err := rows.Scan(
			&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt,
			&c.OtherUser.ID, &c.OtherUser.Username, &c.OtherUser.Avatar,
			&msgID, &senderID, &content, &msgType, &isRead, &readAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		if msgID != nil {
			c.LastMessage = &chat.Message{
				ID:             chat.MessageID(*msgID),
				ConversationID: c.ID,
				SenderID:       chat.UserID(*senderID),
				Content:        *content,
				Type:           chat.MessageType(*msgType),
				IsRead:         *isRead,
				ReadAt:         readAt,
				CreatedAt:      *createdAt,
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	return out, nil
}

func (s *Store) FindConversation(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.pool.QueryRow(ctx,
		"SELECT id, user1_id, user2_id, created_at, updated_at FROM conversations WHERE id = $1",
		int64(id),
	).Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find conversation: %w", err)
	}
	return &c, nil
}

// FindOrCreateConversation relies on the unique pair constraint, so concurrent
// callers for the same pair converge on one row.
func (s *Store) FindOrCreateConversation(ctx context.Context, a, b chat.UserID) (*chat.Conversation, bool, error) {
	if a == b {
		return nil, false, chat.ErrSameUser
	}
	u1, u2 := chat.CanonicalPair(a, b)

	var c chat.Conversation
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id, user1_id, user2_id, created_at, updated_at
	`, int64(u1), int64(u2)).Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt)
	switch {
	case err == nil:
		return &c, true, nil
	case isForeignKeyViolation(err):
		return nil, false, chat.ErrNotFound
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, fmt.Errorf("postgres: create conversation: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"SELECT id, user1_id, user2_id, created_at, updated_at FROM conversations WHERE user1_id = $1 AND user2_id = $2",
		int64(u1), int64(u2),
	).Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: find conversation by pair: %w", err)
	}
	return &c, false, nil
}

func (s *Store) CreateMessage(ctx context.Context, conversationID chat.ConversationID, senderID chat.UserID, content string, typ chat.MessageType) (*chat.Message, error) {
	if typ == "" {
		typ = chat.MessageTypeText
	}
	var (
		m       chat.Message
		msgType string
	)
	err := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (conversation_id, sender_id, content, message_type)
			VALUES ($1, $2, $3, $4)
			RETURNING id, conversation_id, sender_id, content, message_type, is_read, read_at, created_at
		)
		SELECT i.id, i.conversation_id, i.sender_id, i.content, i.message_type, i.is_read, i.read_at, i.created_at,
		       u.id, u.username, u.avatar
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`, int64(conversationID), int64(senderID), content, string(typ)).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &msgType, &m.IsRead, &m.ReadAt, &m.CreatedAt,
		&m.Sender.ID, &m.Sender.Username, &m.Sender.Avatar,
	)
	if isForeignKeyViolation(err) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: create message: %w", err)
	}
	m.Type = chat.MessageType(msgType)
	return &m, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, conversationID chat.ConversationID, readerID chat.UserID, messageID *chat.MessageID) (int64, error) {
	var mid *int64
	if messageID != nil {
		v := int64(*messageID)
		mid = &v
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = now()
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND NOT is_read
		  AND ($3::bigint IS NULL OR id = $3)
	`, int64(conversationID), int64(readerID), mid)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark read: %w", err)
	}
	if ct.RowsAffected() == 0 && mid != nil {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1 AND conversation_id = $2)",
			*mid, int64(conversationID)).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("postgres: mark read: %w", err)
		}
		if !exists {
			return 0, chat.ErrNotFound
		}
	}
	return ct.RowsAffected(), nil
}

func (s *Store) TouchConversation(ctx context.Context, id chat.ConversationID) error {
	ct, err := s.pool.Exec(ctx, "UPDATE conversations SET updated_at = now() WHERE id = $1", int64(id))
	if err != nil {
		return fmt.Errorf("postgres: touch conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) FindUserProjection(ctx context.Context, id chat.UserID) (*chat.User, error) {
	var u chat.User
	err := s.pool.QueryRow(ctx,
		"SELECT id, username, avatar FROM users WHERE id = $1",
		int64(id),
	).Scan(&u.ID, &u.Username, &u.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find user: %w", err)
	}
	return &u, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
