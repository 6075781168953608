package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vovakirdan/pairchat/internal/store"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to databaseURL, verifies the connection and applies the schema.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

const userColumns = `id, username, email, password_hash, is_suspended, created_at`

func scanUser(row pgx.Row) (*store.User, error) {
	var user store.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsSuspended, &user.CreatedAt); err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns
	user, err := scanUser(s.pool.QueryRow(ctx, query, username, email, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// SetUserSuspended flips the suspension flag.
func (s *PostgresStore) SetUserSuspended(ctx context.Context, id int64, suspended bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_suspended = $1 WHERE id = $2`, suspended, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// ==== ConversationStore implementation ====

const conversationColumns = `c.id, c.public_id::text, c.name, c.participant_a, c.participant_b, c.created_at`

func scanConversation(row pgx.Row) (*store.Conversation, error) {
	var conv store.Conversation
	var name string
	if err := row.Scan(&conv.ID, &conv.PublicID, &name, &conv.ParticipantA, &conv.ParticipantB, &conv.CreatedAt); err != nil {
		return nil, notFound("conversation", err)
	}
	conv.Name = store.ConversationKey(name)
	return &conv, nil
}

// GetOrCreateConversation returns the conversation for key, inserting it if missing.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, key store.ConversationKey) (*store.Conversation, bool, error) {
	a, b := key.Participants()

	insert := `
		INSERT INTO conversations AS c (public_id, name, participant_a, participant_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
		RETURNING ` + conversationColumns
	conv, err := scanConversation(s.pool.QueryRow(ctx, insert, uuid.NewString(), string(key), a, b))
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}

	// Another caller inserted the row first.
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.name = $1`
	conv, err = scanConversation(s.pool.QueryRow(ctx, query, string(key)))
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// ListConversationsForUser lists conversations naming username as a participant.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, username string) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		LEFT JOIN (
			SELECT conversation_id, MAX(id) AS last_id
			FROM messages
			GROUP BY conversation_id
		) m ON m.conversation_id = c.id
		WHERE c.participant_a = $1 OR c.participant_b = $1
		ORDER BY COALESCE(m.last_id, 0) DESC, c.id DESC
	`
	rows, err := s.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage persists a message.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (public_id, conversation_id, from_user_id, to_user_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, public_id::text, created_at
	`
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), msg.ConversationID, msg.From.ID, msg.To.ID, msg.Content).
		Scan(&msg.ID, &msg.PublicID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.Read = false
	return nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.public_id::text, m.conversation_id, c.public_id::text,
		       fu.id, fu.username, tu.id, tu.username,
		       m.content, m.is_read, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN users fu ON fu.id = m.from_user_id
		JOIN users tu ON tu.id = m.to_user_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID, &msg.PublicID, &msg.ConversationID, &msg.ConversationPublicID,
			&msg.From.ID, &msg.From.Username, &msg.To.ID, &msg.To.Username,
			&msg.Content, &msg.Read, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the total number of messages in a conversation.
func (s *PostgresStore) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// MarkConversationRead marks messages to toUserID in the conversation as read.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, toUserID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND to_user_id = $2 AND NOT is_read
	`, conversationID, toUserID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts unread messages to toUserID across all conversations.
func (s *PostgresStore) CountUnread(ctx context.Context, toUserID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE to_user_id = $1 AND NOT is_read`, toUserID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
