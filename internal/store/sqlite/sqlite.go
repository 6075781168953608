package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/pairchat/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, or ":memory:".
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that need a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, is_suspended, created_at)
		VALUES (?, ?, ?, 0, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, email, passwordHash, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, email, password_hash, is_suspended, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsSuspended,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// SetUserSuspended flips the suspension flag.
func (s *SQLiteStore) SetUserSuspended(ctx context.Context, id int64, suspended bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_suspended = ? WHERE id = ?`, suspended, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// ==== ConversationStore implementation ====

const conversationColumns = `c.id, c.public_id, c.name, c.participant_a, c.participant_b, c.created_at`

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	var conv store.Conversation
	var name string
	err := row.Scan(
		&conv.ID,
		&conv.PublicID,
		&name,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.Name = store.ConversationKey(name)
	return &conv, nil
}

// GetOrCreateConversation returns the conversation for key, inserting it if
// missing. The UNIQUE constraint on name makes concurrent first calls safe.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, key store.ConversationKey) (*store.Conversation, bool, error) {
	a, b := key.Participants()

	insert := `
		INSERT INTO conversations (public_id, name, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, insert, uuid.NewString(), string(key), a, b, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.name = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, string(key)))
	if err != nil {
		return nil, false, err
	}

	return conv, inserted == 1, nil
}

// ListConversationsForUser lists conversations naming username as a participant.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, username string) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		LEFT JOIN (
			SELECT conversation_id, MAX(id) AS last_id
			FROM messages
			GROUP BY conversation_id
		) m ON m.conversation_id = c.id
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY COALESCE(m.last_id, 0) DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, username, username)
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
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	publicID := uuid.NewString()
	createdAt := time.Now().UTC()

	query := `
		INSERT INTO messages (public_id, conversation_id, from_user_id, to_user_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		publicID, msg.ConversationID, msg.From.ID, msg.To.ID, msg.Content, createdAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	msg.PublicID = publicID
	msg.CreatedAt = createdAt
	msg.Read = false
	return nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.public_id, m.conversation_id, c.public_id,
		       fu.id, fu.username, tu.id, tu.username,
		       m.content, m.is_read, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN users fu ON fu.id = m.from_user_id
		JOIN users tu ON tu.id = m.to_user_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
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
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// MarkConversationRead marks messages to toUserID in the conversation as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, toUserID int64) (int64, error) {
	query := `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND to_user_id = ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, toUserID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CountUnread counts unread messages to toUserID across all conversations.
func (s *SQLiteStore) CountUnread(ctx context.Context, toUserID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE to_user_id = ? AND is_read = 0`, toUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
