package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// KeySeparator joins the two participant handles of a conversation key.
const KeySeparator = "__"

// MaxContentLength bounds message content, in characters.
const MaxContentLength = 512

// ConversationKey is the name key of a conversation: the two participant
// handles joined in connection order. It is not canonical, so "a__b" and
// "b__a" identify different conversations.
type ConversationKey string

// NewConversationKey builds the key for participant a followed by participant b.
func NewConversationKey(a, b string) ConversationKey {
	return ConversationKey(a + KeySeparator + b)
}

// Participants splits the key back into its two handles.
func (k ConversationKey) Participants() (first, second string) {
	first, second, _ = strings.Cut(string(k), KeySeparator)
	return first, second
}

func (k ConversationKey) String() string {
	return string(k)
}

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsSuspended  bool
	CreatedAt    time.Time
}

// UserRef is the short user summary embedded in messages.
type UserRef struct {
	ID       int64
	Username string
}

// Conversation is a one-to-one chat between two handles.
type Conversation struct {
	ID           int64
	PublicID     string // UUID exposed to clients
	Name         ConversationKey
	ParticipantA string
	ParticipantB string
	CreatedAt    time.Time
}

// Message is a persisted chat message. Only Read ever changes after creation.
type Message struct {
	ID                   int64
	PublicID             string // UUID exposed to clients
	ConversationID       int64
	ConversationPublicID string
	From                 UserRef
	To                   UserRef
	Content              string
	Read                 bool
	CreatedAt            time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by handle.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserSuspended flips the suspension flag.
	SetUserSuspended(ctx context.Context, id int64, suspended bool) error
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// GetOrCreateConversation returns the conversation for key, creating it
	// atomically if it does not exist. created reports whether this call
	// inserted the row.
	GetOrCreateConversation(ctx context.Context, key ConversationKey) (conv *Conversation, created bool, err error)

	// ListConversationsForUser lists conversations naming username as either
	// participant, most recently active first.
	ListConversationsForUser(ctx context.Context, username string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg and fills its ID, PublicID and CreatedAt.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListRecentMessages returns up to limit messages of a conversation,
	// newest first.
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error)

	// CountMessages returns the total number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID int64) (int, error)

	// MarkConversationRead sets read on every message of the conversation
	// addressed to toUserID and returns how many rows changed.
	MarkConversationRead(ctx context.Context, conversationID, toUserID int64) (int64, error)

	// CountUnread counts unread messages addressed to toUserID across all
	// conversations.
	CountUnread(ctx context.Context, toUserID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
