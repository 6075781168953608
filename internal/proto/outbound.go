// Package proto defines the JSON frames exchanged over chat and
// notification sockets.
package proto

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/pairchat/internal/store"
)

// Outbound frame types.
const (
	TypeOnlineUserList         = "online_user_list"
	TypeLastMessages           = "last_50_messages"
	TypeUserJoin               = "user_join"
	TypeUserLeave              = "user_leave"
	TypeChatMessageEcho        = "chat_message_echo"
	TypeNewMessageNotification = "new_message_notification"
	TypeUnreadCount            = "unread_count"
)

// Error titles.
const (
	ErrorInvalidRequest  = "Invalid request"
	ErrorTooManyRequests = "Too many requests"
)

// UserSummary is the public view of a user.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is the transfer object for a persisted message.
type Message struct {
	MessageID    string      `json:"message_id"`
	Conversation string      `json:"conversation"`
	FromUser     UserSummary `json:"from_user"`
	ToUser       UserSummary `json:"to_user"`
	Content      string      `json:"content"`
	DateCreated  time.Time   `json:"date_created"`
	Read         bool        `json:"read"`
}

// MessageFromStore converts a stored message.
func MessageFromStore(m *store.Message) Message {
	return Message{
		MessageID:    m.PublicID,
		Conversation: m.ConversationPublicID,
		FromUser:     UserSummary{ID: m.From.ID, Username: m.From.Username},
		ToUser:       UserSummary{ID: m.To.ID, Username: m.To.Username},
		Content:      m.Content,
		DateCreated:  m.CreatedAt,
		Read:         m.Read,
	}
}

// MessagesFromStore converts a slice, keeping order. The result is never nil.
func MessagesFromStore(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromStore(m))
	}
	return out
}

type OnlineUserList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type LastMessages struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// UserPresence is used for both user_join and user_leave.
type UserPresence struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type ChatMessageEcho struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Message Message `json:"message"`
}

type Typing struct {
	Type   string `json:"type"`
	User   string `json:"user"`
	Typing bool   `json:"typing"`
}

// NewMessageNotification carries the sender's user ID in Name.
type NewMessageNotification struct {
	Type    string  `json:"type"`
	Name    int64   `json:"name"`
	Message Message `json:"message"`
}

type UnreadCount struct {
	Type        string `json:"type"`
	UnreadCount int    `json:"unread_count"`
}

// Error is the frame sent before a session is closed for a request error.
type Error struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Encode marshals a frame.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
