// Package history computes the recent-messages snapshot and unread counts.
package history

import (
	"context"
	"fmt"

	"github.com/vovakirdan/pairchat/internal/store"
)

// SnapshotLimit is the maximum number of messages in a snapshot.
const SnapshotLimit = 50

// Snapshot is the newest-first tail of a conversation.
type Snapshot struct {
	Messages []*store.Message
	// HasMore is true when the conversation holds more than SnapshotLimit
	// messages.
	HasMore bool
}

// Querier is the subset of the record store the query layer reads.
type Querier interface {
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*store.Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	CountUnread(ctx context.Context, toUserID int64) (int, error)
}

// Service answers history and unread queries.
type Service struct {
	store Querier
}

// New creates a query service over q.
func New(q Querier) *Service {
	return &Service{store: q}
}

// Snapshot returns up to SnapshotLimit messages, newest first.
func (s *Service) Snapshot(ctx context.Context, conversationID int64) (*Snapshot, error) {
	messages, err := s.store.ListRecentMessages(ctx, conversationID, SnapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	return &Snapshot{
		Messages: messages,
		HasMore:  total > SnapshotLimit,
	}, nil
}

// UnreadCount returns how many messages addressed to userID are unread,
// across every conversation.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
