package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/proto"
)

// NotificationSession streams one user's private notifications.
type NotificationSession struct {
	hub     *Hub
	client  *Client
	channel fabric.Channel
	log     *zerolog.Logger

	joined   bool
	teardown sync.Once
}

// Connect joins the user's notification channel and sends the current
// unread count.
func (s *NotificationSession) Connect(ctx context.Context) error {
	if err := s.hub.fabric.Join(ctx, s.channel, s.client); err != nil {
		return unexpected(err)
	}
	s.joined = true

	unread, err := s.hub.history.UnreadCount(ctx, s.client.User.ID)
	if err != nil {
		return unexpected(err)
	}
	if err := send(s.client, proto.UnreadCount{Type: proto.TypeUnreadCount, UnreadCount: unread}); err != nil {
		return unexpected(err)
	}

	s.log.Info().Int("unread", unread).Msg("notification session connected")
	return nil
}

// Handle ignores client frames; the stream is push only.
func (s *NotificationSession) Handle(_ context.Context, cmd Command) error {
	s.log.Debug().Str("type", cmd.Type).Msg("ignoring frame on notification stream")
	return nil
}

// Disconnect leaves the notification channel. Only the first call does
// anything.
func (s *NotificationSession) Disconnect(ctx context.Context) {
	s.teardown.Do(func() {
		if !s.joined {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		if err := s.hub.fabric.Leave(ctx, s.channel, s.client); err != nil {
			s.log.Warn().Err(err).Msg("leave notification channel")
		}
		s.log.Info().Msg("notification session disconnected")
	})
}
