package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/proto"
	"github.com/vovakirdan/pairchat/internal/store"
)

const teardownTimeout = 5 * time.Second

// ChatSession drives one socket bound to one conversation.
//
// Connect moves it to active, after which Handle processes frames one at a
// time. Disconnect runs at most once and undoes whatever Connect did.
type ChatSession struct {
	hub    *Hub
	client *Client
	slug1  string
	slug2  string
	log    *zerolog.Logger

	// state is nil until the fabric channel is joined.
	state    *chatState
	teardown sync.Once
}

type chatState struct {
	conversation *store.Conversation
	channel      fabric.Channel
	recipient    *store.User
	present      bool
	announced    bool
	// stopRefresh stops the presence refresher and waits for it to exit.
	stopRefresh func()
}

// Connect resolves participants, opens the conversation and announces the
// user. On error nothing observable is left behind except what Disconnect
// releases.
func (s *ChatSession) Connect(ctx context.Context) error {
	if s.slug1 == "" || s.slug2 == "" {
		return malformed(DetailMissingSlugs)
	}

	if _, err := s.resolve(ctx, s.slug1); err != nil {
		return err
	}
	recipient, err := s.resolve(ctx, s.slug2)
	if err != nil {
		return err
	}

	user := s.client.User
	if user.Username != s.slug1 && user.Username != s.slug2 {
		return malformed(DetailNotParticipant)
	}

	key := store.NewConversationKey(s.slug1, s.slug2)
	conv, created, err := s.hub.store.GetOrCreateConversation(ctx, key)
	if err != nil {
		return unexpected(err)
	}
	if created {
		s.log.Info().Str("conv_id", conv.PublicID).Msg("conversation created")
	}

	ch := fabric.ChatChannel(key)
	if err := s.hub.fabric.Join(ctx, ch, s.client); err != nil {
		return unexpected(err)
	}
	s.state = &chatState{conversation: conv, channel: ch, recipient: recipient}

	if err := s.hub.presence.Add(ctx, conv.ID, user.Username, s.client.ID); err != nil {
		return unexpected(err)
	}
	s.state.present = true
	s.state.stopRefresh = s.refreshPresence(conv.ID)

	if err := s.hub.publish(ctx, ch, proto.UserPresence{Type: proto.TypeUserJoin, User: user.Username}); err != nil {
		return unexpected(err)
	}
	s.state.announced = true

	if err := s.sendSnapshot(ctx); err != nil {
		return unexpected(err)
	}

	s.log.Info().Msg("chat session connected")
	return nil
}

// refreshPresence renews this session's presence entry until the returned
// stop function is called.
func (s *ChatSession) refreshPresence(conversationID int64) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	username := s.client.User.Username

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.hub.presenceRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.hub.presence.Add(ctx, conversationID, username, s.client.ID); err != nil && ctx.Err() == nil {
					s.log.Warn().Err(err).Msg("refresh presence")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *ChatSession) resolve(ctx context.Context, username string) (*store.User, error) {
	user, err := s.hub.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &SessionError{Kind: ErrUnknownParticipant, Detail: DetailUnknownUser, Err: err}
		}
		return nil, unexpected(err)
	}
	return user, nil
}

// sendSnapshot sends the presence list and the recent history to this
// session only.
func (s *ChatSession) sendSnapshot(ctx context.Context) error {
	convID := s.state.conversation.ID

	users, err := s.hub.presence.List(ctx, convID)
	if err != nil {
		return err
	}
	if users == nil {
		users = []string{}
	}
	if err := send(s.client, proto.OnlineUserList{Type: proto.TypeOnlineUserList, Users: users}); err != nil {
		return err
	}

	snap, err := s.hub.history.Snapshot(ctx, convID)
	if err != nil {
		return err
	}
	return send(s.client, proto.LastMessages{
		Type:     proto.TypeLastMessages,
		Messages: proto.MessagesFromStore(snap.Messages),
		HasMore:  snap.HasMore,
	})
}

// Handle dispatches one inbound command. A returned error ends the session.
func (s *ChatSession) Handle(ctx context.Context, cmd Command) error {
	if s.state == nil || !s.state.announced {
		return unexpected(errors.New("session is not connected"))
	}

	switch cmd.Kind {
	case CommandChatMessage:
		return s.handleChatMessage(ctx, cmd)
	case CommandTyping:
		return s.handleTyping(ctx, cmd)
	case CommandReadMessages:
		return s.handleReadMessages(ctx)
	default:
		s.log.Debug().Str("type", cmd.Type).Msg("ignoring unknown frame")
		return nil
	}
}

func (s *ChatSession) handleChatMessage(ctx context.Context, cmd Command) error {
	if cmd.Name == nil || cmd.Message == nil {
		return malformed(DetailMalformedFrame)
	}
	if strings.TrimSpace(*cmd.Message) == "" {
		return malformed(DetailEmptyMessage)
	}
	if utf8.RuneCountInString(*cmd.Message) > store.MaxContentLength {
		return malformed(DetailMessageTooLong)
	}

	user := s.client.User
	recipient := s.state.recipient
	conv := s.state.conversation

	msg := &store.Message{
		ConversationID:       conv.ID,
		ConversationPublicID: conv.PublicID,
		From:                 store.UserRef{ID: user.ID, Username: user.Username},
		To:                   store.UserRef{ID: recipient.ID, Username: recipient.Username},
		Content:              *cmd.Message,
	}
	if err := s.hub.store.CreateMessage(ctx, msg); err != nil {
		return unexpected(err)
	}
	dto := proto.MessageFromStore(msg)

	echo := proto.ChatMessageEcho{Type: proto.TypeChatMessageEcho, Name: *cmd.Name, Message: dto}
	if err := s.hub.publish(ctx, s.state.channel, echo); err != nil {
		return unexpected(err)
	}

	notification := proto.NewMessageNotification{
		Type:    proto.TypeNewMessageNotification,
		Name:    user.ID,
		Message: dto,
	}
	if err := s.hub.publish(ctx, fabric.NotificationChannel(recipient.Username), notification); err != nil {
		return unexpected(err)
	}

	if err := s.sendSnapshot(ctx); err != nil {
		return unexpected(err)
	}

	s.log.Debug().Str("message_id", msg.PublicID).Msg("message stored")
	return nil
}

func (s *ChatSession) handleTyping(ctx context.Context, cmd Command) error {
	if cmd.Typing == nil {
		return malformed(DetailMissingTyping)
	}
	frame := proto.Typing{Type: proto.TypeTyping, User: s.client.User.Username, Typing: *cmd.Typing}
	if err := s.hub.publish(ctx, s.state.channel, frame); err != nil {
		return unexpected(err)
	}
	return nil
}

func (s *ChatSession) handleReadMessages(ctx context.Context) error {
	user := s.client.User

	changed, err := s.hub.store.MarkConversationRead(ctx, s.state.conversation.ID, user.ID)
	if err != nil {
		return unexpected(err)
	}
	unread, err := s.hub.history.UnreadCount(ctx, user.ID)
	if err != nil {
		return unexpected(err)
	}

	frame := proto.UnreadCount{Type: proto.TypeUnreadCount, UnreadCount: unread}
	if err := s.hub.publish(ctx, fabric.NotificationChannel(user.Username), frame); err != nil {
		return unexpected(err)
	}

	s.log.Debug().Int64("marked", changed).Int("unread", unread).Msg("messages read")
	return nil
}

// Disconnect announces the departure, clears presence and leaves the
// channel. Only the first call does anything.
func (s *ChatSession) Disconnect(ctx context.Context) {
	s.teardown.Do(func() {
		st := s.state
		if st == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		username := s.client.User.Username
		if st.announced {
			if err := s.hub.publish(ctx, st.channel, proto.UserPresence{Type: proto.TypeUserLeave, User: username}); err != nil {
				s.log.Warn().Err(err).Msg("publish user_leave")
			}
		}
		if st.present {
			st.stopRefresh()
			if err := s.hub.presence.Remove(ctx, st.conversation.ID, username, s.client.ID); err != nil {
				s.log.Warn().Err(err).Msg("remove presence")
			}
		}
		if err := s.hub.fabric.Leave(ctx, st.channel, s.client); err != nil {
			s.log.Warn().Err(err).Msg("leave channel")
		}

		s.log.Info().Msg("chat session disconnected")
	})
}
