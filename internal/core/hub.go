package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/history"
	"github.com/vovakirdan/pairchat/internal/presence"
	"github.com/vovakirdan/pairchat/internal/proto"
	"github.com/vovakirdan/pairchat/internal/store"
)

// Identity resolves the token carried by a connection to an active user.
type Identity interface {
	Resolve(ctx context.Context, token string) (*store.User, error)
}

// Hub holds the shared collaborators of every session and builds sessions.
// It keeps no per-connection state of its own.
type Hub struct {
	store    store.Store
	fabric   fabric.Fabric
	presence presence.Store
	history  *history.Service
	identity Identity
	log      *zerolog.Logger

	// presenceRefresh is how often chat sessions renew their presence entry.
	presenceRefresh time.Duration
}

// NewHub constructs a hub over the given collaborators.
func NewHub(st store.Store, fab fabric.Fabric, pres presence.Store, identity Identity, logger *zerolog.Logger) *Hub {
	return &Hub{
		store:    st,
		fabric:   fab,
		presence: pres,
		history:  history.New(st),
		identity: identity,
		log:      logger,

		presenceRefresh: presence.RefreshInterval,
	}
}

// Authenticate runs the identity gate. It has no side effects; callers must
// not create a session or touch the fabric when it fails.
func (h *Hub) Authenticate(ctx context.Context, token string) (*store.User, error) {
	if h.identity == nil {
		return nil, &SessionError{Kind: ErrUnauthenticated, Detail: "no identity provider"}
	}
	user, err := h.identity.Resolve(ctx, token)
	if err != nil {
		return nil, &SessionError{Kind: ErrUnauthenticated, Detail: "identity rejected", Err: err}
	}
	return user, nil
}

// NewChatSession builds a chat session for an authenticated client. The
// session does nothing until Connect.
func (h *Hub) NewChatSession(client *Client, slug1, slug2 string) *ChatSession {
	logger := h.log.With().
		Str("session_id", client.ID).
		Str("user", client.User.Username).
		Str("conversation", string(store.NewConversationKey(slug1, slug2))).
		Logger()
	return &ChatSession{
		hub:    h,
		client: client,
		slug1:  slug1,
		slug2:  slug2,
		log:    &logger,
	}
}

// NewNotificationSession builds a notification session for an authenticated
// client.
func (h *Hub) NewNotificationSession(client *Client) *NotificationSession {
	logger := h.log.With().
		Str("session_id", client.ID).
		Str("user", client.User.Username).
		Logger()
	return &NotificationSession{
		hub:     h,
		client:  client,
		channel: fabric.NotificationChannel(client.User.Username),
		log:     &logger,
	}
}

func (h *Hub) publish(ctx context.Context, ch fabric.Channel, frame any) error {
	data, err := proto.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode %T: %w", frame, err)
	}
	if err := h.fabric.Publish(ctx, ch, data); err != nil {
		return fmt.Errorf("publish %s: %w", ch, err)
	}
	return nil
}

// send delivers a frame directly to one client.
func send(client *Client, frame any) error {
	data, err := proto.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode %T: %w", frame, err)
	}
	return client.Send(data)
}

// SendError queues the error frame for err, if it has one, and stops the
// client so the writer flushes and closes the socket.
func SendError(client *Client, err error) {
	se := AsSessionError(err)
	if frame := se.Frame(); frame != nil {
		_ = send(client, frame)
	}
	client.Stop(se)
}
