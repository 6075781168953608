package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/config"
	"github.com/vovakirdan/pairchat/internal/core"
	"github.com/vovakirdan/pairchat/internal/proto"
	"github.com/vovakirdan/pairchat/internal/store"
	"github.com/vovakirdan/pairchat/internal/utils"
)

const flushTimeout = 5 * time.Second

// session is the state machine behind one socket.
type session interface {
	Connect(ctx context.Context) error
	Handle(ctx context.Context, cmd core.Command) error
	Disconnect(ctx context.Context)
}

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	hub *core.Hub
	cfg *config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg, log: logger}
}

// Chat serves GET /ws/chat/:slug1/:slug2/.
func (h *WSHandler) Chat(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}
	conn, ok := h.accept(c)
	if !ok {
		return
	}

	client := core.NewClient(utils.NewID(), user, h.cfg.SessionBuffer)
	h.serve(c.Request.Context(), conn, client, h.hub.NewChatSession(client, c.Param("slug1"), c.Param("slug2")))
}

// Notifications serves GET /ws/notifications/.
func (h *WSHandler) Notifications(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}
	conn, ok := h.accept(c)
	if !ok {
		return
	}

	client := core.NewClient(utils.NewID(), user, h.cfg.SessionBuffer)
	h.serve(c.Request.Context(), conn, client, h.hub.NewNotificationSession(client))
}

// authenticate runs the identity gate before the upgrade, so a rejected
// connection never reaches the core.
func (h *WSHandler) authenticate(c *gin.Context) (*store.User, bool) {
	user, err := h.hub.Authenticate(c.Request.Context(), tokenFromRequest(c.Request))
	if err != nil {
		h.log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("ws handshake rejected")
		c.AbortWithStatus(stdhttp.StatusForbidden)
		return nil, false
	}
	return user, true
}

func (h *WSHandler) accept(c *gin.Context) (*websocket.Conn, bool) {
	opts := &websocket.AcceptOptions{
		Subprotocols: []string{bearerProtocol},
	}
	if len(h.cfg.AllowedOrigins) > 0 {
		opts.OriginPatterns = h.cfg.AllowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return nil, false
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	return conn, true
}

func (h *WSHandler) serve(ctx context.Context, conn *websocket.Conn, client *core.Client, sess session) {
	logger := h.log.With().Str("session_id", client.ID).Str("user", client.User.Username).Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer sess.Disconnect(ctx)

	readErr := make(chan error, 1)
	if err := sess.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("session setup failed")
		core.SendError(client, err)
		readErr <- nil
	} else {
		go func() {
			readErr <- h.readLoop(ctx, conn, client, sess, &logger)
		}()
	}

	writeErr := h.writeLoop(ctx, conn, client)

	status, reason := closeStatus(client.Err(), writeErr)
	if status == websocket.StatusInternalError || status == websocket.StatusPolicyViolation {
		logger.Warn().Err(client.Err()).Str("reason", reason).Msg("ws connection closed with error")
	}
	_ = conn.Close(status, reason)
	<-readErr
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, sess session, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.MaxFramesPerMinute)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			client.Stop(err)
			return err
		}

		if !limiter.allow() {
			logger.Debug().Msg("frame rate limit exceeded")
			if err := client.Send(rateLimitedFrame()); err != nil {
				return err
			}
			continue
		}

		inbound, err := proto.DecodeInbound(data)
		if err != nil {
			se := &core.SessionError{Kind: core.ErrMalformedRequest, Detail: core.DetailMalformedFrame, Err: err}
			core.SendError(client, se)
			return se
		}

		cmd := inboundToCommand(inbound)
		logger.Debug().Str("type", cmd.Type).Msg("frame received")
		if err := sess.Handle(ctx, cmd); err != nil {
			logger.Warn().Err(err).Str("type", cmd.Type).Msg("frame handling failed")
			core.SendError(client, err)
			return err
		}
	}
}

// writeLoop is the only writer of conn. Once the client is stopped it
// flushes what is already queued and returns.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case frame := <-client.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				client.Stop(err)
				return err
			}
		case <-client.Done():
			if errors.Is(client.Err(), core.ErrSlowConsumer) {
				return nil
			}
			return flush(ctx, conn, client)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func flush(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	for {
		select {
		case frame := <-client.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func closeStatus(reason, writeErr error) (websocket.StatusCode, string) {
	if s := websocket.CloseStatus(reason); s != -1 {
		// The peer closed first; echo its status.
		return s, ""
	}
	switch {
	case errors.Is(reason, core.ErrSlowConsumer):
		return websocket.StatusPolicyViolation, "slow consumer"
	case errors.Is(reason, core.ErrUnauthenticated):
		return websocket.StatusPolicyViolation, "unauthenticated"
	case errors.Is(reason, core.ErrMalformedRequest), errors.Is(reason, core.ErrUnknownParticipant):
		return websocket.StatusNormalClosure, "invalid request"
	case errors.Is(reason, core.ErrUnexpected):
		return websocket.StatusInternalError, "internal error"
	case writeErr != nil && !errors.Is(writeErr, context.Canceled):
		return websocket.StatusInternalError, "write failed"
	default:
		return websocket.StatusNormalClosure, "closing"
	}
}
