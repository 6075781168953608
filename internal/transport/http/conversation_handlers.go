package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/proto"
	"github.com/vovakirdan/pairchat/internal/store"
)

// ConversationHandlers serves the conversation listing.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		log:   logger,
	}
}

// ConversationResponse represents one conversation of the caller.
type ConversationResponse struct {
	ID          int64             `json:"id"`
	ConvID      string            `json:"conv_id"`
	Name        string            `json:"name"`
	OtherUser   proto.UserSummary `json:"other_user"`
	LastMessage *proto.Message    `json:"last_message"`
}

// List returns the caller's conversations, most recent activity first.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		h.log.Error().Msg("user not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	ctx := c.Request.Context()

	convs, err := h.store.ListConversationsForUser(ctx, user.Username)
	if err != nil {
		h.log.Error().Err(err).Str("username", user.Username).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		item, err := h.describe(ctx, conv, user.Username)
		if err != nil {
			h.log.Error().Err(err).Str("conv_id", conv.PublicID).Msg("failed to describe conversation")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, response)
}

func (h *ConversationHandlers) describe(ctx context.Context, conv *store.Conversation, me string) (ConversationResponse, error) {
	item := ConversationResponse{
		ID:     conv.ID,
		ConvID: conv.PublicID,
		Name:   conv.Name.String(),
	}

	other := conv.ParticipantB
	if other == me {
		other = conv.ParticipantA
	}
	item.OtherUser.Username = other
	u, err := h.store.GetUserByUsername(ctx, other)
	switch {
	case err == nil:
		item.OtherUser.ID = u.ID
	case !errors.Is(err, store.ErrNotFound):
		return item, err
	}

	last, err := h.store.ListRecentMessages(ctx, conv.ID, 1)
	if err != nil {
		return item, err
	}
	if len(last) > 0 {
		msg := proto.MessageFromStore(last[0])
		item.LastMessage = &msg
	}
	return item, nil
}
