package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/store"
)

// UserHandlers serves profile lookups.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers builds the profile handlers.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{store: st, log: logger}
}

// UserResponse is a user profile. Email and CreatedAt are only filled in
// for the caller's own profile.
type UserResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func userResponse(u *store.User, self bool) UserResponse {
	resp := UserResponse{ID: u.ID, Username: u.Username}
	if self {
		created := u.CreatedAt
		resp.Email = u.Email
		resp.CreatedAt = &created
	}
	return resp
}

// Me returns the caller's profile.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, userResponse(user, true))
}

// Get looks up a handle, so a client can check it before opening a chat.
// Suspended accounts look the same as missing ones.
// GET /api/users/:username
func (h *UserHandlers) Get(c *gin.Context) {
	username := c.Param("username")

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && user.IsSuspended):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case err != nil:
		h.log.Error().Err(err).Str("username", username).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	default:
		self := false
		if caller, ok := currentUser(c); ok {
			self = caller.ID == user.ID
		}
		c.JSON(http.StatusOK, userResponse(user, self))
	}
}
