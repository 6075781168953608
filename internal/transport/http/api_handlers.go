package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/auth"
)

// APIHandlers serves account registration and login.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers builds the account handlers.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{authService: authService, log: logger}
}

// RegisterRequest is the body of POST /api/register. Handle and email rules
// beyond the binding tags are enforced by auth.Service.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a bearer token for the sockets and protected routes.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the body of every non-2xx REST reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// authErrors maps service errors to the status and message clients see.
var authErrors = []struct {
	err    error
	status int
	msg    string
}{
	{auth.ErrUserExists, http.StatusConflict, "user already exists"},
	{auth.ErrInvalidUsername, http.StatusBadRequest, "invalid username"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "invalid email"},
	{auth.ErrInvalidPassword, http.StatusBadRequest, "password must be at least 6 characters"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{auth.ErrUserSuspended, http.StatusForbidden, "user suspended"},
}

func (h *APIHandlers) writeAuthError(c *gin.Context, op, username string, err error) {
	for _, e := range authErrors {
		if errors.Is(err, e.err) {
			h.log.Debug().Err(err).Str("op", op).Str("username", username).Msg("auth request rejected")
			c.JSON(e.status, ErrorResponse{Error: e.msg})
			return
		}
	}
	h.log.Error().Err(err).Str("op", op).Str("username", username).Msg("auth request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// Register creates an account and returns a token for it.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, "register", req.Username, err)
		return
	}

	h.log.Info().Str("username", req.Username).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login exchanges credentials for a token.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeAuthError(c, "login", req.Username, err)
		return
	}

	h.log.Debug().Str("username", req.Username).Msg("user logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}
