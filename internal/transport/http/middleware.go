package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/auth"
	"github.com/vovakirdan/pairchat/internal/store"
)

const (
	contextKeyUser  = "user"
	requestIDHeader = "X-Request-ID"
)

// AuthMiddleware resolves the bearer token through the identity gate and
// stores the user for the handlers. Anything else gets 401.
func AuthMiddleware(gate *auth.Gate, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := gate.Resolve(c.Request.Context(), tokenFromRequest(c.Request))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing authorization header"
			}
			logger.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg})
			return
		}

		c.Set(contextKeyUser, user)
		c.Next()
	}
}

// currentUser returns the user stored by AuthMiddleware.
func currentUser(c *gin.Context) (*store.User, bool) {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*store.User)
	return user, ok
}

// LoggerMiddleware tags each request with an ID and logs it once finished.
// Server errors log at error level, client errors at warn.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
