package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/auth"
	"github.com/vovakirdan/pairchat/internal/config"
	"github.com/vovakirdan/pairchat/internal/core"
	"github.com/vovakirdan/pairchat/internal/store"
)

// NewServer builds the HTTP server serving the REST API and the sockets.
func NewServer(hub *core.Hub, authService *auth.Service, gate *auth.Gate, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, authService, gate, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route.
func NewRouter(hub *core.Hub, authService *auth.Service, gate *auth.Gate, st store.Store, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := NewAPIHandlers(authService, logger)
	users := NewUserHandlers(st, logger)
	conversations := NewConversationHandlers(st, logger)

	public := router.Group("/api")
	public.POST("/register", api.Register)
	public.POST("/login", api.Login)

	protected := router.Group("/api")
	protected.Use(AuthMiddleware(gate, logger))
	protected.GET("/users/me", users.Me)
	protected.GET("/users/:username", users.Get)
	protected.GET("/conversations", conversations.List)

	ws := NewWSHandler(hub, cfg, logger)
	router.GET("/ws/chat/:slug1/:slug2", ws.Chat)
	router.GET("/ws/chat/:slug1/:slug2/", ws.Chat)
	router.GET("/ws/notifications", ws.Notifications)
	router.GET("/ws/notifications/", ws.Notifications)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
