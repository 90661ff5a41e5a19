// Package http exposes the relay over HTTP: the WebSocket endpoint peers
// connect to, plus the API-key/JWT guarded administrative surface.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/auth"
	"github.com/chanrelay/chanrelay-server/internal/chanlog"
	"github.com/chanrelay/chanrelay-server/internal/config"
	"github.com/chanrelay/chanrelay-server/internal/core"
)

// NewServer builds the HTTP server with all routes mounted.
func NewServer(relay *core.Relay, history *chanlog.Store, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.GET("/ws", gin.WrapH(NewWSHandler(relay, cfg.AuthTimeout, cfg.MessageRateLimit, logger)))

	apiHandlers := NewAPIHandlers(authService, logger)
	api := router.Group("/api", APIKeyMiddleware(cfg.APIKey, logger))
	api.POST("/login", apiHandlers.Login)
	api.POST("/register", apiHandlers.Register)

	adminHandlers := NewAdminHandlers(relay, history, logger)
	admin := router.Group("/websocket",
		APIKeyMiddleware(cfg.APIKey, logger),
		AuthMiddleware(authService, logger))
	admin.GET("/clients", adminHandlers.ListClients)
	admin.GET("/clients/by-channel", adminHandlers.ClientsByChannel)
	admin.GET("/channels", adminHandlers.ListChannels)
	admin.GET("/channel/events", adminHandlers.ChannelEvents)
	admin.POST("/broadcast", adminHandlers.Broadcast)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
