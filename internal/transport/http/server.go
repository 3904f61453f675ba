package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/messenger/internal/auth"
	"github.com/vovakirdan/messenger/internal/config"
	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/service/messages"
)

// NewServer builds the HTTP server with the REST API and the push endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, msgService *messages.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(msgService, logger)
	messageHandlers := NewMessageHandlers(msgService, hub, logger)
	wsHandler := NewWSHandler(hub, cfg, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		{
			protected.GET("/users/search", userHandlers.SearchUsers)
			protected.GET("/conversations", messageHandlers.ListConversations)
			protected.POST("/messages", messageHandlers.SendMessage)
			protected.PUT("/messages", messageHandlers.MarkRead)
			protected.GET("/messages", messageHandlers.HasUnread)
		}
	}

	router.GET("/ws", AuthMiddleware(authService, logger), wsHandler.Serve)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
