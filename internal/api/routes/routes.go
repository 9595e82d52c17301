// Package routes defines the HTTP routes for the chat gateway.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/acqua-ai/chat-gateway/internal/api/handlers"
	"github.com/acqua-ai/chat-gateway/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler   *handlers.HealthHandler
	ChatHandler     *handlers.ChatHandler
	SessionsHandler *handlers.SessionsHandler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// API v1 routes - all routes under /api/v1/chat-gateway
	v1 := r.Group("/api/v1/chat-gateway")
	{
		// Health check routes
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		// Chat routes
		chat := v1.Group("/chat")
		{
			chat.GET("/history", cfg.ChatHandler.GetHistory)
			chat.POST("/messages", cfg.ChatHandler.SendMessage)
			chat.POST("/validate", cfg.ChatHandler.Validate)
			chat.POST("/clear", cfg.ChatHandler.ClearHistory)
		}

		// Session registry routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", cfg.SessionsHandler.List)
			sessions.POST("", cfg.SessionsHandler.Register)
			sessions.DELETE("/:sessionId", cfg.SessionsHandler.Delete)
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	// Apply global middleware
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	// Setup routes
	Setup(r, cfg)
}
