// Package main is the entry point for the Acqua Chat Gateway.
// @title Acqua Chat Gateway API
// @version 1.0
// @description Session-aware gateway between chat frontends and n8n-style chat webhooks
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/acqua-ai/chat-gateway
// @contact.email support@acqua.ai

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/acqua-ai/chat-gateway/docs"
	"github.com/acqua-ai/chat-gateway/internal/api/handlers"
	"github.com/acqua-ai/chat-gateway/internal/api/middleware"
	"github.com/acqua-ai/chat-gateway/internal/api/routes"
	"github.com/acqua-ai/chat-gateway/internal/config"
	"github.com/acqua-ai/chat-gateway/internal/core/kvstore"
	mongokv "github.com/acqua-ai/chat-gateway/internal/infrastructure/kvstore/mongodb"
	rediskv "github.com/acqua-ai/chat-gateway/internal/infrastructure/kvstore/redis"
	"github.com/acqua-ai/chat-gateway/internal/pkg/encryption"
	"github.com/acqua-ai/chat-gateway/internal/services/chat"
	"github.com/acqua-ai/chat-gateway/internal/services/sessions"
	"github.com/acqua-ai/chat-gateway/internal/services/transcript"
	"github.com/acqua-ai/chat-gateway/internal/services/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	// Initialize kv store using factory pattern
	kv, err := createKVStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kv store")
	}
	defer kv.Close()

	// Initialize encryptor
	encryptor, err := createEncryptor(cfg.Chat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	// Initialize session store
	sessionStore, err := sessions.NewStore(ctx, &sessions.Config{KV: kv})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}

	// Initialize transcript cache
	cache, err := transcript.NewCache(&transcript.Config{
		KV:                kv,
		Encryptor:         encryptor,
		MaxStoredMessages: cfg.Chat.MaxStoredMessages,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize transcript cache")
	}

	// Initialize webhook client
	client := webhook.NewClient(&webhook.ClientConfig{
		Username:       cfg.Webhook.Username,
		Password:       cfg.Webhook.Password,
		SendTimeout:    cfg.Webhook.SendTimeout,
		ProbeTimeout:   cfg.Webhook.ProbeTimeout,
		HistoryTimeout: cfg.Webhook.HistoryTimeout,
	})

	// Initialize controller manager
	manager, err := chat.NewManager(&chat.ManagerConfig{
		Store:           sessionStore,
		Cache:           cache,
		Client:          client,
		InitialMessages: cfg.Chat.InitialMessages,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize controller manager")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	router := setupRouter(cfg, kv, sessionStore, manager)

	// Create HTTP server
	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// createKVStore creates a kv store based on the configuration.
func createKVStore(ctx context.Context, cfg config.StoreConfig) (kvstore.Store, error) {
	storeType := kvstore.Type(cfg.Type)

	switch storeType {
	case kvstore.TypeRedis:
		return rediskv.NewStore(rediskv.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case kvstore.TypeMongoDB:
		return mongokv.NewStore(ctx, mongokv.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported kv store type")
		return nil, nil
	}
}

// createEncryptor creates an encryptor based on the configuration.
func createEncryptor(cfg config.ChatConfig) (encryption.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		// Use NoOp encryptor in development
		log.Warn().Msg("TRANSCRIPT_ENCRYPTION_KEY not set, using NoOp encryptor")
		return encryption.NewNoOpEncryptor(), nil
	}
	return encryption.NewAESEncryptor(cfg.EncryptionKey)
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, kv kvstore.Store, sessionStore *sessions.Store, manager *chat.Manager) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	router.Use(middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()))

	// Create handlers
	healthHandler := handlers.NewHealthHandler(kv)
	chatHandler := handlers.NewChatHandler(manager, cfg.Webhook.DefaultURL)
	sessionsHandler := handlers.NewSessionsHandler(sessionStore, manager, cfg.Webhook.DefaultURL)

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:   healthHandler,
		ChatHandler:     chatHandler,
		SessionsHandler: sessionsHandler,
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw)

	// Swagger documentation endpoint
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.NoRoute(middleware.NotFound())

	return router
}
