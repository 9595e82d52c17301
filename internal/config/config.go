// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Webhook WebhookConfig
	Chat    ChatConfig
	Log     LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds key-value store configuration.
type StoreConfig struct {
	Type          string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string
}

// WebhookConfig holds upstream webhook configuration.
type WebhookConfig struct {
	// DefaultURL is used when a request does not name a webhook explicitly.
	DefaultURL string
	// Username/Password enable basic auth on webhook requests when set.
	Username string
	Password string
	// SendTimeout bounds a sendMessage POST.
	SendTimeout time.Duration
	// ProbeTimeout bounds the plain GET connectivity probe.
	ProbeTimeout time.Duration
	// HistoryTimeout bounds the loadPreviousSession GET.
	HistoryTimeout time.Duration
}

// ChatConfig holds chat engine configuration.
type ChatConfig struct {
	// MaxStoredMessages bounds the persisted transcript per session.
	MaxStoredMessages int
	// InitialMessages seed a transcript when no history can be hydrated.
	InitialMessages []string
	// EncryptionKey enables at-rest encryption of transcript blobs when set.
	EncryptionKey string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8080),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Store: StoreConfig{
			Type:          getEnv("KVSTORE_TYPE", "redis"),
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGODB_DATABASE", "chatgateway"),
		},
		Webhook: WebhookConfig{
			DefaultURL:     getEnv("WEBHOOK_URL", ""),
			Username:       getEnv("WEBHOOK_USERNAME", ""),
			Password:       getEnv("WEBHOOK_PASSWORD", ""),
			SendTimeout:    time.Duration(getEnvAsInt("WEBHOOK_SEND_TIMEOUT_SECONDS", 120)) * time.Second,
			ProbeTimeout:   time.Duration(getEnvAsInt("WEBHOOK_PROBE_TIMEOUT_SECONDS", 5)) * time.Second,
			HistoryTimeout: time.Duration(getEnvAsInt("WEBHOOK_HISTORY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Chat: ChatConfig{
			MaxStoredMessages: getEnvAsInt("CHAT_MAX_STORED_MESSAGES", 50),
			InitialMessages:   getEnvAsList("CHAT_INITIAL_MESSAGES"),
			EncryptionKey:     getEnv("TRANSCRIPT_ENCRYPTION_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList gets a pipe-separated environment variable as a string slice.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
