// Package transcript provides bounded persistence of conversation
// transcripts, keyed by (webhook URL, session id).
package transcript

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/acqua-ai/chat-gateway/internal/core/kvstore"
	"github.com/acqua-ai/chat-gateway/internal/domain/models"
	"github.com/acqua-ai/chat-gateway/internal/pkg/encryption"
)

// DefaultMaxStoredMessages bounds a persisted transcript.
const DefaultMaxStoredMessages = 50

// Cache stores the most recent messages of a transcript for fast reload
// without a round trip to the webhook. It is a best-effort accelerator:
// never the source of truth for session identity, and a lost or corrupted
// entry only costs a re-hydration.
type Cache struct {
	kv        kvstore.Store
	encryptor encryption.Encryptor
	max       int
	logger    zerolog.Logger
}

// Config holds the configuration for the transcript cache.
type Config struct {
	KV kvstore.Store
	// Encryptor encrypts blobs at rest. Defaults to the no-op encryptor.
	Encryptor encryption.Encryptor
	// MaxStoredMessages bounds each entry; oldest messages are dropped first.
	MaxStoredMessages int
	Logger            *zerolog.Logger
}

// NewCache creates a transcript cache.
func NewCache(cfg *Config) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.KV == nil {
		return nil, fmt.Errorf("kv store is required")
	}

	encryptor := cfg.Encryptor
	if encryptor == nil {
		encryptor = encryption.NewNoOpEncryptor()
	}

	max := cfg.MaxStoredMessages
	if max <= 0 {
		max = DefaultMaxStoredMessages
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Cache{
		kv:        cfg.KV,
		encryptor: encryptor,
		max:       max,
		logger:    logger,
	}, nil
}

// Load returns the cached transcript for a (webhook URL, session id) pair.
// A missing entry returns nil, distinguishing "never cached" from "cached
// empty". A corrupted entry is purged and reported as a miss.
func (c *Cache) Load(ctx context.Context, webhookURL, sessionID string) ([]models.ChatMessage, error) {
	key := cacheKey(webhookURL, sessionID)

	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	plaintext, err := c.encryptor.Decrypt(string(raw))
	if err != nil {
		c.purgeCorrupted(ctx, key, err)
		return nil, nil
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal(plaintext, &messages); err != nil {
		c.purgeCorrupted(ctx, key, err)
		return nil, nil
	}

	return messages, nil
}

// Save replaces the cached transcript, truncated to the most recent bound.
func (c *Cache) Save(ctx context.Context, webhookURL, sessionID string, messages []models.ChatMessage) error {
	if len(messages) > c.max {
		messages = messages[len(messages)-c.max:]
	}

	plaintext, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	sealed, err := c.encryptor.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt transcript: %w", err)
	}

	if err := c.kv.Set(ctx, cacheKey(webhookURL, sessionID), []byte(sealed)); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// Clear removes the cached transcript entirely.
func (c *Cache) Clear(ctx context.Context, webhookURL, sessionID string) error {
	if _, err := c.kv.Delete(ctx, cacheKey(webhookURL, sessionID)); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// purgeCorrupted deletes an unreadable entry so it cannot fail repeatedly.
func (c *Cache) purgeCorrupted(ctx context.Context, key string, cause error) {
	c.logger.Warn().Err(cause).Str("key", key).Msg("corrupted transcript entry purged")
	_, _ = c.kv.Delete(ctx, key)
}

// cacheKey builds the store key for a (webhook URL, session id) pair.
func cacheKey(webhookURL, sessionID string) string {
	return fmt.Sprintf("chat:messages:%s:%s", webhookURL, sessionID)
}
