// Package chat implements the session controller orchestrating webhook
// validation, transcript hydration, message submission, and persistence.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	domainerrors "github.com/acqua-ai/chat-gateway/internal/domain/errors"
	"github.com/acqua-ai/chat-gateway/internal/domain/models"
	"github.com/acqua-ai/chat-gateway/internal/services/sessions"
	"github.com/acqua-ai/chat-gateway/internal/services/transcript"
	"github.com/acqua-ai/chat-gateway/internal/services/webhook"
)

// State represents the controller lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateValidating    State = "validating"
	StateReady         State = "ready"
	StateSending       State = "sending"
	StateErrored       State = "errored"
)

// titleMaxLen bounds the session title derived from the first user message.
const titleMaxLen = 64

// Controller drives one conversation against one webhook endpoint. All
// operations serialize on an internal mutex: concurrent submissions are not
// a supported use case, and callers are expected to gate input while a send
// is in flight.
type Controller struct {
	webhookURL      string
	providedID      string
	store           *sessions.Store
	cache           *transcript.Cache
	client          *webhook.Client
	initialMessages []string
	logger          zerolog.Logger

	mu        sync.Mutex
	state     State
	sessionID string
	messages  []models.ChatMessage
	lastErr   string
}

// Config holds the configuration for a chat controller.
type Config struct {
	WebhookURL string
	// SessionID optionally pins an externally supplied session id, such as
	// one encoded in a shared URL.
	SessionID string
	Store     *sessions.Store
	Cache     *transcript.Cache
	Client    *webhook.Client
	// InitialMessages seed the transcript when no history can be hydrated.
	InitialMessages []string
	Logger          *zerolog.Logger
}

// NewController creates a controller in the uninitialized state. Callers run
// Validate before submitting.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("transcript cache is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("webhook client is required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Controller{
		webhookURL:      cfg.WebhookURL,
		providedID:      cfg.SessionID,
		store:           cfg.Store,
		cache:           cfg.Cache,
		client:          cfg.Client,
		initialMessages: cfg.InitialMessages,
		logger:          logger,
		state:           StateUninitialized,
	}, nil
}

// Validate resolves the session id, hydrates the transcript, and runs the
// connectivity check. Hydration failures are non-fatal and degrade to an
// empty transcript; only a failed connectivity check moves the controller to
// the errored state.
func (c *Controller) Validate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked(ctx)
}

func (c *Controller) validateLocked(ctx context.Context) error {
	if c.webhookURL == "" {
		err := domainerrors.NewConfigurationError("webhook URL is required")
		c.state = StateErrored
		c.lastErr = err.Error()
		return err
	}

	c.state = StateValidating

	if err := c.resolveSessionLocked(ctx); err != nil {
		c.state = StateErrored
		c.lastErr = err.Error()
		return err
	}

	c.hydrateLocked(ctx)

	if err := c.client.Validate(ctx, c.webhookURL, c.sessionID); err != nil {
		c.state = StateErrored
		c.lastErr = err.Error()
		return err
	}

	c.state = StateReady
	c.lastErr = ""
	return nil
}

// resolveSessionLocked picks the session id: an externally supplied id when
// it is usable, else the registry's most recent (or a fresh) session.
func (c *Controller) resolveSessionLocked(ctx context.Context) error {
	if c.sessionID != "" {
		return nil
	}

	if c.providedID != "" {
		if err := c.store.SetSession(ctx, c.webhookURL, c.providedID); err != nil {
			return err
		}
		// SetSession leaves a conflicting registration authoritative;
		// only adopt the provided id when it landed on this endpoint.
		if c.store.EndpointForSession(c.providedID) == c.webhookURL {
			c.sessionID = c.providedID
			return nil
		}
	}

	sessionID, err := c.store.GetOrCreateSessionID(ctx, c.webhookURL)
	if err != nil {
		return err
	}
	c.sessionID = sessionID
	return nil
}

// hydrateLocked fills an empty transcript from the local cache, else from
// upstream history, else from configured initial messages. All failures are
// swallowed: hydration is best-effort.
func (c *Controller) hydrateLocked(ctx context.Context) {
	if len(c.messages) > 0 {
		return
	}

	cached, err := c.cache.Load(ctx, c.webhookURL, c.sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("transcript cache load failed")
	}
	if len(cached) > 0 {
		c.messages = cached
		return
	}

	history, err := c.client.LoadPreviousSession(ctx, c.webhookURL, c.sessionID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("previous session load failed")
	}
	if len(history) > 0 {
		c.messages = history
		c.saveTranscriptLocked(ctx)
		return
	}

	for _, content := range c.initialMessages {
		c.messages = append(c.messages, models.NewAssistantMessage(content))
	}
}

// Submit sends a user message and appends the normalized assistant reply.
// An empty trimmed message with no files is a silent no-op. A controller in
// the errored state re-validates first and rejects the submission without
// sending when validation still fails.
func (c *Controller) Submit(ctx context.Context, text string, files []webhook.FileAttachment) (*models.ChatMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && len(files) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webhookURL == "" {
		return nil, domainerrors.NewConfigurationError("webhook URL is required")
	}

	if c.state == StateUninitialized || c.state == StateErrored || c.lastErr != "" {
		if err := c.validateLocked(ctx); err != nil {
			return nil, domainerrors.NewConnectivityError("cannot send message: webhook is not functional", err)
		}
	}

	c.state = StateSending

	// Optimistic append: the user message lands before the round trip, so
	// it is always ordered ahead of the assistant reply.
	userMessage := models.NewUserMessage(trimmed)
	c.messages = append(c.messages, userMessage)
	c.saveTranscriptLocked(ctx)

	result, err := c.client.SendMessage(ctx, c.webhookURL, c.sessionID, trimmed, files)
	if err != nil {
		// A failed send does not enter the errored state by itself, but
		// the recorded error forces re-validation on the next submit.
		c.state = StateReady
		c.lastErr = err.Error()
		c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("send failed")
		return nil, err
	}

	if result.SessionID != "" && result.SessionID != c.sessionID {
		// The server renamed or continued the session; adopt its id for
		// all subsequent requests.
		if err := c.store.UpdateSession(ctx, c.webhookURL, result.SessionID); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist renamed session")
		}
		c.sessionID = result.SessionID
	}

	reply := result.Message
	c.messages = append(c.messages, reply)
	c.saveTranscriptLocked(ctx)
	c.updateMetadataLocked(ctx, reply)

	c.state = StateReady
	c.lastErr = ""
	return &reply, nil
}

// ClearHistory empties the transcript, purges its cache entry, and starts a
// brand-new session. Old and new conversations never share a session id.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		if err := c.cache.Clear(ctx, c.webhookURL, c.sessionID); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear cached transcript")
		}
	}
	c.messages = nil

	sessionID, err := c.store.CreateSession(ctx, c.webhookURL)
	if err != nil {
		return err
	}
	c.sessionID = sessionID
	return nil
}

// ValidateConnection re-runs the connectivity check only. It is idempotent
// and never mutates the transcript.
func (c *Controller) ValidateConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webhookURL == "" {
		return domainerrors.NewConfigurationError("webhook URL is required")
	}

	if err := c.client.Validate(ctx, c.webhookURL, c.sessionID); err != nil {
		c.state = StateErrored
		c.lastErr = err.Error()
		return err
	}

	if c.state == StateErrored || c.state == StateUninitialized {
		c.state = StateReady
	}
	c.lastErr = ""
	return nil
}

// saveTranscriptLocked persists the transcript after a mutation. Cache
// failures are logged and swallowed: the cache is an accelerator, not the
// source of truth.
func (c *Controller) saveTranscriptLocked(ctx context.Context) {
	if err := c.cache.Save(ctx, c.webhookURL, c.sessionID, c.messages); err != nil {
		c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("failed to save transcript")
	}
}

// updateMetadataLocked refreshes the session's sidebar metadata after a
// successful exchange: title from the first user message, last message from
// the latest assistant reply.
func (c *Controller) updateMetadataLocked(ctx context.Context, reply models.ChatMessage) {
	patch := sessions.MetadataPatch{}

	for _, msg := range c.messages {
		if msg.Role == models.RoleUser {
			title := truncate(msg.Content, titleMaxLen)
			patch.Title = &title
			break
		}
	}
	last := truncate(reply.Content, titleMaxLen)
	patch.LastMessage = &last

	if err := c.store.UpdateMetadata(ctx, c.sessionID, patch); err != nil {
		c.logger.Warn().Err(err).Msg("failed to update session metadata")
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the resolved session id, empty before validation.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// WebhookURL returns the endpoint this controller talks to.
func (c *Controller) WebhookURL() string {
	return c.webhookURL
}

// Transcript returns a copy of the in-memory transcript.
func (c *Controller) Transcript() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Err returns the recorded error string, empty when healthy.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsError reports whether the controller currently carries an error.
func (c *Controller) IsError() bool {
	return c.Err() != ""
}

// truncate shortens s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
