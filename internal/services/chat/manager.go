package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	domainerrors "github.com/acqua-ai/chat-gateway/internal/domain/errors"
	"github.com/acqua-ai/chat-gateway/internal/services/sessions"
	"github.com/acqua-ai/chat-gateway/internal/services/transcript"
	"github.com/acqua-ai/chat-gateway/internal/services/webhook"
)

// Manager keeps one live controller per session so that consecutive HTTP
// requests for the same conversation hit a consistent state machine.
type Manager struct {
	store           *sessions.Store
	cache           *transcript.Cache
	client          *webhook.Client
	initialMessages []string
	logger          zerolog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

// ManagerConfig holds the configuration for the controller manager.
type ManagerConfig struct {
	Store           *sessions.Store
	Cache           *transcript.Cache
	Client          *webhook.Client
	InitialMessages []string
	Logger          *zerolog.Logger
}

// NewManager creates a controller manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
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

	return &Manager{
		store:           cfg.Store,
		cache:           cfg.Cache,
		client:          cfg.Client,
		initialMessages: cfg.InitialMessages,
		logger:          logger,
		controllers:     make(map[string]*Controller),
	}, nil
}

// Resolve returns the live controller for a (webhook URL, session id) pair,
// creating and validating a new one when none exists. A controller that
// fails its connectivity check is still returned: it carries the errored
// state and rejects submissions itself.
func (m *Manager) Resolve(ctx context.Context, webhookURL, sessionID string) (*Controller, error) {
	if webhookURL == "" {
		return nil, domainerrors.NewConfigurationError("webhook URL is required")
	}

	m.mu.Lock()
	if sessionID != "" {
		if ctrl, ok := m.controllers[sessionID]; ok && ctrl.WebhookURL() == webhookURL {
			m.mu.Unlock()
			return ctrl, nil
		}
	}
	m.mu.Unlock()

	ctrl, err := NewController(&Config{
		WebhookURL:      webhookURL,
		SessionID:       sessionID,
		Store:           m.store,
		Cache:           m.cache,
		Client:          m.client,
		InitialMessages: m.initialMessages,
		Logger:          &m.logger,
	})
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to create chat controller", err)
	}

	if err := ctrl.Validate(ctx); err != nil {
		if domainerrors.IsConfiguration(err) {
			return nil, err
		}
		// Connectivity failures leave the controller in the errored
		// state; submissions against it are rejected until it recovers.
		m.logger.Warn().Err(err).Str("webhook_url", webhookURL).Msg("controller validation failed")
	}

	resolved := ctrl.SessionID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.controllers[resolved]; ok && existing.WebhookURL() == webhookURL {
		return existing, nil
	}
	if resolved != "" {
		m.controllers[resolved] = ctrl
	}
	return ctrl, nil
}

// Clear runs ClearHistory on a controller and re-keys it under the new
// session id. Returns the new session id.
func (m *Manager) Clear(ctx context.Context, ctrl *Controller) (string, error) {
	oldID := ctrl.SessionID()
	if err := ctrl.ClearHistory(ctx); err != nil {
		return "", err
	}
	newID := ctrl.SessionID()

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, oldID)
	m.controllers[newID] = ctrl
	return newID, nil
}

// Drop forgets the live controller for a session id, if any. Used when the
// session is deleted from the registry.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, sessionID)
}
