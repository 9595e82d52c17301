// Package sessions provides the durable registry of chat sessions per
// webhook endpoint.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/acqua-ai/chat-gateway/internal/core/kvstore"
	"github.com/acqua-ai/chat-gateway/internal/domain/models"
)

const (
	// registryKey is the key under which the whole registry blob lives.
	registryKey = "chat:sessions"

	// registryVersion is the current schema version. Version 0 stored a
	// single session per webhook URL; version 1 stores a list.
	registryVersion = 1
)

// envelope wraps the persisted registry with its schema version.
type envelope struct {
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// payload is the version 1 registry layout.
type payload struct {
	Sessions           map[string][]models.ChatSession `json:"sessions"`
	SessionIDToWebhook map[string]string               `json:"sessionIdToWebhook"`
}

// legacyPayload is the version 0 registry layout: one session per webhook URL.
type legacyPayload struct {
	Sessions           map[string]models.ChatSession `json:"sessions"`
	SessionIDToWebhook map[string]string             `json:"sessionIdToWebhook"`
}

// MetadataPatch carries optional display metadata updates for a session.
type MetadataPatch struct {
	Title       *string
	LastMessage *string
}

// Store is the process-wide session registry. It keeps the forward map
// (webhook URL to sessions) and the reverse map (session id to webhook URL)
// in lockstep under every mutation, and rewrites the persisted blob after
// each one.
type Store struct {
	kv     kvstore.Store
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string][]models.ChatSession
	reverse  map[string]string
}

// Config holds the configuration for the session store.
type Config struct {
	KV     kvstore.Store
	Logger *zerolog.Logger
}

// NewStore creates a session store and loads the persisted registry once.
// A corrupted blob is recovered as an empty registry, never surfaced.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.KV == nil {
		return nil, fmt.Errorf("kv store is required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Store{
		kv:       cfg.KV,
		logger:   logger,
		sessions: make(map[string][]models.ChatSession),
		reverse:  make(map[string]string),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the registry blob and applies the forward-only migration from
// version 0 if needed. The migrated layout is rewritten on the next save.
func (s *Store) load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, registryKey)
	if err != nil {
		return fmt.Errorf("failed to load session registry: %w", err)
	}
	if raw == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn().Err(err).Msg("session registry corrupted, starting empty")
		return nil
	}

	switch env.Version {
	case registryVersion:
		var p payload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.logger.Warn().Err(err).Msg("session registry payload corrupted, starting empty")
			return nil
		}
		if p.Sessions != nil {
			s.sessions = p.Sessions
		}
		if p.SessionIDToWebhook != nil {
			s.reverse = p.SessionIDToWebhook
		}
	case 0:
		var legacy legacyPayload
		if err := json.Unmarshal(env.Payload, &legacy); err != nil {
			s.logger.Warn().Err(err).Msg("legacy session registry corrupted, starting empty")
			return nil
		}
		for webhookURL, session := range legacy.Sessions {
			s.sessions[webhookURL] = []models.ChatSession{session}
			s.reverse[session.SessionID] = webhookURL
		}
		s.logger.Info().Int("sessions", len(legacy.Sessions)).Msg("migrated session registry from v0 layout")
	default:
		s.logger.Warn().Int("version", env.Version).Msg("unknown session registry version, starting empty")
	}

	return nil
}

// persist rewrites the full registry blob. Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	p := payload{
		Sessions:           s.sessions,
		SessionIDToWebhook: s.reverse,
	}
	rawPayload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal session registry: %w", err)
	}
	raw, err := json.Marshal(envelope{Version: registryVersion, Payload: rawPayload})
	if err != nil {
		return fmt.Errorf("failed to marshal registry envelope: %w", err)
	}
	if err := s.kv.Set(ctx, registryKey, raw); err != nil {
		return fmt.Errorf("failed to persist session registry: %w", err)
	}
	return nil
}

// GetOrCreateSessionID returns the most recently updated session id for the
// webhook URL, creating a fresh session when none exists.
func (s *Store) GetOrCreateSessionID(ctx context.Context, webhookURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if recent := s.mostRecentLocked(webhookURL); recent != nil {
		return recent.SessionID, nil
	}
	return s.createLocked(ctx, webhookURL)
}

// CreateSession unconditionally creates a new session for the webhook URL,
// even when others already exist. Used for explicit "new chat".
func (s *Store) CreateSession(ctx context.Context, webhookURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, webhookURL)
}

func (s *Store) createLocked(ctx context.Context, webhookURL string) (string, error) {
	session := models.NewChatSession(webhookURL)
	s.sessions[webhookURL] = append(s.sessions[webhookURL], session)
	s.reverse[session.SessionID] = webhookURL

	if err := s.persist(ctx); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("webhook_url", webhookURL).
		Str("session_id", session.SessionID).
		Msg("created chat session")
	return session.SessionID, nil
}

// EndpointForSession returns the webhook URL a session id is registered
// under, or the empty string when unknown.
func (s *Store) EndpointForSession(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reverse[sessionID]
}

// SetSession idempotently registers an externally supplied session id (for
// example one encoded in a shared URL) against a webhook URL. A session id
// already registered under a different URL is a conflict; the existing
// registration stays authoritative and only its UpdatedAt is refreshed.
func (s *Store) SetSession(ctx context.Context, webhookURL, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.reverse[sessionID]; ok {
		s.touchLocked(owner, sessionID)
		return s.persist(ctx)
	}

	session := models.NewChatSession(webhookURL)
	session.SessionID = sessionID
	s.sessions[webhookURL] = append(s.sessions[webhookURL], session)
	s.reverse[sessionID] = webhookURL
	return s.persist(ctx)
}

// UpdateSession refreshes UpdatedAt for the (webhookURL, sessionID) pair.
// A session id the registry has never seen — the server renaming a session
// mid-conversation — is registered under the webhook URL, keeping the
// reverse index repaired.
func (s *Store) UpdateSession(ctx context.Context, webhookURL, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, known := s.reverse[sessionID]
	if known && owner == webhookURL {
		s.touchLocked(webhookURL, sessionID)
		return s.persist(ctx)
	}
	if known {
		// Registered under another endpoint: that registration wins.
		s.touchLocked(owner, sessionID)
		return s.persist(ctx)
	}

	session := models.NewChatSession(webhookURL)
	session.SessionID = sessionID
	s.sessions[webhookURL] = append(s.sessions[webhookURL], session)
	s.reverse[sessionID] = webhookURL
	return s.persist(ctx)
}

func (s *Store) touchLocked(webhookURL, sessionID string) {
	list := s.sessions[webhookURL]
	for i := range list {
		if list[i].SessionID == sessionID {
			list[i].Touch()
			return
		}
	}
}

// DeleteSession removes a session from the registry. Deleting an unknown or
// already-deleted session id is a no-op.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	webhookURL, ok := s.reverse[sessionID]
	if !ok {
		return nil
	}

	list := s.sessions[webhookURL]
	filtered := list[:0]
	for _, session := range list {
		if session.SessionID != sessionID {
			filtered = append(filtered, session)
		}
	}
	if len(filtered) == 0 {
		delete(s.sessions, webhookURL)
	} else {
		s.sessions[webhookURL] = filtered
	}
	delete(s.reverse, sessionID)

	return s.persist(ctx)
}

// ListAll returns every session across all webhook URLs, most recently
// updated first.
func (s *Store) ListAll() []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.ChatSession, 0, len(s.reverse))
	for _, list := range s.sessions {
		all = append(all, list...)
	}
	models.SortSessionsByRecency(all)
	return all
}

// ListByEndpoint returns the sessions for one webhook URL, most recently
// updated first.
func (s *Store) ListByEndpoint(webhookURL string) []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.sessions[webhookURL]
	out := make([]models.ChatSession, len(list))
	copy(out, list)
	models.SortSessionsByRecency(out)
	return out
}

// MostRecent returns the most recently updated session for a webhook URL,
// or nil when none exists.
func (s *Store) MostRecent(webhookURL string) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mostRecentLocked(webhookURL)
}

func (s *Store) mostRecentLocked(webhookURL string) *models.ChatSession {
	list := s.sessions[webhookURL]
	if len(list) == 0 {
		return nil
	}
	recent := list[0]
	for _, session := range list[1:] {
		if session.UpdatedAt.After(recent.UpdatedAt) {
			recent = session
		}
	}
	return &recent
}

// UpdateMetadata patches display metadata for a session and bumps its
// UpdatedAt. Unknown session ids are a no-op.
func (s *Store) UpdateMetadata(ctx context.Context, sessionID string, patch MetadataPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	webhookURL, ok := s.reverse[sessionID]
	if !ok {
		return nil
	}

	list := s.sessions[webhookURL]
	for i := range list {
		if list[i].SessionID == sessionID {
			if patch.Title != nil {
				list[i].Title = *patch.Title
			}
			if patch.LastMessage != nil {
				list[i].LastMessage = *patch.LastMessage
			}
			list[i].Touch()
			break
		}
	}

	return s.persist(ctx)
}
