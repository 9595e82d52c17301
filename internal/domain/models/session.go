// Package models contains domain models for the Acqua Chat Gateway.
package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChatSession represents one conversation thread against a webhook endpoint.
type ChatSession struct {
	SessionID   string    `json:"sessionId"`
	WebhookURL  string    `json:"webhookUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Title       string    `json:"title,omitempty"`
	LastMessage string    `json:"lastMessage,omitempty"`
}

// NewChatSession creates a new session for the given webhook URL with a
// freshly generated session id.
func NewChatSession(webhookURL string) ChatSession {
	now := time.Now().UTC()
	return ChatSession{
		SessionID:  uuid.NewString(),
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch bumps the session's UpdatedAt to the current time.
func (s *ChatSession) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// SortSessionsByRecency sorts sessions by UpdatedAt descending, in place.
func SortSessionsByRecency(sessions []ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
