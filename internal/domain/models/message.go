// Package models contains domain models for the Acqua Chat Gateway.
package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleUser represents a message from the user.
	RoleUser MessageRole = "user"
	// RoleAssistant represents a message from the assistant.
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage represents a single message in a conversation transcript.
// Messages are immutable once created; a transcript is append-only.
type ChatMessage struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Role      MessageRole `json:"role"`
	Timestamp string      `json:"timestamp"`
}

// NewUserMessage creates a new user message with a fresh id and timestamp.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      RoleUser,
		Timestamp: Now(),
	}
}

// NewAssistantMessage creates a new assistant message with a fresh id and timestamp.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      RoleAssistant,
		Timestamp: Now(),
	}
}

// Now returns the current UTC time formatted as an ISO-8601 string.
// Transcript timestamps are stored as strings because the upstream
// webhook protocol exchanges them in that form.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
