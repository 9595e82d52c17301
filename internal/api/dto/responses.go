package dto

import "github.com/acqua-ai/chat-gateway/internal/domain/models"

// SendMessageResponse is returned by POST /chat/messages.
type SendMessageResponse struct {
	SessionID string              `json:"sessionId"`
	Reply     *models.ChatMessage `json:"reply,omitempty"`
	// Transcript length after the exchange, including the user message.
	TranscriptLength int `json:"transcriptLength"`
}

// TranscriptResponse is returned by GET /chat/history.
type TranscriptResponse struct {
	SessionID string               `json:"sessionId"`
	Messages  []models.ChatMessage `json:"messages"`
}

// ValidateResponse is returned by POST /chat/validate.
type ValidateResponse struct {
	SessionID  string `json:"sessionId"`
	State      string `json:"state"`
	Functional bool   `json:"functional"`
	Error      string `json:"error,omitempty"`
}

// ClearHistoryResponse is returned by POST /chat/clear.
type ClearHistoryResponse struct {
	SessionID string `json:"sessionId"`
}

// SessionsResponse is returned by GET /sessions.
type SessionsResponse struct {
	Sessions []models.ChatSession `json:"sessions"`
}
