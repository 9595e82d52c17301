// Package dto defines request and response shapes for the HTTP API.
package dto

// FilePayload is a base64-encoded file attached to a chat message.
type FilePayload struct {
	Name        string `json:"name" binding:"required"`
	ContentType string `json:"contentType,omitempty"`
	// Data is the base64-encoded file content.
	Data string `json:"data" binding:"required"`
}

// SendMessageRequest is the body for POST /chat/messages.
type SendMessageRequest struct {
	WebhookURL string        `json:"webhookUrl,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	Message    string        `json:"message,omitempty"`
	Files      []FilePayload `json:"files,omitempty"`
}

// ValidateRequest is the body for POST /chat/validate.
type ValidateRequest struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
}

// ClearHistoryRequest is the body for POST /chat/clear.
type ClearHistoryRequest struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	SessionID  string `json:"sessionId" binding:"required"`
}

// RegisterSessionRequest is the body for POST /sessions: it registers an
// externally supplied session id (for example from a shared URL) against a
// webhook URL.
type RegisterSessionRequest struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	SessionID  string `json:"sessionId" binding:"required"`
}
