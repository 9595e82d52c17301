// Package webhook implements the client for n8n-style chat workflow webhooks.
package webhook

import (
	"encoding/json"

	"github.com/acqua-ai/chat-gateway/internal/domain/models"
)

// Action values understood by the chat webhook.
const (
	ActionSendMessage         = "sendMessage"
	ActionLoadPreviousSession = "loadPreviousSession"
)

// ChatRequest represents the payload POSTed to the chat webhook.
type ChatRequest struct {
	Action    string `json:"action"`
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// ChatResponse represents the webhook reply. The upstream contract is loose:
// any of these fields may be present, and unknown shapes are tolerated.
type ChatResponse struct {
	// Output is the primary reply format ({"output": ...}). It is kept raw
	// because the value may be a string or arbitrary JSON.
	Output json.RawMessage `json:"output,omitempty"`
	// Messages is an alternative reply format carrying canonical messages.
	Messages []models.ChatMessage `json:"messages,omitempty"`
	// Content is a bare-string alternative reply format.
	Content *string `json:"content,omitempty"`
	// SessionID, when set, renames or continues the session server-side.
	SessionID string `json:"sessionId,omitempty"`
	// Error short-circuits normalization when set.
	Error string `json:"error,omitempty"`

	// raw holds the full response body for the stringified fallback.
	raw []byte
}

// historyItem is the legacy per-message shape returned by
// loadPreviousSession: a serialized langchain message envelope.
type historyItem struct {
	ID     []string           `json:"id"`
	Kwargs *historyItemKwargs `json:"kwargs"`
	LC     int                `json:"lc"`
	Type   string             `json:"type"`
}

type historyItemKwargs struct {
	Content          string `json:"content"`
	AdditionalKwargs struct {
		Role string `json:"role"`
	} `json:"additional_kwargs"`
}

// FileAttachment is a file sent along with a chat message.
type FileAttachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// SendResult is the outcome of a successful sendMessage exchange.
type SendResult struct {
	// Message is the normalized assistant reply.
	Message models.ChatMessage
	// SessionID is non-empty when the server renamed or continued the
	// session; callers must adopt it for subsequent requests.
	SessionID string
}
