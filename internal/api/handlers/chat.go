package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/acqua-ai/chat-gateway/internal/api/dto"
	"github.com/acqua-ai/chat-gateway/internal/api/middleware"
	domainerrors "github.com/acqua-ai/chat-gateway/internal/domain/errors"
	"github.com/acqua-ai/chat-gateway/internal/services/chat"
	"github.com/acqua-ai/chat-gateway/internal/services/webhook"
)

// ChatHandler handles chat message endpoints.
type ChatHandler struct {
	manager    *chat.Manager
	defaultURL string
	logger     zerolog.Logger
}

// NewChatHandler creates a new ChatHandler. defaultURL is used when a request
// does not name a webhook explicitly.
func NewChatHandler(manager *chat.Manager, defaultURL string) *ChatHandler {
	return &ChatHandler{
		manager:    manager,
		defaultURL: defaultURL,
		logger:     log.Logger,
	}
}

// resolveURL picks the webhook URL for a request.
func (h *ChatHandler) resolveURL(requested string) string {
	if requested != "" {
		return requested
	}
	return h.defaultURL
}

// SendMessage handles POST /chat/messages.
// @Summary Send a chat message
// @Description Sends a user message to the webhook and returns the normalized assistant reply
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body dto.SendMessageRequest true "Message to send"
// @Success 200 {object} dto.SendMessageResponse "Assistant reply"
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Failure 502 {object} middleware.ErrorResponse "Webhook error"
// @Failure 503 {object} middleware.ErrorResponse "Webhook not functional"
// @Router /chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	files, err := decodeFiles(req.Files)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	ctrl, err := h.manager.Resolve(c.Request.Context(), h.resolveURL(req.WebhookURL), req.SessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	reply, err := ctrl.Submit(c.Request.Context(), req.Message, files)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SendMessageResponse{
		SessionID:        ctrl.SessionID(),
		Reply:            reply,
		TranscriptLength: len(ctrl.Transcript()),
	})
}

// GetHistory handles GET /chat/history.
// @Summary Get conversation history
// @Description Returns the transcript for a session, hydrating it on first access
// @Tags Chat
// @Produce json
// @Param webhookUrl query string false "Webhook URL (defaults to the configured endpoint)"
// @Param sessionId query string false "Session id (defaults to the most recent session)"
// @Success 200 {object} dto.TranscriptResponse "Transcript"
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Router /chat/history [get]
func (h *ChatHandler) GetHistory(c *gin.Context) {
	webhookURL := h.resolveURL(c.Query("webhookUrl"))
	sessionID := c.Query("sessionId")

	ctrl, err := h.manager.Resolve(c.Request.Context(), webhookURL, sessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TranscriptResponse{
		SessionID: ctrl.SessionID(),
		Messages:  ctrl.Transcript(),
	})
}

// Validate handles POST /chat/validate.
// @Summary Validate webhook connectivity
// @Description Runs the connectivity check against the webhook and reports the controller state
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body dto.ValidateRequest true "Endpoint to validate"
// @Success 200 {object} dto.ValidateResponse "Validation result"
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Router /chat/validate [post]
func (h *ChatHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	ctrl, err := h.manager.Resolve(c.Request.Context(), h.resolveURL(req.WebhookURL), req.SessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	// A failed check is a result, not an error: report the state instead.
	validationErr := ctrl.ValidateConnection(c.Request.Context())

	resp := dto.ValidateResponse{
		SessionID:  ctrl.SessionID(),
		State:      string(ctrl.State()),
		Functional: validationErr == nil,
	}
	if validationErr != nil {
		resp.Error = validationErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ClearHistory handles POST /chat/clear.
// @Summary Clear conversation history
// @Description Empties the transcript and starts a new session
// @Tags Chat
// @Accept json
// @Produce json
// @Param request body dto.ClearHistoryRequest true "Session to clear"
// @Success 200 {object} dto.ClearHistoryResponse "New session id"
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Router /chat/clear [post]
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	var req dto.ClearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	ctrl, err := h.manager.Resolve(c.Request.Context(), h.resolveURL(req.WebhookURL), req.SessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	newID, err := h.manager.Clear(c.Request.Context(), ctrl)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ClearHistoryResponse{SessionID: newID})
}

// decodeFiles converts base64 file payloads into attachments.
func decodeFiles(payloads []dto.FilePayload) ([]webhook.FileAttachment, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	files := make([]webhook.FileAttachment, 0, len(payloads))
	for _, p := range payloads {
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, domainerrors.NewValidationError("invalid base64 file data: "+p.Name, err.Error())
		}
		files = append(files, webhook.FileAttachment{
			Name:        p.Name,
			ContentType: p.ContentType,
			Data:        data,
		})
	}
	return files, nil
}
