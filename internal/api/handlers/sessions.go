package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acqua-ai/chat-gateway/internal/api/dto"
	"github.com/acqua-ai/chat-gateway/internal/api/middleware"
	domainerrors "github.com/acqua-ai/chat-gateway/internal/domain/errors"
	"github.com/acqua-ai/chat-gateway/internal/services/chat"
	"github.com/acqua-ai/chat-gateway/internal/services/sessions"
)

// SessionsHandler handles session registry endpoints.
type SessionsHandler struct {
	store      *sessions.Store
	manager    *chat.Manager
	defaultURL string
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(store *sessions.Store, manager *chat.Manager, defaultURL string) *SessionsHandler {
	return &SessionsHandler{
		store:      store,
		manager:    manager,
		defaultURL: defaultURL,
	}
}

// List handles GET /sessions.
// @Summary List sessions
// @Description Lists known sessions, most recent first, optionally filtered by webhook URL
// @Tags Sessions
// @Produce json
// @Param webhookUrl query string false "Filter by webhook URL"
// @Success 200 {object} dto.SessionsResponse "Sessions"
// @Router /sessions [get]
func (h *SessionsHandler) List(c *gin.Context) {
	webhookURL := c.Query("webhookUrl")

	list := h.store.ListAll()
	if webhookURL != "" {
		list = h.store.ListByEndpoint(webhookURL)
	}

	c.JSON(http.StatusOK, dto.SessionsResponse{Sessions: list})
}

// Register handles POST /sessions.
// @Summary Register a session
// @Description Registers an externally supplied session id against a webhook URL
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body dto.RegisterSessionRequest true "Session to register"
// @Success 200 {object} dto.SessionsResponse "Sessions for the endpoint"
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Router /sessions [post]
func (h *SessionsHandler) Register(c *gin.Context) {
	var req dto.RegisterSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	webhookURL := req.WebhookURL
	if webhookURL == "" {
		webhookURL = h.defaultURL
	}
	if webhookURL == "" {
		middleware.HandleError(c, domainerrors.NewConfigurationError("webhook URL is required"))
		return
	}

	if err := h.store.SetSession(c.Request.Context(), webhookURL, req.SessionID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionsResponse{
		Sessions: h.store.ListByEndpoint(webhookURL),
	})
}

// Delete handles DELETE /sessions/:sessionId.
// @Summary Delete a session
// @Description Removes a session from the registry; deleting an unknown session is a no-op
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session id"
// @Success 204 "Deleted"
// @Router /sessions/{sessionId} [delete]
func (h *SessionsHandler) Delete(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.store.DeleteSession(c.Request.Context(), sessionID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	h.manager.Drop(sessionID)

	c.Status(http.StatusNoContent)
}
