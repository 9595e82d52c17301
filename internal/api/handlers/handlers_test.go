// Package handlers_test provides unit tests for the HTTP handlers.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acqua-ai/chat-gateway/internal/api/dto"
	"github.com/acqua-ai/chat-gateway/internal/api/handlers"
	"github.com/acqua-ai/chat-gateway/internal/api/middleware"
	"github.com/acqua-ai/chat-gateway/internal/api/routes"
	"github.com/acqua-ai/chat-gateway/internal/core/kvstore"
	rediskv "github.com/acqua-ai/chat-gateway/internal/infrastructure/kvstore/redis"
	"github.com/acqua-ai/chat-gateway/internal/services/chat"
	"github.com/acqua-ai/chat-gateway/internal/services/sessions"
	"github.com/acqua-ai/chat-gateway/internal/services/transcript"
	"github.com/acqua-ai/chat-gateway/internal/services/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	router *gin.Engine
	kv     kvstore.Store
	store  *sessions.Store
}

// newTestApp wires the full API against a miniredis kv store and the given
// default webhook URL.
func newTestApp(t *testing.T, defaultURL string) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	kv, err := rediskv.NewStore(rediskv.Config{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)

	t.Cleanup(func() {
		kv.Close()
		mr.Close()
	})

	store, err := sessions.NewStore(context.Background(), &sessions.Config{KV: kv})
	require.NoError(t, err)

	cache, err := transcript.NewCache(&transcript.Config{KV: kv})
	require.NoError(t, err)

	manager, err := chat.NewManager(&chat.ManagerConfig{
		Store:  store,
		Cache:  cache,
		Client: webhook.NewClient(nil),
	})
	require.NoError(t, err)

	router := gin.New()
	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler:   handlers.NewHealthHandler(kv),
		ChatHandler:     handlers.NewChatHandler(manager, defaultURL),
		SessionsHandler: handlers.NewSessionsHandler(store, manager, defaultURL),
	}, middleware.NewLoggingMiddleware(), middleware.NewErrorMiddleware())

	return &testApp{router: router, kv: kv, store: store}
}

// newWebhookServer simulates a functional chat webhook.
func newWebhookServer(t *testing.T, sendBody string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(sendBody))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t, "")

	w := doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["kvstore"])

	w = doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSendMessage_EndToEnd(t *testing.T) {
	webhookServer := newWebhookServer(t, `{"output": "assistant says hi"}`)
	app := newTestApp(t, webhookServer.URL)

	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/chat/messages", dto.SendMessageRequest{
		Message: "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.SendMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "assistant says hi", resp.Reply.Content)
	assert.Equal(t, 2, resp.TranscriptLength)

	// The transcript is retrievable afterwards
	w = doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/chat/history?sessionId="+resp.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var transcript dto.TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transcript))
	assert.Equal(t, resp.SessionID, transcript.SessionID)
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "hello", transcript.Messages[0].Content)
}

func TestSendMessage_NoWebhookConfigured(t *testing.T) {
	app := newTestApp(t, "")

	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/chat/messages", dto.SendMessageRequest{
		Message: "hello",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "CONFIGURATION_ERROR", errResp.Code)
}

func TestSendMessage_InvalidBody(t *testing.T) {
	app := newTestApp(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat-gateway/chat/messages", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidate_ReportsState(t *testing.T) {
	webhookServer := newWebhookServer(t, `{"output": "ok"}`)
	app := newTestApp(t, webhookServer.URL)

	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/chat/validate", dto.ValidateRequest{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Functional)
	assert.Equal(t, "ready", resp.State)
	assert.NotEmpty(t, resp.SessionID)
	assert.Empty(t, resp.Error)
}

func TestClearHistory_ReturnsNewSession(t *testing.T) {
	webhookServer := newWebhookServer(t, `{"output": "hi"}`)
	app := newTestApp(t, webhookServer.URL)

	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/chat/messages", dto.SendMessageRequest{
		Message: "hello",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var sent dto.SendMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))

	w = doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/chat/clear", dto.ClearHistoryRequest{
		SessionID: sent.SessionID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cleared dto.ClearHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.NotEmpty(t, cleared.SessionID)
	assert.NotEqual(t, sent.SessionID, cleared.SessionID)
}

func TestSessions_RegisterListDelete(t *testing.T) {
	app := newTestApp(t, "https://n8n.local/webhook/a")

	// Register an externally supplied session id
	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/sessions", dto.RegisterSessionRequest{
		SessionID: "shared-id",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.SessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "shared-id", resp.Sessions[0].SessionID)

	// List all
	w = doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Sessions, 1)

	// Delete
	w = doJSON(t, app.router, http.MethodDelete, "/api/v1/chat-gateway/sessions/shared-id", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, app.router, http.MethodGet, "/api/v1/chat-gateway/sessions", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Sessions)

	// Deleting again is a no-op
	w = doJSON(t, app.router, http.MethodDelete, "/api/v1/chat-gateway/sessions/shared-id", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessions_RegisterRequiresSessionID(t *testing.T) {
	app := newTestApp(t, "https://n8n.local/webhook/a")

	w := doJSON(t, app.router, http.MethodPost, "/api/v1/chat-gateway/sessions", dto.RegisterSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
