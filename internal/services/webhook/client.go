package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	domainerrors "github.com/acqua-ai/chat-gateway/internal/domain/errors"
	"github.com/acqua-ai/chat-gateway/internal/domain/models"
)

// Default call timeouts. History loading is bounded separately because a
// slow history fetch must not stall the connectivity verdict.
const (
	DefaultSendTimeout    = 120 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultHistoryTimeout = 10 * time.Second
)

// ClientConfig holds the configuration for the webhook client.
type ClientConfig struct {
	// Username/Password enable basic auth when both are set.
	Username string
	Password string

	SendTimeout    time.Duration
	ProbeTimeout   time.Duration
	HistoryTimeout time.Duration

	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client speaks the chat webhook protocol against any endpoint URL. It is
// stateless: the endpoint and session travel with every call.
type Client struct {
	username       string
	password       string
	sendTimeout    time.Duration
	probeTimeout   time.Duration
	historyTimeout time.Duration
	httpClient     *http.Client
	logger         zerolog.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Client{
		username:       cfg.Username,
		password:       cfg.Password,
		sendTimeout:    cfg.SendTimeout,
		probeTimeout:   cfg.ProbeTimeout,
		historyTimeout: cfg.HistoryTimeout,
		httpClient:     httpClient,
		logger:         logger,
	}
	if c.sendTimeout == 0 {
		c.sendTimeout = DefaultSendTimeout
	}
	if c.probeTimeout == 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	if c.historyTimeout == 0 {
		c.historyTimeout = DefaultHistoryTimeout
	}
	return c
}

// SendMessage POSTs a sendMessage action to the webhook and normalizes the
// reply. The body is JSON unless files are attached, in which case a
// multipart form carries the same payload in its data field plus one part
// per file. File presence changes transport encoding only, never payload
// semantics.
func (c *Client) SendMessage(ctx context.Context, webhookURL, sessionID, chatInput string, files []FileAttachment) (*SendResult, error) {
	if webhookURL == "" {
		return nil, domainerrors.NewConfigurationError("webhook URL is required")
	}

	payload := ChatRequest{
		Action:    ActionSendMessage,
		ChatInput: chatInput,
		SessionID: sessionID,
	}

	var body io.Reader
	contentType := "application/json"

	if len(files) > 0 {
		multipartBody, multipartType, err := encodeMultipart(payload, files)
		if err != nil {
			return nil, domainerrors.NewInternalError("failed to encode multipart request", err)
		}
		body = multipartBody
		contentType = multipartType
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, domainerrors.NewInternalError("failed to marshal request", err)
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, body)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to create request", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuth(req)

	c.logger.Debug().
		Str("webhook_url", webhookURL).
		Str("session_id", sessionID).
		Int("files", len(files)).
		Msg("sending chat message")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to send message", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domainerrors.NewUpstreamError(
			fmt.Sprintf("server error: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	parsed := ParseResponse(respBody)
	if parsed.Error != "" {
		return nil, domainerrors.NewUpstreamError(parsed.Error)
	}

	return &SendResult{
		Message:   DecodeReply(parsed),
		SessionID: parsed.SessionID,
	}, nil
}

// LoadPreviousSession fetches prior conversation history for a session.
// Failures and unknown response shapes yield an empty history, never an
// error that should abort validation: history is best-effort.
func (c *Client) LoadPreviousSession(ctx context.Context, webhookURL, sessionID string) ([]models.ChatMessage, error) {
	if webhookURL == "" || sessionID == "" {
		return nil, nil
	}

	historyURL, err := buildActionURL(webhookURL, ActionLoadPreviousSession, sessionID)
	if err != nil {
		return nil, domainerrors.NewConfigurationError(fmt.Sprintf("invalid webhook URL: %s", webhookURL))
	}

	ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL, nil)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to load previous session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.NewTransportError("failed to read history response", err)
	}

	return DecodeHistory(respBody), nil
}

// Validate performs the connectivity check: a plain GET first, then a
// loadPreviousSession GET as fallback. Any status below 500 on the fallback
// counts as functional, since chat webhooks commonly reject bare GETs.
func (c *Client) Validate(ctx context.Context, webhookURL, sessionID string) error {
	if webhookURL == "" {
		return domainerrors.NewConfigurationError("webhook URL is required")
	}

	if ok := c.probe(ctx, webhookURL); ok {
		return nil
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fallbackURL, err := buildActionURL(webhookURL, ActionLoadPreviousSession, sessionID)
	if err != nil {
		return domainerrors.NewConfigurationError(fmt.Sprintf("invalid webhook URL: %s", webhookURL))
	}

	ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fallbackURL, nil)
	if err != nil {
		return domainerrors.NewConnectivityError("webhook validation failed", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.NewConnectivityError("webhook validation failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return domainerrors.NewConnectivityError(
			fmt.Sprintf("webhook validation failed: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	return nil
}

// probe issues the plain GET connectivity attempt. Only a 2xx passes; other
// outcomes defer to the fallback check.
func (c *Client) probe(ctx context.Context, webhookURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("webhook_url", webhookURL).Msg("probe failed, trying loadPreviousSession")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// setAuth sets basic auth on the request when credentials are configured.
func (c *Client) setAuth(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// buildActionURL appends action and sessionId query parameters to a webhook URL.
func buildActionURL(webhookURL, action, sessionID string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("action", action)
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// encodeMultipart builds the multipart form body: the JSON payload in a data
// field and one file<N> part per attachment.
func encodeMultipart(payload ChatRequest, files []FileAttachment) (io.Reader, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("data", string(raw)); err != nil {
		return nil, "", err
	}

	for i, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file%d"; filename="%s"`, i, file.Name))
		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
