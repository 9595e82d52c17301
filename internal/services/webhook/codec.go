package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/acqua-ai/chat-gateway/internal/domain/models"
)

// ParseResponse unmarshals a webhook reply body into a ChatResponse,
// retaining the raw bytes for the stringified fallback. A body that is not a
// JSON object still yields a usable response; DecodeReply degrades to the
// fallback path for it.
func ParseResponse(body []byte) *ChatResponse {
	resp := &ChatResponse{raw: body}
	// Ignore unmarshal errors: unknown shapes fall through to the
	// stringified fallback in DecodeReply.
	_ = json.Unmarshal(body, resp)
	return resp
}

// DecodeReply normalizes a webhook reply into exactly one assistant message.
// Decision order, first match wins:
//
//  1. output field present: use it, stringifying non-string values with
//     two-space indentation
//  2. messages array: the last entry whose role is assistant, passed through
//  3. string content field
//  4. the whole payload stringified
//
// The decode is total: it never fails for any response body.
func DecodeReply(resp *ChatResponse) models.ChatMessage {
	if resp.Output != nil {
		return models.NewAssistantMessage(stringifyOutput(resp.Output))
	}

	if len(resp.Messages) > 0 {
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			if resp.Messages[i].Role == models.RoleAssistant {
				return resp.Messages[i]
			}
		}
	}

	if resp.Content != nil {
		return models.NewAssistantMessage(*resp.Content)
	}

	return models.NewAssistantMessage(stringifyPayload(resp.raw))
}

// DecodeHistory maps a loadPreviousSession reply to a transcript. Accepted
// shapes: a legacy item array, {"messages": [...]}, or {"output": ...}.
// Returns nil when the body matches none of them.
//
// Legacy items carry no timestamps, so decode time is used for every entry
// and the input order is preserved as-is. If the upstream order is not
// chronological, the hydrated transcript inherits that misordering.
func DecodeHistory(body []byte) []models.ChatMessage {
	var items []historyItem
	if err := json.Unmarshal(body, &items); err == nil && len(items) > 0 && items[0].Kwargs != nil {
		decoded := make([]models.ChatMessage, 0, len(items))
		now := models.Now()
		for i, item := range items {
			if item.Kwargs == nil {
				continue
			}
			id := joinID(item.ID)
			if id == "" {
				id = fmt.Sprintf("msg-%d", i)
			}
			role := models.MessageRole(item.Kwargs.AdditionalKwargs.Role)
			if role != models.RoleUser {
				role = models.RoleAssistant
			}
			decoded = append(decoded, models.ChatMessage{
				ID:        id,
				Content:   item.Kwargs.Content,
				Role:      role,
				Timestamp: now,
			})
		}
		return decoded
	}

	resp := ParseResponse(body)
	if len(resp.Messages) > 0 {
		return resp.Messages
	}
	if resp.Output != nil {
		return []models.ChatMessage{models.NewAssistantMessage(stringifyOutput(resp.Output))}
	}

	return nil
}

// stringifyOutput renders an output value: strings are used verbatim,
// everything else is re-marshaled with two-space indentation.
func stringifyOutput(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(pretty)
}

// stringifyPayload compacts the whole reply body for the fallback message.
func stringifyPayload(raw []byte) string {
	if len(raw) == 0 {
		return "Received response from assistant"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// joinID flattens a legacy item id path into a single identifier.
func joinID(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	id := parts[0]
	for _, p := range parts[1:] {
		id += "-" + p
	}
	return id
}
