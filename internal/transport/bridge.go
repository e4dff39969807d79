// Package transport talks to messaging networks: an HTTP client for the
// WhatsApp MCP bridge, a retry policy for its reads, and a Mux that routes
// addresses to the right network.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/chatpilot/internal/types"
)

const DefaultBridgeURL = "http://localhost:3000"

// StatusError is a non-2xx answer from the bridge.
type StatusError struct {
	Tool string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge %s: status %d: %s", e.Tool, e.Code, e.Body)
}

// Bridge implements types.Transport over the WhatsApp MCP bridge, which
// exposes each tool as POST {base}/mcp/whatsapp/<tool> with a JSON body.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryPolicy
}

func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	if baseURL == "" {
		baseURL = DefaultBridgeURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy(),
	}
}

// WithRetry replaces the read retry policy.
func (b *Bridge) WithRetry(p *RetryPolicy) *Bridge {
	b.retry = p
	return b
}

type bridgeChat struct {
	JID             string    `json:"jid"`
	Name            string    `json:"name"`
	LastMessageTime time.Time `json:"last_message_time"`
	LastMessage     string    `json:"last_message"`
}

func (c bridgeChat) handle() types.ChatHandle {
	return types.ChatHandle{
		ChatID:       c.JID,
		Name:         c.Name,
		LastActivity: c.LastMessageTime,
		LastMessage:  c.LastMessage,
	}
}

type bridgeMessage struct {
	ID        string         `json:"id"`
	ChatJID   string         `json:"chat_jid"`
	SenderJID string         `json:"sender_jid"`
	Content   string         `json:"content"`
	FromMe    bool           `json:"from_me"`
	Timestamp time.Time      `json:"timestamp"`
	HasMedia  bool           `json:"has_media"`
	MediaType string         `json:"media_type"`
	Metadata  map[string]any `json:"metadata"`
}

func (b *Bridge) ListChats(ctx context.Context, limit int, sortBy string) ([]types.ChatHandle, error) {
	if sortBy == "" {
		sortBy = "last_active"
	}
	req := map[string]any{
		"limit":                limit,
		"page":                 0,
		"include_last_message": true,
		"sort_by":              sortBy,
	}
	var chats []bridgeChat
	if err := b.read(ctx, "list_chats", req, &chats); err != nil {
		return nil, err
	}
	out := make([]types.ChatHandle, len(chats))
	for i, c := range chats {
		out[i] = c.handle()
	}
	return out, nil
}

// GetChat returns a single chat with its last message.
func (b *Bridge) GetChat(ctx context.Context, chatID string) (*types.ChatHandle, error) {
	req := map[string]any{"chat_jid": chatID, "include_last_message": true}
	var chat bridgeChat
	if err := b.read(ctx, "get_chat", req, &chat); err != nil {
		return nil, err
	}
	h := chat.handle()
	return &h, nil
}

func (b *Bridge) ListMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	req := map[string]any{
		"chat_jid":        chatID,
		"limit":           limit,
		"page":            0,
		"include_context": false,
	}
	var msgs []bridgeMessage
	if err := b.read(ctx, "list_messages", req, &msgs); err != nil {
		return nil, err
	}
	out := make([]*types.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			slog.Debug("bridge message without id skipped", "chat_id", chatID)
			continue
		}
		rec := &types.MessageRecord{
			MessageID: m.ID,
			ChatID:    m.ChatJID,
			SenderID:  m.SenderJID,
			Content:   m.Content,
			FromSelf:  m.FromMe,
			Timestamp: m.Timestamp,
			HasMedia:  m.HasMedia,
			MediaType: m.MediaType,
			Metadata:  m.Metadata,
		}
		if rec.ChatID == "" {
			rec.ChatID = chatID
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *Bridge) SearchContacts(ctx context.Context, query string) ([]types.ContactHandle, error) {
	var contacts []types.ContactHandle
	if err := b.read(ctx, "search_contacts", map[string]any{"query": query}, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// Send posts one message. It is never retried: a send that timed out may
// still have been delivered.
func (b *Bridge) Send(ctx context.Context, recipient, text string) (*types.DispatchResult, error) {
	var raw map[string]any
	req := map[string]any{"recipient": recipient, "message": text}
	if err := b.post(ctx, "send_message", req, &raw); err != nil {
		return nil, err
	}

	res := &types.DispatchResult{Success: true, Raw: raw}
	if ok, found := raw["success"].(bool); found {
		res.Success = ok
	}
	if id, ok := raw["message_id"].(string); ok {
		res.MessageID = id
	}
	if !res.Success {
		msg, _ := raw["message"].(string)
		return res, fmt.Errorf("bridge send_message: rejected: %s", msg)
	}
	return res, nil
}

func (b *Bridge) read(ctx context.Context, tool string, body, out any) error {
	return b.retry.Execute(ctx, func() error {
		return b.post(ctx, tool, body, out)
	})
}

func (b *Bridge) post(ctx context.Context, tool string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", tool, err)
	}

	url := b.baseURL + "/mcp/whatsapp/" + tool
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", tool, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", tool, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Tool: tool, Code: resp.StatusCode, Body: string(respBody)}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse %s response: %w", tool, err)
	}
	return nil
}
