// Package backend is the REST client for the backend that runs the AI agent
// and stores conversations and architectures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
)

// maxErrorBody bounds how much of a failed response is read for decoding.
const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the backend over JSON/HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client. A nil logger falls back to slog.Default().
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SendChat runs one chat turn.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Context == nil {
		req.Context = map[string]any{}
	}
	var wire chatResponseWire
	if err := c.do(ctx, http.MethodPost, "/api/v1/ai/chat", req, &wire); err != nil {
		return nil, err
	}
	return wire.toResponse(), nil
}

// FetchCanvas loads side-panel data of one kind.
func (c *Client) FetchCanvas(ctx context.Context, req CanvasRequest) (*domain.Canvas, error) {
	var wire canvasWire
	if err := c.do(ctx, http.MethodPost, "/api/v1/ai/canvas", req, &wire); err != nil {
		return nil, err
	}
	return wire.toCanvas(), nil
}

// ListConversations returns the stored conversation list. Both a bare array
// and a {"conversations": [...]} envelope are accepted.
func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/conversations", nil, &raw); err != nil {
		return nil, err
	}

	var rows []summaryWire
	if err := json.Unmarshal(raw, &rows); err != nil {
		var envelope struct {
			Conversations []summaryWire `json:"conversations"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode conversation list: %w", err)
		}
		rows = envelope.Conversations
	}

	out := make([]domain.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ConversationSummary{
			ID:           r.SessionID,
			Title:        r.Title,
			UpdatedAt:    parseTimestamp(r.UpdatedAt),
			IsFavorite:   r.IsFavorite,
			MessageCount: r.MessageCount,
		})
	}
	return out, nil
}

// GetConversation loads one stored conversation with its full message log.
func (c *Client) GetConversation(ctx context.Context, sessionID string) (*StoredConversation, error) {
	var wire conversationWire
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/conversations/"+url.PathEscape(sessionID), nil, &wire); err != nil {
		return nil, err
	}
	if wire.SessionID == "" {
		wire.SessionID = sessionID
	}
	return wire.toConversation(), nil
}

// DeleteConversation removes a stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/ai/conversations/"+url.PathEscape(sessionID), nil, nil)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (c *Client) ToggleFavorite(ctx context.Context, sessionID string) (bool, error) {
	var resp struct {
		IsFavorite bool `json:"is_favorite"`
	}
	path := "/api/v1/ai/conversations/" + url.PathEscape(sessionID) + "/favorite"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.IsFavorite, nil
}

// HasArchitecture reports whether a product already has a saved architecture.
func (c *Client) HasArchitecture(ctx context.Context, productID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := "/api/v1/products/" + url.PathEscape(productID) + "/architecture/exists"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// do performs one JSON round trip. A nil in sends no body; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "method", method, "path", path, "error", err)
		return transportError(method+" "+path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close backend response body", "error", closeErr)
		}
	}()

	c.logger.Debug("Backend request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		be := decodeError(resp.StatusCode, raw)
		c.logger.Warn("Backend returned error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", be.Code,
			"body", be.Body)
		return be
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}
