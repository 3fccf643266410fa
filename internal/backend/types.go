package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ashureev/scrum-ai/internal/domain"
)

// ChatRequest is one chat turn sent to the backend. A nil SessionID is sent
// as JSON null and asks the backend to allocate a session.
type ChatRequest struct {
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	SessionID *string        `json:"session_id"`
}

// ChatResponse is the backend reply to a chat turn.
type ChatResponse struct {
	Response         string
	SessionID        string
	IsNewSession     bool
	Canvas           *domain.Canvas
	Architecture     *ArchitectureResult
	AgentType        string
	Intent           string
	Confidence       float64
	NeedsMoreContext bool
}

// ArchitectureResult reports whether the turn persisted an architecture.
type ArchitectureResult struct {
	Saved     bool   `json:"saved"`
	ProductID string `json:"product_id,omitempty"`
}

// CanvasRequest asks for the side-panel data of one kind.
type CanvasRequest struct {
	Kind      domain.CanvasKind `json:"type"`
	ProductID string            `json:"product_id,omitempty"`
}

// StoredMessage is one entry of a stored conversation log.
type StoredMessage struct {
	Role      domain.Role
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// StoredConversation is a full conversation returned by the backend.
type StoredConversation struct {
	SessionID string
	Title     string
	Context   map[string]any
	Messages  []StoredMessage
}

type chatResponseWire struct {
	Response         string              `json:"response"`
	SessionID        string              `json:"session_id"`
	IsNewSession     bool                `json:"is_new_session"`
	Canvas           *canvasWire         `json:"canvas"`
	Architecture     *ArchitectureResult `json:"architecture"`
	Agent            *agentWire          `json:"agent"`
	Intent           string              `json:"intent"`
	Confidence       float64             `json:"confidence"`
	NeedsMoreContext bool                `json:"needs_more_context"`
}

type agentWire struct {
	Type string `json:"type"`
}

func (w chatResponseWire) toResponse() *ChatResponse {
	resp := &ChatResponse{
		Response:         w.Response,
		SessionID:        w.SessionID,
		IsNewSession:     w.IsNewSession,
		Architecture:     w.Architecture,
		Intent:           w.Intent,
		Confidence:       w.Confidence,
		NeedsMoreContext: w.NeedsMoreContext,
	}
	if w.Canvas != nil {
		resp.Canvas = w.Canvas.toCanvas()
	}
	if w.Agent != nil {
		resp.AgentType = w.Agent.Type
	}
	return resp
}

type canvasWire struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Data     []json.RawMessage `json:"data"`
	Metadata map[string]any    `json:"metadata"`
}

func (w canvasWire) toCanvas() *domain.Canvas {
	c := &domain.Canvas{
		Kind:     domain.ParseCanvasKind(w.Type),
		Title:    w.Title,
		Data:     w.Data,
		Metadata: w.Metadata,
	}
	if !c.Kind.Known() {
		c.RawType = w.Type
	}
	if c.Data == nil {
		c.Data = []json.RawMessage{}
	}
	return c
}

type summaryWire struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	UpdatedAt    string `json:"updated_at"`
	IsFavorite   bool   `json:"is_favorite"`
	MessageCount int    `json:"message_count"`
}

type conversationWire struct {
	SessionID string              `json:"session_id"`
	Title     string              `json:"title"`
	Context   map[string]any      `json:"context"`
	Messages  []storedMessageWire `json:"messages"`
}

type storedMessageWire struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

func (w conversationWire) toConversation() *StoredConversation {
	conv := &StoredConversation{
		SessionID: w.SessionID,
		Title:     w.Title,
		Context:   w.Context,
		Messages:  make([]StoredMessage, 0, len(w.Messages)),
	}
	for _, m := range w.Messages {
		role := domain.RoleAssistant
		if strings.EqualFold(m.Role, string(domain.RoleUser)) || strings.EqualFold(m.Role, "human") {
			role = domain.RoleUser
		}
		conv.Messages = append(conv.Messages, StoredMessage{
			Role:      role,
			Content:   m.Content,
			Timestamp: parseTimestamp(m.Timestamp),
			Metadata:  m.Metadata,
		})
	}
	return conv
}

// timestampLayouts covers RFC 3339 and naive ISO timestamps without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
