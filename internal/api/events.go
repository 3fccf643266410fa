package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/identity"
	"github.com/coder/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventsHandler streams session events to the dashboard over a WebSocket.
type EventsHandler struct {
	registry       *conversation.Registry
	allowedOrigins []string
	isDev          bool
}

// NewEventsHandler creates a new WebSocket events handler.
func NewEventsHandler(registry *conversation.Registry, allowedOrigins []string, isDev bool) *EventsHandler {
	return &EventsHandler{registry: registry, allowedOrigins: allowedOrigins, isDev: isDev}
}

// snapshotEvent is the first frame of every stream.
type snapshotEvent struct {
	Type string            `json:"type"`
	View conversation.View `json:"view"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	m, err := h.registry.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is checked above against the configured dashboard origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	events, cancelSub := m.Subscribe()
	defer cancelSub()

	// Inbound frames are not used; CloseRead handles control frames and
	// cancels ctx when the client goes away.
	ctx := ws.CloseRead(r.Context())

	if err := writeJSON(ctx, ws, snapshotEvent{Type: "snapshot", View: m.View()}); err != nil {
		slog.Debug("Failed to send snapshot", "error", err, "user_id", userID)
		_ = ws.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}

	status, reason := h.stream(ctx, ws, events, userID)
	if closeErr := ws.Close(status, reason); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
	}
	slog.Info("Event stream ended", "user_id", userID, "reason", reason)
}

func (h *EventsHandler) stream(ctx context.Context, ws *websocket.Conn, events <-chan conversation.Event, userID string) (websocket.StatusCode, string) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return websocket.StatusGoingAway, "session closed"
			}
			if err := writeJSON(ctx, ws, ev); err != nil {
				slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				return websocket.StatusInternalError, "write failed"
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				return websocket.StatusGoingAway, "ping failed"
			}
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "client disconnected"
		}
	}
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
