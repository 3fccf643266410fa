package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/metrics"
	"github.com/google/uuid"
)

// NewConversation drops the current session so the next send allocates a
// new one. Product, sprint and presence survive.
func (m *Manager) NewConversation() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	m.resetConversationLocked()
	m.logger.Info("Started new conversation")
	return nil
}

func (m *Manager) resetConversationLocked() {
	m.state.SessionID = ""
	m.state.Title = ""
	m.state.Messages = nil
	m.state.Context = map[string]any{}
	m.state.Canvas = nil
	m.state.ActiveEditSection = domain.EditSectionNone
	m.state.ChooserOpen = false
	m.form = nil
	m.lastActive = m.now()

	m.persistHistoryLocked()
	m.persistActiveLocked()
	m.publishLocked(Event{Type: EventStateChanged})
}

// LoadConversation replaces the message log and context with a stored
// conversation. The title is rebuilt from its first user message.
func (m *Manager) LoadConversation(ctx context.Context, sessionID string) error {
	if m.Busy() {
		return ErrBusy
	}
	conv, err := m.backend.GetConversation(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", sessionID, err)
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	m.state.SessionID = conv.SessionID
	m.state.Messages = make([]domain.Message, 0, len(conv.Messages))
	title := conv.Title
	firstUser := true
	for _, sm := range conv.Messages {
		ts := sm.Timestamp
		if ts.IsZero() {
			ts = m.now()
		}
		m.state.Messages = append(m.state.Messages, domain.Message{
			ID:        uuid.NewString(),
			Role:      sm.Role,
			Text:      sm.Content,
			Timestamp: ts,
			Status:    domain.StatusSent,
			HasCanvas: sm.Metadata["canvas"] != nil,
		})
		if sm.Role == domain.RoleUser && firstUser {
			title = domain.TitleFrom(sm.Content)
			firstUser = false
		}
	}
	m.state.Title = title

	m.state.Context = make(map[string]any, len(conv.Context))
	for k, v := range conv.Context {
		m.state.Context[k] = v
	}
	// The section is re-added from ActiveEditSection on every request.
	delete(m.state.Context, "edit_section")
	m.state.ActiveEditSection = domain.EditSectionNone
	if s, ok := conv.Context["edit_section"].(string); ok {
		m.state.ActiveEditSection = domain.ParseEditSection(s)
	}
	m.state.Canvas = nil
	m.state.ChooserOpen = false
	m.resetFormLocked()
	m.lastActive = m.now()

	m.persistHistoryLocked()
	m.persistActiveLocked()
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
	hasProduct := m.state.SelectedProduct != nil
	m.mu.Unlock()

	m.logger.Info("Loaded conversation", "session_id", conv.SessionID, "messages", len(conv.Messages))
	if hasProduct {
		m.refreshPresence(ctx)
	}
	return nil
}

// ListConversations returns the stored conversations.
func (m *Manager) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	list, err := m.backend.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

// DeleteConversation deletes a stored conversation. Deleting the active
// conversation starts a new one.
func (m *Manager) DeleteConversation(ctx context.Context, sessionID string) error {
	if err := m.backend.DeleteConversation(ctx, sessionID); err != nil {
		return fmt.Errorf("delete conversation %s: %w", sessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.SessionID == sessionID && !m.busy {
		m.resetConversationLocked()
	}
	return nil
}

// ToggleFavorite flips the favorite flag of a stored conversation.
func (m *Manager) ToggleFavorite(ctx context.Context, sessionID string) (bool, error) {
	fav, err := m.backend.ToggleFavorite(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("toggle favorite %s: %w", sessionID, err)
	}
	return fav, nil
}

// SelectProduct changes the selected product. A different product resets
// its presence to unknown and triggers a fresh architecture check. A nil
// product clears the selection.
func (m *Manager) SelectProduct(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	changed := m.state.productID() != productIDOf(product)
	if product != nil {
		p := *product
		m.state.SelectedProduct = &p
	} else {
		m.state.SelectedProduct = nil
	}
	if changed {
		m.state.SelectedSprintID = ""
		if product != nil {
			m.state.Presence[product.ID] = domain.PresenceUnknown
		}
	}
	m.lastActive = m.now()
	m.persistProductLocked()
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
	m.mu.Unlock()

	if product == nil || !changed {
		return nil
	}
	m.logger.Info("Selected product", "product_id", product.ID)
	_, err := m.CheckArchitecture(ctx)
	return err
}

// SelectSprint sets the sprint sent with every chat turn. Empty clears it.
func (m *Manager) SelectSprint(sprintID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SelectedSprintID = sprintID
	m.lastActive = m.now()
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
}

// CheckArchitecture asks the backend whether the selected product has an
// architecture. The answer is dropped with ErrStaleProduct when the
// selection changed while the request was in flight.
func (m *Manager) CheckArchitecture(ctx context.Context) (domain.Presence, error) {
	m.mu.Lock()
	issuedFor := m.state.productID()
	m.mu.Unlock()
	if issuedFor == "" {
		return domain.PresenceUnknown, ErrNoProduct
	}

	exists, err := m.backend.HasArchitecture(ctx, issuedFor)
	if err != nil {
		return domain.PresenceUnknown, fmt.Errorf("check architecture for %s: %w", issuedFor, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.productID() != issuedFor {
		metrics.StaleResponsesTotal.WithLabelValues("architecture_check").Inc()
		m.logger.Info("Discarding stale architecture check",
			"issued_for", issuedFor,
			"selected", m.state.productID())
		return domain.PresenceUnknown, ErrStaleProduct
	}
	presence := domain.PresenceOf(exists)
	m.state.Presence[issuedFor] = presence
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
	return presence, nil
}

func (m *Manager) refreshPresence(ctx context.Context) {
	if _, err := m.CheckArchitecture(ctx); err != nil {
		m.logger.Warn("Architecture check failed", "error", err)
	}
}

// FetchCanvas loads side-panel data for the selected product and replaces
// the current canvas. Stale responses are dropped like CheckArchitecture.
func (m *Manager) FetchCanvas(ctx context.Context, kind domain.CanvasKind) (*domain.Canvas, error) {
	if !kind.Known() {
		return nil, fmt.Errorf("unknown canvas type %q", kind.String())
	}
	m.mu.Lock()
	issuedFor := m.state.productID()
	m.mu.Unlock()

	start := time.Now()
	canvas, err := m.backend.FetchCanvas(ctx, backend.CanvasRequest{Kind: kind, ProductID: issuedFor})
	if err != nil {
		return nil, fmt.Errorf("fetch %s canvas: %w", kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.productID() != issuedFor {
		metrics.StaleResponsesTotal.WithLabelValues("canvas_fetch").Inc()
		m.logger.Info("Discarding stale canvas",
			"kind", kind.String(),
			"issued_for", issuedFor,
			"selected", m.state.productID())
		return nil, ErrStaleProduct
	}
	m.state.Canvas = canvas
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
	m.logger.Debug("Canvas loaded", "kind", kind.String(), "items", len(canvas.Data), "duration", time.Since(start))
	return canvas, nil
}

func productIDOf(p *domain.Product) string {
	if p == nil {
		return ""
	}
	return p.ID
}
