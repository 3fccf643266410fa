// Package conversation implements the per-device assistant session: chat
// turns against the backend, sticky edit-section state, the architecture
// pre-flight guard, product-scoped presence caching and local persistence.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/scrum-ai/internal/backend"
	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/form"
	"github.com/ashureev/scrum-ai/internal/metrics"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned when a turn is already in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrClosed is returned by a manager that has been evicted.
	ErrClosed = errors.New("session manager closed")
	// ErrNoProduct is returned by product-scoped operations without a selection.
	ErrNoProduct = errors.New("no product selected")
	// ErrStaleProduct is returned when the selected product changed while a
	// product-scoped request was in flight; its response was discarded.
	ErrStaleProduct = errors.New("selected product changed, response discarded")
	// ErrNoDirective is returned when the latest assistant message has no matching widget.
	ErrNoDirective = errors.New("latest assistant message has no such option")
	// ErrNoForm is returned for form operations when no form is rendered.
	ErrNoForm = errors.New("no form is rendered")
	// ErrFormEmpty is returned when submitting a form with no values.
	ErrFormEmpty = errors.New("form has no values")
)

// persistTimeout bounds each synchronous local-state write.
const persistTimeout = 5 * time.Second

// Backend is the subset of the REST backend the manager uses.
type Backend interface {
	SendChat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	FetchCanvas(ctx context.Context, req backend.CanvasRequest) (*domain.Canvas, error)
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)
	GetConversation(ctx context.Context, sessionID string) (*backend.StoredConversation, error)
	DeleteConversation(ctx context.Context, sessionID string) error
	ToggleFavorite(ctx context.Context, sessionID string) (bool, error)
	HasArchitecture(ctx context.Context, productID string) (bool, error)
}

// LocalStore persists the three local keys of one owner.
type LocalStore interface {
	LoadChatHistory(ctx context.Context, userID string) ([]domain.Message, error)
	SaveChatHistory(ctx context.Context, userID string, messages []domain.Message) error
	LoadActiveConversation(ctx context.Context, userID string) (*domain.ConversationDescriptor, error)
	SaveActiveConversation(ctx context.Context, userID string, conv *domain.ConversationDescriptor) error
	LoadSelectedProduct(ctx context.Context, userID string) (*domain.Product, error)
	SaveSelectedProduct(ctx context.Context, userID string, product *domain.Product) error
}

// Dependencies are shared by every Manager of a Registry.
type Dependencies struct {
	Backend     Backend
	Store       LocalStore
	Classifier  *directive.Classifier
	Log         ConversationLogger
	Logger      *slog.Logger
	TypingDelay time.Duration
	// Phrases overrides DefaultPhrases when set.
	Phrases *Phrases
}

// State is the cross-turn session state. Snapshots are deep copies.
type State struct {
	SessionID         string                     `json:"session_id"`
	Title             string                     `json:"title"`
	Messages          []domain.Message           `json:"messages"`
	ActiveEditSection domain.EditSection         `json:"active_edit_section"`
	SelectedProduct   *domain.Product            `json:"selected_product,omitempty"`
	SelectedSprintID  string                     `json:"selected_sprint_id,omitempty"`
	Context           map[string]any             `json:"context"`
	Canvas            *domain.Canvas             `json:"canvas,omitempty"`
	ChooserOpen       bool                       `json:"chooser_open"`
	Presence          map[string]domain.Presence `json:"architecture_presence"`
}

func (s State) clone() State {
	out := s
	out.Messages = append([]domain.Message(nil), s.Messages...)
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.Presence = make(map[string]domain.Presence, len(s.Presence))
	for k, v := range s.Presence {
		out.Presence[k] = v
	}
	if s.SelectedProduct != nil {
		p := *s.SelectedProduct
		out.SelectedProduct = &p
	}
	return out
}

// productID returns the selected product id or "".
func (s State) productID() string {
	if s.SelectedProduct == nil {
		return ""
	}
	return s.SelectedProduct.ID
}

// Manager owns one device's assistant session. All methods are safe for
// concurrent use; at most one chat turn is in flight at a time.
type Manager struct {
	ownerID     string
	backend     Backend
	store       LocalStore
	classifier  *directive.Classifier
	phrases     *compiledPhrases
	log         ConversationLogger
	logger      *slog.Logger
	typingDelay time.Duration
	now         func() time.Time

	mu         sync.Mutex
	state      State
	form       *form.State
	busy       bool
	lastActive time.Time

	events    *broker
	closed    chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager for ownerID and loads its local state. Each
// key is loaded independently; a failed key starts empty.
func NewManager(ctx context.Context, ownerID string, deps Dependencies) (*Manager, error) {
	if deps.Backend == nil || deps.Store == nil {
		return nil, errors.New("conversation: backend and store are required")
	}
	m := &Manager{
		ownerID:     ownerID,
		backend:     deps.Backend,
		store:       deps.Store,
		classifier:  deps.Classifier,
		phrases:     defaultPhrases,
		log:         deps.Log,
		logger:      deps.Logger,
		typingDelay: deps.TypingDelay,
		now:         time.Now,
		events:      newBroker(),
		closed:      make(chan struct{}),
		state: State{
			Context:  map[string]any{},
			Presence: map[string]domain.Presence{},
		},
	}
	if m.classifier == nil {
		m.classifier = directive.Default
	}
	if m.log == nil {
		m.log = noopConversationLogger{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if deps.Phrases != nil {
		p, err := deps.Phrases.compile()
		if err != nil {
			return nil, fmt.Errorf("compile phrases: %w", err)
		}
		m.phrases = p
	}
	m.logger = m.logger.With("user_id", ownerID)
	m.lastActive = m.now()

	m.load(ctx)
	return m, nil
}

func (m *Manager) load(ctx context.Context) {
	history, err := m.store.LoadChatHistory(ctx, m.ownerID)
	if err != nil {
		m.logger.Warn("Failed to load chat history", "error", err)
	}
	for i := range history {
		// A turn interrupted by a restart never completes.
		if history[i].Status == domain.StatusSending {
			history[i].Status = domain.StatusError
		}
	}
	m.state.Messages = history

	conv, err := m.store.LoadActiveConversation(ctx, m.ownerID)
	if err != nil {
		m.logger.Warn("Failed to load active conversation", "error", err)
	}
	if conv != nil {
		m.state.SessionID = conv.ID
		m.state.Title = conv.Title
	}

	product, err := m.store.LoadSelectedProduct(ctx, m.ownerID)
	if err != nil {
		m.logger.Warn("Failed to load selected product", "error", err)
	}
	if product != nil {
		m.state.SelectedProduct = product
		m.state.Presence[product.ID] = domain.PresenceUnknown
	}

	m.resetFormLocked()
	m.logger.Debug("Session state loaded",
		"messages", len(m.state.Messages),
		"session_id", m.state.SessionID,
		"product_id", m.state.productID())
}

// OwnerID returns the device identity this manager belongs to.
func (m *Manager) OwnerID() string {
	return m.ownerID
}

// Snapshot returns a deep copy of the session state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Busy reports whether a chat turn is in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// IdleFor reports how long the manager has gone without a call.
func (m *Manager) IdleFor(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return 0
	}
	return now.Sub(m.lastActive)
}

// Subscribe returns a channel of events and a function that cancels the subscription.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Close cancels a pending display delay and ends every subscription. The
// persisted state is left intact.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.events.close()
	})
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Send runs one chat turn. Backend failures are recorded as error-status
// assistant messages and are not returned; only caller mistakes are.
func (m *Manager) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		metrics.ObserveTurn(metrics.OutcomeBusy, 0)
		return ErrBusy
	}
	m.lastActive = m.now()

	if section := m.phrases.inferSection(text); section != domain.EditSectionNone {
		m.state.ActiveEditSection = section
	}

	if m.state.SelectedProduct == nil && m.phrases.architectureIntent.MatchString(text) {
		msg := m.appendAssistantLocked(m.phrases.GuardMessage, domain.StatusSent, false)
		m.persistHistoryLocked()
		m.mu.Unlock()

		m.logger.Info("Architecture request rejected without product")
		m.logTurn("chat_guard_rejected", "inbound", msg.Text, nil)
		metrics.ObserveTurn(metrics.OutcomeGuarded, 0)
		return nil
	}

	m.busy = true
	userMsg := m.newMessage(domain.RoleUser, text, domain.StatusSending)
	m.state.Messages = append(m.state.Messages, userMsg)
	m.persistHistoryLocked()
	m.publishMessageLocked(EventMessageAppended, userMsg)

	req := backend.ChatRequest{
		Message:   text,
		Context:   m.mergedContextLocked(),
		SessionID: m.sessionIDPtrLocked(),
	}
	issuedFor := m.state.productID()
	section := m.state.ActiveEditSection
	m.publishLocked(Event{Type: EventTypingStarted})
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.lastActive = m.now()
		m.publishLocked(Event{Type: EventTypingStopped})
		m.mu.Unlock()
	}()

	m.logTurn("chat_user_message", "outbound", text, map[string]any{
		"edit_section": string(section),
		"product_id":   issuedFor,
	})

	start := time.Now()
	resp, err := m.backend.SendChat(ctx, req)
	latency := time.Since(start)
	if err != nil {
		m.failTurn(userMsg.ID, err, latency)
		return nil
	}

	m.mu.Lock()
	m.setStatusLocked(userMsg.ID, domain.StatusSent)
	m.adoptSessionLocked(resp, text)
	m.persistHistoryLocked()
	m.mu.Unlock()

	m.waitDisplayDelay(ctx)

	m.mu.Lock()
	reply := m.appendAssistantLocked(resp.Response, domain.StatusSent, resp.Canvas != nil)
	if resp.Canvas != nil {
		m.state.Canvas = resp.Canvas
	}
	if resp.Architecture != nil && resp.Architecture.Saved {
		productID := resp.Architecture.ProductID
		if productID == "" {
			productID = issuedFor
		}
		if productID != "" {
			m.state.Presence[productID] = domain.PresencePresent
		}
		m.state.ChooserOpen = false
	}
	m.persistHistoryLocked()
	m.publishLocked(Event{Type: EventStateChanged, SessionID: m.state.SessionID})
	sessionID := m.state.SessionID
	m.mu.Unlock()

	m.logTurn("chat_assistant_message", "inbound", reply.Text, map[string]any{
		"session_id_after": sessionID,
		"agent":            resp.AgentType,
		"intent":           resp.Intent,
		"has_canvas":       resp.Canvas != nil,
		"latency_ms":       latency.Milliseconds(),
	})
	metrics.ObserveTurn(metrics.OutcomeSent, latency)
	return nil
}

// failTurn records a failed backend call as an error-status assistant message.
func (m *Manager) failTurn(userMsgID string, err error, latency time.Duration) {
	text := m.errorText(err)

	m.mu.Lock()
	m.setStatusLocked(userMsgID, domain.StatusError)
	m.appendAssistantLocked(text, domain.StatusError, false)
	m.persistHistoryLocked()
	m.mu.Unlock()

	m.logger.Warn("Chat turn failed", "error", err)
	m.logTurn("chat_error", "inbound", text, map[string]any{"error": err.Error()})
	metrics.ObserveTurn(metrics.OutcomeError, latency)
}

// errorText maps a backend failure to the message shown in the chat.
func (m *Manager) errorText(err error) string {
	if backend.IsMissingProduct(err) {
		return m.phrases.MissingProductMessage
	}
	detail := m.phrases.GenericErrorDetail
	var be *backend.Error
	if errors.As(err, &be) && be.Status != 0 && readableDetail(be.Message) {
		detail = strings.TrimSpace(be.Message)
	}
	return fmt.Sprintf(m.phrases.GenericErrorTemplate, detail)
}

// maxErrorDetail bounds the backend detail quoted in a chat error message.
const maxErrorDetail = 160

func readableDetail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.ContainsAny(s, "\n<>") && utf8.RuneCountInString(s) <= maxErrorDetail
}

// waitDisplayDelay holds the reply back for the typing delay. The wait ends
// early when the manager closes or ctx is done.
func (m *Manager) waitDisplayDelay(ctx context.Context) {
	if m.typingDelay <= 0 {
		return
	}
	timer := time.NewTimer(m.typingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.closed:
	case <-ctx.Done():
	}
}

func (m *Manager) adoptSessionLocked(resp *backend.ChatResponse, firstText string) {
	if resp.SessionID == "" {
		return
	}
	if m.state.SessionID != "" && !resp.IsNewSession {
		return
	}
	if m.state.SessionID == resp.SessionID {
		return
	}
	m.state.SessionID = resp.SessionID
	m.state.Title = domain.TitleFrom(firstText)
	m.persistActiveLocked()
	m.logger.Info("Adopted session", "session_id", resp.SessionID)
}

func (m *Manager) mergedContextLocked() map[string]any {
	ctx := make(map[string]any, len(m.state.Context)+3)
	for k, v := range m.state.Context {
		ctx[k] = v
	}
	if p := m.state.SelectedProduct; p != nil {
		ctx["product_id"] = p.ID
	}
	if m.state.SelectedSprintID != "" {
		ctx["sprint_id"] = m.state.SelectedSprintID
	}
	if m.state.ActiveEditSection != domain.EditSectionNone {
		ctx["edit_section"] = string(m.state.ActiveEditSection)
	}
	return ctx
}

func (m *Manager) sessionIDPtrLocked() *string {
	if m.state.SessionID == "" {
		return nil
	}
	id := m.state.SessionID
	return &id
}

func (m *Manager) newMessage(role domain.Role, text string, status domain.MessageStatus) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: m.now(),
		Status:    status,
	}
}

// appendAssistantLocked appends an assistant message and replaces the
// rendered form with the one belonging to the new message.
func (m *Manager) appendAssistantLocked(text string, status domain.MessageStatus, hasCanvas bool) domain.Message {
	msg := m.newMessage(domain.RoleAssistant, text, status)
	msg.HasCanvas = hasCanvas
	m.state.Messages = append(m.state.Messages, msg)

	d, stage := m.classifier.ClassifyTrace(text)
	if stage == "" {
		stage = "none"
	}
	metrics.DirectivesTotal.WithLabelValues(d.Kind.String(), stage).Inc()
	if d.Kind == directive.KindSectionMenu {
		m.state.ChooserOpen = true
	}
	m.resetFormLocked()
	m.publishMessageLocked(EventMessageAppended, msg)
	return msg
}

func (m *Manager) setStatusLocked(id string, status domain.MessageStatus) {
	for i := range m.state.Messages {
		if m.state.Messages[i].ID == id {
			m.state.Messages[i].Status = status
			m.publishMessageLocked(EventMessageUpdated, m.state.Messages[i])
			return
		}
	}
}

func (m *Manager) persistHistoryLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.SaveChatHistory(ctx, m.ownerID, m.state.Messages); err != nil {
		m.logger.Error("Failed to persist chat history", "error", err)
	}
}

func (m *Manager) persistActiveLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var conv *domain.ConversationDescriptor
	if m.state.SessionID != "" {
		conv = &domain.ConversationDescriptor{ID: m.state.SessionID, Title: m.state.Title, Timestamp: m.now()}
	}
	if err := m.store.SaveActiveConversation(ctx, m.ownerID, conv); err != nil {
		m.logger.Error("Failed to persist active conversation", "error", err)
	}
}

func (m *Manager) persistProductLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.SaveSelectedProduct(ctx, m.ownerID, m.state.SelectedProduct); err != nil {
		m.logger.Error("Failed to persist selected product", "error", err)
	}
}

func (m *Manager) publishLocked(ev Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	m.events.publish(ev)
}

func (m *Manager) publishMessageLocked(t EventType, msg domain.Message) {
	r := m.renderMessage(msg)
	m.publishLocked(Event{Type: t, Message: &r, SessionID: m.state.SessionID})
}

func (m *Manager) logTurn(eventType, direction, content string, meta map[string]any) {
	m.mu.Lock()
	sessionID := m.state.SessionID
	m.mu.Unlock()

	m.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     m.ownerID,
		SessionID:  sessionID,
		Channel:    "assistant_gateway",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
