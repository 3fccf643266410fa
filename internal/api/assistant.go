package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AssistantHandler exposes the per-device session manager over REST.
type AssistantHandler struct {
	registry    *conversation.Registry
	classifier  *directive.Classifier
	rateLimiter *RateLimiter
}

// NewAssistantHandler creates the assistant handler. A nil classifier uses directive.Default.
func NewAssistantHandler(registry *conversation.Registry, classifier *directive.Classifier, rl *RateLimiter) *AssistantHandler {
	if classifier == nil {
		classifier = directive.Default
	}
	return &AssistantHandler{registry: registry, classifier: classifier, rateLimiter: rl}
}

// RegisterRoutes registers the assistant routes.
func (h *AssistantHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/assistant", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Post("/classify", h.Classify)

		// Every route that may start a chat turn is throttled.
		r.Group(func(r chi.Router) {
			if h.rateLimiter != nil {
				r.Use(h.rateLimiter.Middleware)
			}
			r.Post("/messages", h.SendMessage)
			r.Post("/menu/{number}", h.ChooseMenuOption)
			r.Post("/actions/{index}", h.ChooseAction)
			r.Post("/form/submit", h.SubmitForm)
		})

		r.Put("/form/values/{fieldID}", h.SetFormValue)
		r.Post("/form/toggle/{fieldID}", h.ToggleFormValue)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.ListConversations)
			r.Post("/new", h.NewConversation)
			r.Post("/{id}/load", h.LoadConversation)
			r.Delete("/{id}", h.DeleteConversation)
			r.Post("/{id}/favorite", h.ToggleFavorite)
		})

		r.Put("/product", h.SelectProduct)
		r.Put("/sprint", h.SelectSprint)
		r.Post("/architecture/check", h.CheckArchitecture)
		r.Post("/canvas/{type}", h.FetchCanvas)
	})
}

// manager resolves the caller's session manager, writing the error response on failure.
func (h *AssistantHandler) manager(w http.ResponseWriter, r *http.Request) (*conversation.Manager, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	m, err := h.registry.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return m, true
}

// turnContext detaches a chat turn from the request so a dropped connection
// does not abandon a turn already sent to the backend.
func turnContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// GetState returns the session snapshot with rendered messages.
func (h *AssistantHandler) GetState(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, m.View())
}

type sendRequest struct {
	Text string `json:"text"`
}

// SendMessage runs one chat turn and returns the updated view.
func (h *AssistantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.Send(turnContext(r), req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

// ChooseMenuOption sends the message of a SectionMenu option of the latest reply.
func (h *AssistantHandler) ChooseMenuOption(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid menu option")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.ChooseMenuOption(turnContext(r), n); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

// ChooseAction sends the message of an ActionOption of the latest reply.
func (h *AssistantHandler) ChooseAction(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid action index")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.ChooseAction(turnContext(r), i); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

type formValueRequest struct {
	Value  string `json:"value"`
	Option string `json:"option"`
}

// SetFormValue sets a free-text or single-select field.
func (h *AssistantHandler) SetFormValue(w http.ResponseWriter, r *http.Request) {
	var req formValueRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	fv, err := m.SetFormValue(chi.URLParam(r, "fieldID"), req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, fv)
}

// ToggleFormValue toggles one option of a multi-select field.
func (h *AssistantHandler) ToggleFormValue(w http.ResponseWriter, r *http.Request) {
	var req formValueRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	fv, err := m.ToggleFormValue(chi.URLParam(r, "fieldID"), req.Option)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, fv)
}

// SubmitForm sends the synthesized form message.
func (h *AssistantHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.SubmitForm(turnContext(r)); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

// ListConversations returns the stored conversations.
func (h *AssistantHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	list, err := m.ListConversations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	JSON(w, http.StatusOK, list)
}

// NewConversation starts a new conversation.
func (h *AssistantHandler) NewConversation(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.NewConversation(); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

// LoadConversation replaces the current conversation with a stored one.
func (h *AssistantHandler) LoadConversation(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.LoadConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

// DeleteConversation deletes a stored conversation.
func (h *AssistantHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite flips the favorite flag of a stored conversation.
func (h *AssistantHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	fav, err := m.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"is_favorite": fav})
}

type productRequest struct {
	Product *domain.Product `json:"product"`
}

// SelectProduct changes the selected product; null clears it.
func (h *AssistantHandler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Product != nil && strings.TrimSpace(req.Product.ID) == "" {
		Error(w, http.StatusBadRequest, "product id is required")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	// A failed or stale presence check still leaves the selection applied.
	if err := m.SelectProduct(r.Context(), req.Product); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m.View())
}

type sprintRequest struct {
	SprintID string `json:"sprint_id"`
}

// SelectSprint sets the sprint sent with every chat turn.
func (h *AssistantHandler) SelectSprint(w http.ResponseWriter, r *http.Request) {
	var req sprintRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	m.SelectSprint(strings.TrimSpace(req.SprintID))
	JSON(w, http.StatusOK, m.View())
}

// CheckArchitecture refreshes the architecture presence of the selected product.
func (h *AssistantHandler) CheckArchitecture(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	presence, err := m.CheckArchitecture(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	productID := ""
	if p := m.Snapshot().SelectedProduct; p != nil {
		productID = p.ID
	}
	JSON(w, http.StatusOK, map[string]any{"product_id": productID, "presence": presence})
}

// FetchCanvas loads side-panel data for the selected product.
func (h *AssistantHandler) FetchCanvas(w http.ResponseWriter, r *http.Request) {
	kind := domain.ParseCanvasKind(chi.URLParam(r, "type"))
	if !kind.Known() {
		Error(w, http.StatusBadRequest, "unknown canvas type")
		return
	}
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	canvas, err := m.FetchCanvas(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, canvas)
}

// Classify renders arbitrary text without touching any session.
func (h *AssistantHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	JSON(w, http.StatusOK, h.classifier.Render(req.Text))
}
