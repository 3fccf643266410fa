package conversation

import (
	"context"
	"fmt"

	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/form"
)

// RenderedMessage is a message ready for the UI. Assistant messages carry
// their sanitized text and the directive recomputed from the raw text.
type RenderedMessage struct {
	domain.Message
	DisplayText string               `json:"display_text"`
	Directive   *directive.Directive `json:"directive,omitempty"`
}

// FormView is the widget state of the form attached to the latest assistant message.
type FormView struct {
	MessageID string                      `json:"message_id"`
	Fields    []directive.FieldDefinition `json:"fields"`
	Values    map[string]string           `json:"values"`
	Selected  map[string][]string         `json:"selected,omitempty"`
	Progress  float64                     `json:"progress"`
	CanSubmit bool                        `json:"can_submit"`
}

// View is the full render-ready state returned to the UI.
type View struct {
	State
	Messages []RenderedMessage `json:"messages"`
	Form     *FormView         `json:"form,omitempty"`
	Busy     bool              `json:"busy"`
}

// View renders every message and the current form.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{State: m.state.clone(), Busy: m.busy}
	v.Messages = make([]RenderedMessage, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		v.Messages = append(v.Messages, m.renderMessage(msg))
	}
	v.Form = m.formViewLocked()
	return v
}

func (m *Manager) renderMessage(msg domain.Message) RenderedMessage {
	r := RenderedMessage{Message: msg, DisplayText: msg.Text}
	if !msg.IsAssistant() || msg.Status == domain.StatusError {
		return r
	}
	rendered := m.classifier.Render(msg.Text)
	r.DisplayText = rendered.Text
	if !rendered.Directive.IsNone() {
		d := rendered.Directive
		r.Directive = &d
	}
	return r
}

func (m *Manager) formViewLocked() *FormView {
	if m.form == nil {
		return nil
	}
	fv := &FormView{
		MessageID: m.form.MessageID,
		Fields:    m.form.Fields(),
		Values:    m.form.Values(),
		Progress:  m.form.Progress(),
		CanSubmit: m.form.CanSubmit(),
	}
	for _, f := range fv.Fields {
		if f.Kind == directive.FieldMultiSelect {
			if fv.Selected == nil {
				fv.Selected = make(map[string][]string)
			}
			fv.Selected[f.ID] = m.form.Selected(f.ID)
		}
	}
	return fv
}

// latestAssistantLocked returns the newest assistant message.
func (m *Manager) latestAssistantLocked() (domain.Message, bool) {
	for i := len(m.state.Messages) - 1; i >= 0; i-- {
		if m.state.Messages[i].IsAssistant() {
			return m.state.Messages[i], true
		}
	}
	return domain.Message{}, false
}

// latestDirectiveLocked classifies the newest assistant message.
func (m *Manager) latestDirectiveLocked() (domain.Message, directive.Directive) {
	msg, ok := m.latestAssistantLocked()
	if !ok || msg.Status == domain.StatusError {
		return msg, directive.None
	}
	return msg, m.classifier.Classify(msg.Text)
}

// resetFormLocked discards the current form and starts a fresh one when the
// newest assistant message renders an InputForm.
func (m *Manager) resetFormLocked() {
	m.form = nil
	msg, d := m.latestDirectiveLocked()
	if d.Kind == directive.KindInputForm && len(d.Fields) > 0 {
		m.form = form.New(msg.ID, d.Fields)
	}
}

// ChooseMenuOption sends the message of SectionMenu option number.
func (m *Manager) ChooseMenuOption(ctx context.Context, number int) error {
	m.mu.Lock()
	_, d := m.latestDirectiveLocked()
	text, ok := d.MenuChoice(number)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: menu option %d", ErrNoDirective, number)
	}
	return m.Send(ctx, text)
}

// ChooseAction sends the message of the ActionOption at index.
func (m *Manager) ChooseAction(ctx context.Context, index int) error {
	m.mu.Lock()
	_, d := m.latestDirectiveLocked()
	text, ok := d.ActionChoice(index)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: action %d", ErrNoDirective, index)
	}
	return m.Send(ctx, text)
}

// SetFormValue sets a free-text or single-select field of the current form.
func (m *Manager) SetFormValue(fieldID, value string) (*FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return nil, ErrNoForm
	}
	if err := m.form.SetValue(fieldID, value); err != nil {
		return nil, err
	}
	m.lastActive = m.now()
	return m.formViewLocked(), nil
}

// ToggleFormValue toggles one option of a multi-select field.
func (m *Manager) ToggleFormValue(fieldID, option string) (*FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return nil, ErrNoForm
	}
	if err := m.form.ToggleMultiValue(fieldID, option); err != nil {
		return nil, err
	}
	m.lastActive = m.now()
	return m.formViewLocked(), nil
}

// SubmitForm synthesizes the form message and sends it as a user turn.
func (m *Manager) SubmitForm(ctx context.Context) error {
	m.mu.Lock()
	if m.form == nil {
		m.mu.Unlock()
		return ErrNoForm
	}
	text, ok := m.form.Submit()
	m.mu.Unlock()
	if !ok {
		return ErrFormEmpty
	}
	return m.Send(ctx, text)
}

// Preview classifies and renders arbitrary text with this manager's classifier.
func (m *Manager) Preview(text string) directive.Rendered {
	return m.classifier.Render(text)
}
