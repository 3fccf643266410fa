// Package form holds the per-instance widget state of a rendered input form.
package form

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/scrum-ai/internal/directive"
)

var (
	// ErrUnknownField is returned for a field id the form does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotMultiSelect is returned when toggling a field that is not multi-select.
	ErrNotMultiSelect = errors.New("field is not multi-select")
	// ErrIsMultiSelect is returned when overwriting a multi-select field.
	ErrIsMultiSelect = errors.New("field is multi-select")
)

// multiSeparator joins multi-select entries into the field's string value.
const multiSeparator = ", "

// State is the value map of one rendered InputForm. It is owned by a single
// caller and is not safe for concurrent use.
type State struct {
	MessageID string
	fields    []directive.FieldDefinition
	values    map[string]string
	multi     map[string][]string
}

// New creates an empty State for the fields of one rendered form.
func New(messageID string, fields []directive.FieldDefinition) *State {
	return &State{
		MessageID: messageID,
		fields:    append([]directive.FieldDefinition(nil), fields...),
		values:    make(map[string]string),
		multi:     make(map[string][]string),
	}
}

// Fields returns the declared fields in order.
func (s *State) Fields() []directive.FieldDefinition {
	return append([]directive.FieldDefinition(nil), s.fields...)
}

func (s *State) field(id string) (directive.FieldDefinition, error) {
	for _, f := range s.fields {
		if f.ID == id {
			return f, nil
		}
	}
	return directive.FieldDefinition{}, fmt.Errorf("%w: %s", ErrUnknownField, id)
}

// SetValue overwrites a free-text or single-select field. Setting a
// single-select field to its current value clears it.
func (s *State) SetValue(fieldID, value string) error {
	f, err := s.field(fieldID)
	if err != nil {
		return err
	}
	switch f.Kind {
	case directive.FieldMultiSelect:
		return fmt.Errorf("%w: %s", ErrIsMultiSelect, fieldID)
	case directive.FieldSingleSelect:
		if s.values[fieldID] == value {
			value = ""
		}
	}
	if value == "" {
		delete(s.values, fieldID)
		return nil
	}
	s.values[fieldID] = value
	return nil
}

// ToggleMultiValue adds option to a multi-select field, or removes it when
// already present. Remaining entries keep their relative order.
func (s *State) ToggleMultiValue(fieldID, option string) error {
	f, err := s.field(fieldID)
	if err != nil {
		return err
	}
	if f.Kind != directive.FieldMultiSelect {
		return fmt.Errorf("%w: %s", ErrNotMultiSelect, fieldID)
	}

	list := s.multi[fieldID]
	for i, v := range list {
		if v == option {
			next := make([]string, 0, len(list)-1)
			next = append(next, list[:i]...)
			s.multi[fieldID] = append(next, list[i+1:]...)
			return nil
		}
	}
	s.multi[fieldID] = append(list, option)
	return nil
}

// Selected returns the backing list of a multi-select field.
func (s *State) Selected(fieldID string) []string {
	return append([]string(nil), s.multi[fieldID]...)
}

// Value returns the string value of a field; multi-select entries are comma-joined.
func (s *State) Value(fieldID string) string {
	if list, ok := s.multi[fieldID]; ok {
		return strings.Join(list, multiSeparator)
	}
	return s.values[fieldID]
}

// Values returns every non-empty field value keyed by id.
func (s *State) Values() map[string]string {
	out := make(map[string]string)
	for _, f := range s.fields {
		if v := s.Value(f.ID); v != "" {
			out[f.ID] = v
		}
	}
	return out
}

// Answered counts fields with a non-empty value.
func (s *State) Answered() int {
	n := 0
	for _, f := range s.fields {
		if s.Value(f.ID) != "" {
			n++
		}
	}
	return n
}

// Progress is Answered over the number of declared fields, in [0, 1].
func (s *State) Progress() float64 {
	if len(s.fields) == 0 {
		return 0
	}
	return float64(s.Answered()) / float64(len(s.fields))
}

// CanSubmit reports whether at least one field has a value.
func (s *State) CanSubmit() bool {
	return s.Answered() > 0
}

// Submit synthesizes the outgoing message: one "Label: value" line per
// non-empty field in declaration order. It returns false while every field is empty.
func (s *State) Submit() (string, bool) {
	if !s.CanSubmit() {
		return "", false
	}
	lines := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if v := s.Value(f.ID); v != "" {
			lines = append(lines, f.Label+": "+v)
		}
	}
	return strings.Join(lines, "\n"), true
}
