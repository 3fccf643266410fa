// Package directive turns free-form assistant text into at most one
// interactive directive (section menu, action menu or input form) and
// strips the lines that directive consumed from the displayed prose.
//
// Everything in this package is a pure function of the message text and the
// compiled phrase table; nothing here keeps state between messages.
package directive

import (
	"encoding/json"
	"fmt"
)

// Kind tags the variant held by a Directive.
type Kind int

const (
	KindNone Kind = iota
	KindSectionMenu
	KindActionMenu
	KindInputForm
)

func (k Kind) String() string {
	switch k {
	case KindSectionMenu:
		return "section_menu"
	case KindActionMenu:
		return "action_menu"
	case KindInputForm:
		return "input_form"
	default:
		return "none"
	}
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name; unknown names become KindNone.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = KindNone
	for _, c := range []Kind{KindSectionMenu, KindActionMenu, KindInputForm} {
		if c.String() == s {
			*k = c
		}
	}
	return nil
}

// MenuOption is one of the three canonical architecture sections.
type MenuOption struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ActionKind is the operation an ActionOption requests.
type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionModify ActionKind = "modify"
	ActionDelete ActionKind = "delete"
)

// ActionOption is a clickable add/modify/delete choice.
// Label is the verb as it should be sent back, e.g. "Agregar".
type ActionOption struct {
	Kind          ActionKind `json:"kind"`
	Label         string     `json:"label"`
	ContextPhrase string     `json:"context_phrase"`
}

// Message is the text sent as the next user message when the option is clicked.
func (a ActionOption) Message() string {
	return fmt.Sprintf("%s: %s", a.Label, a.ContextPhrase)
}

// FieldKind is the input widget a field renders as.
type FieldKind string

const (
	FieldFreeText     FieldKind = "free_text"
	FieldSingleSelect FieldKind = "single_select"
	FieldMultiSelect  FieldKind = "multi_select"
)

// FieldDefinition describes one input of a rendered form.
type FieldDefinition struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Kind        FieldKind `json:"kind"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Flow names the fixed field set an InputForm came from.
type Flow string

const (
	FlowGeneric     Flow = ""
	FlowAddEndpoint Flow = "add_endpoint"
	FlowAddModule   Flow = "add_module"
	FlowAddFolder   Flow = "add_folder"
)

// Directive is the tagged variant derived from one assistant message.
// Only the slice matching Kind is populated.
type Directive struct {
	Kind    Kind              `json:"kind"`
	Menu    []MenuOption      `json:"menu,omitempty"`
	Actions []ActionOption    `json:"actions,omitempty"`
	Fields  []FieldDefinition `json:"fields,omitempty"`
	Flow    Flow              `json:"flow,omitempty"`
}

// None is the empty directive.
var None = Directive{Kind: KindNone}

// IsNone reports whether no widget should be rendered.
func (d Directive) IsNone() bool {
	return d.Kind == KindNone
}

func (d Directive) hasField(id string) bool {
	for _, f := range d.Fields {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (d Directive) hasAction(a ActionOption) bool {
	for _, have := range d.Actions {
		if have == a {
			return true
		}
	}
	return false
}
