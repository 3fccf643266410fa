package directive

// Rendered is an assistant message ready for display: the prose left after
// sanitizing plus the directive whose widgets replace the removed lines.
type Rendered struct {
	Text      string    `json:"text"`
	Directive Directive `json:"directive"`
}

// Render classifies text and sanitizes it against the resulting directive.
func (c *Classifier) Render(text string) Rendered {
	d := c.Classify(text)
	return Rendered{Text: c.Sanitize(text, d), Directive: d}
}

// Render is Default.Render.
func Render(text string) Rendered {
	return Default.Render(text)
}

// MenuChoice returns the message synthesized by clicking menu option number.
func (d Directive) MenuChoice(number int) (string, bool) {
	if d.Kind != KindSectionMenu {
		return "", false
	}
	for _, o := range d.Menu {
		if o.Number == number {
			return o.Message, true
		}
	}
	return "", false
}

// ActionChoice returns the message synthesized by clicking the action at index.
func (d Directive) ActionChoice(index int) (string, bool) {
	if d.Kind != KindActionMenu || index < 0 || index >= len(d.Actions) {
		return "", false
	}
	return d.Actions[index].Message(), true
}
