package directive

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stage is one rung of the precedence ladder. A stage that returns
// stop=true decides the message; later stages are not consulted.
type stage struct {
	name  string
	apply func(c *Classifier, text string, lines []string) (d Directive, stop bool)
}

// stages are evaluated in order. Suppression between categories is
// expressed by an earlier stage stopping with a directive or with None.
var stages = []stage{
	{name: "area_selection", apply: (*Classifier).areaSelection},
	{name: "action_chooser", apply: (*Classifier).actionChooser},
	{name: "status_summary", apply: (*Classifier).statusSummary},
	{name: "fixed_flow", apply: (*Classifier).fixedFlow},
	{name: "generic_form", apply: (*Classifier).genericForm},
}

// Classifier applies the rule table to assistant messages.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	p *compiledPhrases
}

// New compiles a Classifier from a phrasebook.
func New(p Phrasebook) (*Classifier, error) {
	compiled, err := p.compile()
	if err != nil {
		return nil, err
	}
	return &Classifier{p: compiled}, nil
}

// MustNew is like New but panics on an invalid phrasebook.
func MustNew(p Phrasebook) *Classifier {
	c, err := New(p)
	if err != nil {
		panic("directive: " + err.Error())
	}
	return c
}

// Default is the classifier built from DefaultPhrasebook.
var Default = MustNew(DefaultPhrasebook())

// Classify derives the directive for one message using Default.
func Classify(text string) Directive {
	return Default.Classify(text)
}

// Classify derives the directive for one message.
func (c *Classifier) Classify(text string) Directive {
	d, _ := c.ClassifyTrace(text)
	return d
}

// ClassifyTrace is Classify plus the name of the deciding stage
// ("" when no stage decided).
func (c *Classifier) ClassifyTrace(text string) (Directive, string) {
	lines := splitLines(text)
	for _, s := range stages {
		if d, stop := s.apply(c, text, lines); stop {
			return d, s.name
		}
	}
	return None, ""
}

func (c *Classifier) areaSelection(text string, _ []string) (Directive, bool) {
	if !c.p.areaSelection.MatchString(text) {
		return None, false
	}
	return Directive{Kind: KindSectionMenu, Menu: SectionMenuOptions()}, true
}

func (c *Classifier) actionChooser(text string, lines []string) (Directive, bool) {
	actions := c.actionLines(lines)
	if len(actions) == 0 && !c.p.actionChooser.MatchString(text) {
		return None, false
	}
	if len(actions) == 0 {
		actions = c.defaultActions(text)
	}
	return Directive{Kind: KindActionMenu, Actions: actions}, true
}

func (c *Classifier) statusSummary(text string, _ []string) (Directive, bool) {
	return None, c.p.statusSummary.MatchString(text)
}

func (c *Classifier) fixedFlow(text string, _ []string) (Directive, bool) {
	for _, t := range c.p.flowTriggers {
		if t.re.MatchString(text) {
			return Directive{Kind: KindInputForm, Fields: FlowFields(t.flow), Flow: t.flow}, true
		}
	}
	return None, false
}

func (c *Classifier) genericForm(text string, lines []string) (Directive, bool) {
	if !c.p.questionMarkers.MatchString(text) {
		return None, false
	}
	fields := c.ExtractFields(lines)
	if len(fields) == 0 {
		return None, true
	}
	return Directive{Kind: KindInputForm, Fields: fields, Flow: FlowGeneric}, true
}

const maxActions = 3

// actionLines builds one ActionOption per "Add:/Modify:/Delete:" line, at
// most maxActions. The first line of each kind is kept before any repeat of
// a kind, and the result keeps line order.
func (c *Classifier) actionLines(lines []string) []ActionOption {
	var parsed []ActionOption
	for _, line := range lines {
		if a, ok := c.parseActionLine(line); ok {
			parsed = append(parsed, a)
		}
	}
	if len(parsed) <= maxActions {
		return parsed
	}

	keep := make([]bool, len(parsed))
	n := 0
	seenKind := make(map[ActionKind]bool)
	for i, a := range parsed {
		if !seenKind[a.Kind] && n < maxActions {
			seenKind[a.Kind] = true
			keep[i] = true
			n++
		}
	}
	for i := range parsed {
		if !keep[i] && n < maxActions {
			keep[i] = true
			n++
		}
	}

	out := make([]ActionOption, 0, maxActions)
	for i, a := range parsed {
		if keep[i] {
			out = append(out, a)
		}
	}
	return out
}

func (c *Classifier) parseActionLine(line string) (ActionOption, bool) {
	m := c.p.actionLine.FindStringSubmatch(line)
	if m == nil {
		return ActionOption{}, false
	}
	contextPhrase := stripEmphasis(m[2])
	if contextPhrase == "" {
		return ActionOption{}, false
	}
	for _, vk := range c.p.verbKinds {
		if vk.re.MatchString(m[1]) {
			return ActionOption{Kind: vk.kind, Label: capitalize(m[1]), ContextPhrase: contextPhrase}, true
		}
	}
	return ActionOption{}, false
}

func (c *Classifier) defaultActions(text string) []ActionOption {
	contextPhrase := c.p.genericContext
	for _, dc := range c.p.defaultContexts {
		if dc.re.MatchString(text) {
			contextPhrase = dc.phrase
			break
		}
	}
	out := make([]ActionOption, 0, maxActions)
	for _, kind := range []ActionKind{ActionAdd, ActionModify, ActionDelete} {
		out = append(out, ActionOption{Kind: kind, Label: c.p.defaultLabels[kind], ContextPhrase: contextPhrase})
	}
	return out
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// stripEmphasis removes markdown bold/italic/code markers and surrounding space.
func stripEmphasis(s string) string {
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.Trim(s, "*_"))
}

// stripListMarker removes a leading bullet or "1." / "1)" prefix and emphasis.
func stripListMarker(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•+ \t")
	if n := numberMarkerLen(s); n > 0 {
		s = s[n:]
	}
	return stripEmphasis(s)
}

// numberMarkerLen returns the length of a leading "1." or "1)" marker that
// is followed by whitespace, or 0.
func numberMarkerLen(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(s) || (s[i] != '.' && s[i] != ')') {
		return 0
	}
	if s[i+1] != ' ' && s[i+1] != '\t' {
		return 0
	}
	return i + 1
}

func isListItem(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	switch s[0] {
	case '-', '*', '+':
		return true
	}
	return strings.HasPrefix(s, "•") || numberMarkerLen(s) > 0
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
