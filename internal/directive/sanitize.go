package directive

import (
	"strings"
)

// Sanitize removes the lines consumed to build d from text using Default.
func Sanitize(text string, d Directive) string {
	return Default.Sanitize(text, d)
}

// Sanitize removes every line that was structurally consumed to build d.
// Each line is judged on its own, so the result is a fixed point:
// Sanitize(Sanitize(t, d), d) == Sanitize(t, d). For None it returns text unchanged.
func (c *Classifier) Sanitize(text string, d Directive) string {
	if d.IsNone() {
		return text
	}
	lines := splitLines(text)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if c.consumed(line, d) {
			continue
		}
		kept = append(kept, line)
	}
	return tidy(kept)
}

func (c *Classifier) consumed(line string, d Directive) bool {
	switch d.Kind {
	case KindSectionMenu:
		return c.p.menuLine.MatchString(line)
	case KindActionMenu:
		// Lines beyond the option cap stay visible.
		a, ok := c.parseActionLine(line)
		return ok && d.hasAction(a)
	case KindInputForm:
		return c.isFieldDeclaration(line, d)
	default:
		return false
	}
}

// isFieldDeclaration applies the extraction heuristics to a single line:
// for generic forms the first matching rule must name a field of d, for
// fixed flows the line must be a list item naming one of the flow's fields.
func (c *Classifier) isFieldDeclaration(line string, d Directive) bool {
	if d.Flow == FlowGeneric {
		r, _, ok := c.matchGenericRule(line)
		return ok && d.hasField(r.id)
	}
	if !isListItem(line) {
		return false
	}
	body, ok := c.candidateLine(line)
	if !ok {
		return false
	}
	for _, f := range fixedFlows[d.Flow] {
		if f.pattern.MatchString(body) && d.hasField(f.def.ID) {
			return true
		}
	}
	return false
}

// tidy collapses runs of blank lines and trims surrounding whitespace.
func tidy(lines []string) string {
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
