package directive

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minFieldLineLen is the shortest line (in runes, markers stripped) that can declare a field.
const minFieldLineLen = 8

var (
	parenthetical = regexp.MustCompile(`\(([^()]*)\)`)
	optionSplit   = regexp.MustCompile(`\s*,\s*`)
	optionPrefix  = regexp.MustCompile(`(?i)^(?:e\.g\.|eg[.:]|ej(?:emplo)?\s*[.:]|por ejemplo\s*:?|such as)\s*`)

	// Only the item after the last comma can open with a conjunction: "(a, b, or c)".
	lastItemConjunction = regexp.MustCompile(`(?i)^(?:or|and|o|u|y|e)\s+`)
)

// ExtractFields runs the generic field rules over lines. Ids are unique in
// the result: the first line claiming an id wins.
func (c *Classifier) ExtractFields(lines []string) []FieldDefinition {
	var fields []FieldDefinition
	seen := make(map[string]bool)
	for _, line := range lines {
		r, body, ok := c.matchGenericRule(line)
		if !ok || seen[r.id] {
			continue
		}
		seen[r.id] = true

		f := FieldDefinition{ID: r.id, Label: r.label, Kind: FieldFreeText}
		if opts := inlineOptions(body); len(opts) > 0 {
			f.Kind = r.selectKind
			f.Options = opts
		}
		fields = append(fields, f)
	}
	return fields
}

// candidateLine strips list markers and reports whether the line is long
// enough and not narrative prose.
func (c *Classifier) candidateLine(line string) (string, bool) {
	body := stripListMarker(line)
	if utf8.RuneCountInString(body) < minFieldLineLen {
		return "", false
	}
	if c.p.narrativeOpeners.MatchString(body) {
		return "", false
	}
	return body, true
}

func (c *Classifier) matchGenericRule(line string) (fieldRule, string, bool) {
	body, ok := c.candidateLine(line)
	if !ok {
		return fieldRule{}, "", false
	}
	for _, r := range genericRules {
		if r.pattern.MatchString(body) {
			return r, body, true
		}
	}
	return fieldRule{}, "", false
}

// inlineOptions returns the items of the first parenthetical comma list in s.
func inlineOptions(s string) []string {
	for _, m := range parenthetical.FindAllStringSubmatch(s, -1) {
		if !strings.Contains(m[1], ",") {
			continue
		}
		var opts []string
		seen := make(map[string]bool)
		items := optionSplit.Split(m[1], -1)
		for i, raw := range items {
			raw = strings.TrimSpace(raw)
			if i == len(items)-1 {
				raw = lastItemConjunction.ReplaceAllString(raw, "")
			}
			opt := stripEmphasis(optionPrefix.ReplaceAllString(raw, ""))
			opt = strings.TrimRight(opt, ".?!;:")
			if opt == "" || strings.EqualFold(opt, "etc") || seen[strings.ToLower(opt)] {
				continue
			}
			seen[strings.ToLower(opt)] = true
			opts = append(opts, opt)
		}
		if len(opts) > 0 {
			return opts
		}
	}
	return nil
}
