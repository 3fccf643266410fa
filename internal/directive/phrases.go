package directive

import (
	"fmt"
	"regexp"
	"strings"
)

// Phrasebook holds every backend-wording dependency of the classifier.
// The backend generates Spanish and English text, so most entries carry
// both. Entries are RE2 fragments matched case-insensitively.
type Phrasebook struct {
	// AreaSelection short-circuits to the section menu.
	AreaSelection []string
	// ActionChooser marks a generic "what do you want to do" prompt.
	ActionChooser []string
	// ActionVerbs are the line prefixes ("Add:") recognized per action kind.
	ActionVerbs map[ActionKind][]string
	// DefaultActionLabels label the three fallback actions.
	DefaultActionLabels map[ActionKind]string
	// DefaultContexts are scanned in order to pick the fallback context phrase.
	DefaultContexts []ContextPhrase
	// GenericContext is used when no DefaultContexts entry matches.
	GenericContext string
	// StatusSummary suppresses form detection.
	StatusSummary []string
	// FlowTriggers select a fixed field set, tested in slice order.
	FlowTriggers []FlowTrigger
	// QuestionMarkers gate generic field extraction.
	QuestionMarkers []string
	// NarrativeOpeners mark prose lines that are never field declarations.
	NarrativeOpeners []string
	// SectionKeywords identify menu lines that name an architecture section.
	SectionKeywords []string
}

// ContextPhrase maps a keyword pattern to the context phrase used by default actions.
type ContextPhrase struct {
	Pattern string
	Phrase  string
}

// FlowTrigger maps trigger patterns to a fixed flow.
type FlowTrigger struct {
	Flow     Flow
	Patterns []string
}

// DefaultPhrasebook returns the phrases observed in the SCRUM AI backend.
func DefaultPhrasebook() Phrasebook {
	return Phrasebook{
		AreaSelection: []string{
			`which area would you like to work on`,
			`reply with the number or (?:the )?name`,
			`choose an? (?:option|section)`,
			`en qu[eé] [aá]rea (?:deseas|quieres|te gustar[ií]a) trabajar`,
			`responde con el n[uú]mero o (?:el )?nombre`,
			`(?:elige|selecciona|escoge) una (?:opci[oó]n|secci[oó]n)`,
		},
		ActionChooser: []string{
			`what (?:do|would) you (?:want|like) to do`,
			`qu[eé] (?:deseas|quieres|te gustar[ií]a) hacer`,
		},
		ActionVerbs: map[ActionKind][]string{
			ActionAdd:    {`add`, `agregar`, `añadir`, `anadir`},
			ActionModify: {`modify`, `modificar`, `editar`},
			ActionDelete: {`delete`, `eliminar`, `borrar`},
		},
		DefaultActionLabels: map[ActionKind]string{
			ActionAdd:    "Agregar",
			ActionModify: "Modificar",
			ActionDelete: "Eliminar",
		},
		DefaultContexts: []ContextPhrase{
			{Pattern: `\b(?:modules?|m[oó]dulos?)\b`, Phrase: "módulos"},
			{Pattern: `\bendpoints?\b`, Phrase: "endpoints"},
			{Pattern: `\b(?:structure|estructura|folders?|carpetas?)\b`, Phrase: "estructura de carpetas"},
		},
		GenericContext: "elementos de la arquitectura",
		StatusSummary: []string{
			`here is the current status`,
			`current status of (?:the )?section`,
			`aqu[ií] (?:est[aá]|tienes) el estado actual`,
			`estado actual de la secci[oó]n`,
		},
		FlowTriggers: []FlowTrigger{
			{Flow: FlowAddEndpoint, Patterns: []string{
				`\b(?:add|create|agregar|añadir|anadir|crear)\s+(?:(?:an?|the|un|el)\s+)?(?:(?:new|nuevo)\s+)?endpoints?\b`,
				`\b(?:details|datos|detalles)\s+(?:for|of|del)\s+(?:the\s+)?(?:(?:new|nuevo)\s+)?endpoint\b`,
			}},
			{Flow: FlowAddModule, Patterns: []string{
				`\b(?:add|create|agregar|añadir|anadir|crear)\s+(?:(?:an?|the|un|el)\s+)?(?:(?:new|nuevo)\s+)?(?:modules?|m[oó]dulos?)\b`,
				`\b(?:details|datos|detalles)\s+(?:for|of|del)\s+(?:the\s+)?(?:(?:new|nuevo)\s+)?(?:module|m[oó]dulo)\b`,
			}},
			{Flow: FlowAddFolder, Patterns: []string{
				`\b(?:add|create|agregar|añadir|anadir|crear)\s+(?:(?:an?|the|una?|la|el)\s+)?(?:(?:new|nueva|nuevo)\s+)?(?:folders?|carpetas?|director(?:y|io))\b`,
				`\b(?:details|datos|detalles)\s+(?:for|of|de)\s+(?:the\s+|la\s+)?(?:(?:new|nueva)\s+)?(?:folder|carpeta)\b`,
			}},
		},
		QuestionMarkers: []string{
			`[?¿]`,
			`i need these details`,
			`please provide (?:me )?(?:the |these |some )?details`,
			`could you provide me`,
			`specify the technologies`,
			`necesito (?:estos|los siguientes) detalles`,
			`por favor (?:proporciona|ind[ií]ca)me`,
			`podr[ií]as (?:proporcionarme|indicarme)`,
			`especifica las tecnolog[ií]as`,
		},
		NarrativeOpeners: []string{
			`perfect`, `perfecto`, `let'?s`, `vamos`, `i hope`, `espero`,
			`i need`, `necesito`, `please provide`, `por favor`,
			`it seems`, `parece`, `could you`, `podr[ií]as`,
		},
		SectionKeywords: []string{
			`structure`, `estructura`, `folders?`, `carpetas?`,
			`endpoints?`, `modules?`, `m[oó]dulos?`,
			`database`, `base de datos`,
		},
	}
}

type compiledPhrases struct {
	areaSelection    *regexp.Regexp
	actionChooser    *regexp.Regexp
	actionLine       *regexp.Regexp
	verbKinds        []verbKind
	defaultLabels    map[ActionKind]string
	defaultContexts  []compiledContext
	genericContext   string
	statusSummary    *regexp.Regexp
	flowTriggers     []compiledTrigger
	questionMarkers  *regexp.Regexp
	narrativeOpeners *regexp.Regexp
	menuLine         *regexp.Regexp
}

type verbKind struct {
	re   *regexp.Regexp
	kind ActionKind
}

type compiledContext struct {
	re     *regexp.Regexp
	phrase string
}

type compiledTrigger struct {
	flow Flow
	re   *regexp.Regexp
}

func alternation(fragments []string) (*regexp.Regexp, error) {
	if len(fragments) == 0 {
		// Never matches.
		return regexp.Compile(`[^\x00-\x{10FFFF}]`)
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(fragments, `|`) + `)`)
}

func (p Phrasebook) compile() (*compiledPhrases, error) {
	c := &compiledPhrases{
		defaultLabels:  p.DefaultActionLabels,
		genericContext: p.GenericContext,
	}
	var err error

	if c.areaSelection, err = alternation(p.AreaSelection); err != nil {
		return nil, fmt.Errorf("area selection phrases: %w", err)
	}
	if c.actionChooser, err = alternation(p.ActionChooser); err != nil {
		return nil, fmt.Errorf("action chooser phrases: %w", err)
	}
	if c.statusSummary, err = alternation(p.StatusSummary); err != nil {
		return nil, fmt.Errorf("status summary phrases: %w", err)
	}
	if c.questionMarkers, err = alternation(p.QuestionMarkers); err != nil {
		return nil, fmt.Errorf("question markers: %w", err)
	}
	if c.narrativeOpeners, err = regexp.Compile(`(?i)^(?:` + strings.Join(p.NarrativeOpeners, `|`) + `)\b`); err != nil {
		return nil, fmt.Errorf("narrative openers: %w", err)
	}

	var verbs []string
	for _, kind := range []ActionKind{ActionAdd, ActionModify, ActionDelete} {
		if len(p.ActionVerbs[kind]) == 0 {
			continue
		}
		re, err := regexp.Compile(`(?i)^(?:` + strings.Join(p.ActionVerbs[kind], `|`) + `)$`)
		if err != nil {
			return nil, fmt.Errorf("action verbs for %s: %w", kind, err)
		}
		c.verbKinds = append(c.verbKinds, verbKind{re: re, kind: kind})
		verbs = append(verbs, p.ActionVerbs[kind]...)
	}
	// Optional bullet or number, optional emphasis around the verb, then a colon.
	actionLine := `(?i)^\s*(?:[-*•+]\s*)?(?:\d+[.)]\s*)?(?:\*\*|__|\*|_)?\s*(` +
		strings.Join(verbs, `|`) + `)\s*(?:\*\*|__|\*|_)?\s*:\s*(.*)$`
	if c.actionLine, err = regexp.Compile(actionLine); err != nil {
		return nil, fmt.Errorf("action line: %w", err)
	}

	for _, dc := range p.DefaultContexts {
		re, err := regexp.Compile(`(?i)` + dc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("default context %q: %w", dc.Phrase, err)
		}
		c.defaultContexts = append(c.defaultContexts, compiledContext{re: re, phrase: dc.Phrase})
	}

	for _, ft := range p.FlowTriggers {
		re, err := alternation(ft.Patterns)
		if err != nil {
			return nil, fmt.Errorf("flow trigger %s: %w", ft.Flow, err)
		}
		c.flowTriggers = append(c.flowTriggers, compiledTrigger{flow: ft.Flow, re: re})
	}

	// A numbered line (1., 1), 1- or keycap 1️⃣) naming a section.
	menuLine := `(?i)^\s*(?:[-*•]\s*)?(?:\*\*)?\s*(?:[1-4]\x{FE0F}?\x{20E3}|[1-4]\s*[.):-])` +
		`.*(?:` + strings.Join(p.SectionKeywords, `|`) + `)`
	if c.menuLine, err = regexp.Compile(menuLine); err != nil {
		return nil, fmt.Errorf("menu line: %w", err)
	}

	return c, nil
}
