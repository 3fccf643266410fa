package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/scrum-ai/internal/domain"
)

// Phrases holds the user-facing texts and intent patterns the session
// manager depends on. Patterns are RE2 and matched case-insensitively.
type Phrases struct {
	// Sections are tested in slice order; the first match wins.
	Sections []SectionIntent
	// ArchitectureIntent marks a request to create an architecture.
	ArchitectureIntent string
	// GuardMessage is shown when an architecture is requested without a product.
	GuardMessage string
	// MissingProductMessage replaces backend errors reporting a missing product.
	MissingProductMessage string
	// GenericErrorTemplate formats every other failure; %s receives the detail.
	GenericErrorTemplate string
	// GenericErrorDetail is used when the failure carries no readable detail.
	GenericErrorDetail string
}

// SectionIntent maps a pattern and its bare-digit shorthand to a section.
type SectionIntent struct {
	Section domain.EditSection
	Pattern string
	Digit   string
}

// DefaultPhrases returns the Spanish texts used by the SCRUM AI dashboard.
func DefaultPhrases() Phrases {
	return Phrases{
		Sections: []SectionIntent{
			{Section: domain.EditSectionStructure, Digit: "1", Pattern: `\b(?:estructura|structure|carpetas?|folders?)\b`},
			{Section: domain.EditSectionEndpoints, Digit: "2", Pattern: `\b(?:endpoints?|api|rutas?|routes?)\b`},
			{Section: domain.EditSectionModules, Digit: "3", Pattern: `\b(?:m[oó]dulos?|modules?|componentes?|components?)\b`},
			// Checked last: endpoint and module forms often mention tables.
			{Section: domain.EditSectionDatabase, Digit: "4", Pattern: `\b(?:base de datos|database|tablas?|tables?|bd|db)\b`},
		},
		ArchitectureIntent: `\b(?:crear|generar|dise[nñ]ar|armar|definir|create|generate|design|build)\b.{0,30}\b(?:arquitectura|architecture)\b`,
		GuardMessage: "⚠️ Para crear una arquitectura primero debes seleccionar un producto. " +
			"Elige un producto en el selector y vuelve a intentarlo.",
		MissingProductMessage: "⚠️ No hay un producto seleccionado. " +
			"Selecciona un producto para continuar trabajando en su arquitectura.",
		GenericErrorTemplate: "❌ Lo siento, ocurrió un error al procesar tu mensaje (%s). Por favor, inténtalo de nuevo.",
		GenericErrorDetail:   "error de conexión",
	}
}

type compiledSection struct {
	section domain.EditSection
	re      *regexp.Regexp
	digit   string
}

type compiledPhrases struct {
	Phrases
	sections           []compiledSection
	architectureIntent *regexp.Regexp
}

func (p Phrases) compile() (*compiledPhrases, error) {
	c := &compiledPhrases{Phrases: p}
	for _, s := range p.Sections {
		re, err := regexp.Compile(`(?i)` + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Section, err)
		}
		c.sections = append(c.sections, compiledSection{section: s.Section, re: re, digit: s.Digit})
	}
	re, err := regexp.Compile(`(?i)` + p.ArchitectureIntent)
	if err != nil {
		return nil, fmt.Errorf("architecture intent: %w", err)
	}
	c.architectureIntent = re
	return c, nil
}

var defaultPhrases = mustCompile(DefaultPhrases())

func mustCompile(p Phrases) *compiledPhrases {
	c, err := p.compile()
	if err != nil {
		panic("conversation: " + err.Error())
	}
	return c
}

// InferEditSection returns the section named by text, or EditSectionNone.
// A message consisting only of a section digit ("1".."4") also counts.
func InferEditSection(text string) domain.EditSection {
	return defaultPhrases.inferSection(text)
}

func (c *compiledPhrases) inferSection(text string) domain.EditSection {
	trimmed := strings.TrimSpace(text)
	for _, s := range c.sections {
		if s.digit != "" && trimmed == s.digit {
			return s.section
		}
	}
	for _, s := range c.sections {
		if s.re.MatchString(text) {
			return s.section
		}
	}
	return domain.EditSectionNone
}

// IsArchitectureIntent reports whether text asks to create an architecture.
func IsArchitectureIntent(text string) bool {
	return defaultPhrases.architectureIntent.MatchString(text)
}
