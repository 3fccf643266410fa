package domain

import (
	"strings"
	"time"
)

// ConversationDescriptor identifies the conversation currently shown to the user.
type ConversationDescriptor struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary is one row of the stored conversation list.
type ConversationSummary struct {
	ID           string    `json:"session_id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsFavorite   bool      `json:"is_favorite"`
	MessageCount int       `json:"message_count"`
}

// EditSection is the architecture area the user is currently editing.
// It is sticky: it only changes when a new message names another section.
type EditSection string

const (
	EditSectionNone      EditSection = ""
	EditSectionStructure EditSection = "structure"
	EditSectionDatabase  EditSection = "database"
	EditSectionEndpoints EditSection = "endpoints"
	EditSectionModules   EditSection = "modules"
)

// ParseEditSection maps a stored section name to an EditSection. Unknown
// names map to EditSectionNone.
func ParseEditSection(s string) EditSection {
	switch sec := EditSection(strings.ToLower(strings.TrimSpace(s))); sec {
	case EditSectionStructure, EditSectionDatabase, EditSectionEndpoints, EditSectionModules:
		return sec
	default:
		return EditSectionNone
	}
}

// TitleLimit is the number of runes of the first user message kept as title.
const TitleLimit = 50

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleLimit {
		return text
	}
	return string(runes[:TitleLimit]) + "..."
}
