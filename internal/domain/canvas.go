package domain

import (
	"encoding/json"
	"strings"
)

// CanvasKind is the closed set of side-panel data kinds. Anything the
// gateway does not recognize maps to CanvasUnknown.
type CanvasKind int

const (
	CanvasUnknown CanvasKind = iota
	CanvasProducts
	CanvasBacklog
	CanvasSprints
	CanvasTasks
	CanvasTeam
	CanvasArchitecture
)

var canvasKindNames = map[CanvasKind]string{
	CanvasProducts:     "products",
	CanvasBacklog:      "backlog",
	CanvasSprints:      "sprints",
	CanvasTasks:        "tasks",
	CanvasTeam:         "team",
	CanvasArchitecture: "architecture",
}

// ParseCanvasKind maps a wire name to a CanvasKind.
func ParseCanvasKind(s string) CanvasKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range canvasKindNames {
		if name == s {
			return k
		}
	}
	return CanvasUnknown
}

// String returns the wire name, "unknown" for the fallback kind.
func (k CanvasKind) String() string {
	if name, ok := canvasKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether k is one of the recognized kinds.
func (k CanvasKind) Known() bool {
	return k != CanvasUnknown
}

// MarshalJSON encodes the kind as its wire name.
func (k CanvasKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a wire name; unrecognized names become CanvasUnknown.
func (k *CanvasKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseCanvasKind(s)
	return nil
}

// Canvas is the structured payload rendered in the side panel.
// RawType keeps the original type string when Kind is CanvasUnknown.
type Canvas struct {
	Kind     CanvasKind        `json:"type"`
	RawType  string            `json:"raw_type,omitempty"`
	Title    string            `json:"title"`
	Data     []json.RawMessage `json:"data"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}
