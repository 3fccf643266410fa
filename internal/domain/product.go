package domain

// Product is the selected product record, persisted as-is.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Presence is the cached answer to "does this product have an architecture".
type Presence string

const (
	PresenceUnknown Presence = "unknown"
	PresenceAbsent  Presence = "absent"
	PresencePresent Presence = "present"
)

// PresenceOf converts a check result to a Presence value.
func PresenceOf(exists bool) Presence {
	if exists {
		return PresencePresent
	}
	return PresenceAbsent
}
