package domain

import "encoding/json"

// Broadcast names carried over the realtime channel. Wire names match the
// server's event vocabulary.
const (
	EventActivityUpdate      = "activityUpdate"
	EventAdminActivityUpdate = "adminActivityUpdate"
	EventPartnerNoteUpdated  = "partnerNoteUpdated"
	EventUserJoinedEvent     = "userJoinedEvent"
	EventUserLeftEvent       = "userLeftEvent"
	EventEventUpdated        = "eventUpdated"
	EventJoinEvent           = "joinEvent"
	EventJoinEventsRoom      = "joinEventsRoom"
)

// Message is the envelope every channel frame uses in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ActivityUpdate announces the moderator's current activity for an event.
type ActivityUpdate struct {
	EventID    string `json:"eventId"`
	ActivityID string `json:"activityId"`
}

// PartnerNoteUpdate carries one participant's latest notes to partners.
type PartnerNoteUpdate struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
	Notes      string `json:"notes"`
}

// UserPresenceUpdate signals a participant joining or leaving an event.
type UserPresenceUpdate struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

// EventUpdate invalidates cached event state without carrying the new value.
type EventUpdate struct {
	EventID string `json:"eventId"`
}

// JoinEvent is the room-join intent sent right after connecting.
type JoinEvent struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId,omitempty"`
}
