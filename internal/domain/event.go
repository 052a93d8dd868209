package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a moderated live session that participants join. The moderator
// advances CurrentActivityID; the field is the durable fallback while the
// realtime broadcast is the low-latency path.
type Event struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Picture           string   `json:"picture,omitempty"`
	ActivityIDs       []string `json:"activityIds"`
	Open              bool     `json:"open"`
	CurrentActivityID string   `json:"currentActivityId,omitempty"`
	ShowReview        bool     `json:"showReview,omitempty"`
	ParticipantIDs    []string `json:"participantIds"`
}

type ActivityType string

const (
	ActivitySelf    ActivityType = "self"
	ActivityPartner ActivityType = "partner"
)

// Activity is one prompt within an event. Immutable after creation except
// by delete.
type Activity struct {
	ID       string       `json:"id"`
	EventID  string       `json:"eventId"`
	Date     time.Time    `json:"date"`
	Type     ActivityType `json:"type"`
	Question string       `json:"question"`
	Title    string       `json:"title"`
}

func NewActivity(eventID string, typ ActivityType, title, question string) *Activity {
	return &Activity{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Date:     time.Now().UTC(),
		Type:     typ,
		Title:    title,
		Question: question,
	}
}
