package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserActivity is the authoritative per-participant answer record. The
// server keeps at most one per (userID, activityID) pair; creation and
// update are separate calls, so the client treats a not-found update as the
// signal to create.
type UserActivity struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId"`
	UserID     string    `json:"userId"`
	GroupID    string    `json:"groupId,omitempty"`
	Date       time.Time `json:"date"`
	Notes      string    `json:"notes"`
}

func NewUserActivity(activityID, userID, groupID, notes string) *UserActivity {
	return &UserActivity{
		ID:         uuid.New().String(),
		ActivityID: activityID,
		UserID:     userID,
		GroupID:    groupID,
		Date:       time.Now().UTC(),
		Notes:      notes,
	}
}
