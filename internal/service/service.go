package service

import (
	"context"

	"eventsync/internal/domain"
)

// Interactor surfaces consumed by the presentation layer. Every method
// returns plain data or an action result; nothing here renders.

type PresenceInteractor interface {
	Start(ctx context.Context, eventID string) error
	Stop()
	ActiveActivityID(ctx context.Context) (string, error)
	Announce(eventID, activityID string) error
	Participants() []string
}

type NoteInteractor interface {
	SetActivity(activityID string)
	SetNotes(value string)
	Notes() string
	HasChanged() bool
	Save(ctx context.Context) error
}

type PartnerInteractor interface {
	Observe(ctx context.Context, activityID, partnerID string) error
	PartnerNote() (string, bool)
	Stop()
}

type PairingInteractor interface {
	Observe(ctx context.Context, eventID, activityID string) error
	PairUsers(ctx context.Context, activityID string) error
	Group() *domain.GroupActivity
	PartnerFor(userID string) (domain.ParticipantUser, bool)
	Clear()
}
