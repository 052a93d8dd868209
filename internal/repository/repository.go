package repository

import (
	"context"
	"errors"

	"eventsync/internal/domain"
)

// ErrNotFound is the canonical "record does not exist" signal. The note
// engine relies on it to decide between update and create, and read paths
// treat it as "no answer yet" rather than an error.
var ErrNotFound = errors.New("resource not found")

type EventRepository interface {
	Get(ctx context.Context, id string) (*domain.Event, error)
	List(ctx context.Context) ([]*domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
	Close(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type ActivityRepository interface {
	Get(ctx context.Context, id string) (*domain.Activity, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Activity, error)
	Create(ctx context.Context, activity *domain.Activity) error
	Delete(ctx context.Context, id string) error
}

type UserActivityRepository interface {
	Get(ctx context.Context, activityID, userID string) (*domain.UserActivity, error)
	Create(ctx context.Context, ua *domain.UserActivity) (*domain.UserActivity, error)
	Update(ctx context.Context, activityID, userID, notes string) (*domain.UserActivity, error)
}

type GroupActivityRepository interface {
	GetByActivity(ctx context.Context, activityID string) (*domain.GroupActivity, error)
	Pair(ctx context.Context, activityID string) (*domain.GroupActivity, error)
}
