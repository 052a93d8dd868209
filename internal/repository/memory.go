package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventsync/internal/domain"
)

// In-memory implementations, used by tests and the demo binary in place of
// the remote persistence service.

type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
}

func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{events: make(map[string]*domain.Event)}
}

func (r *InMemoryEventRepository) Put(event *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = event
}

func (r *InMemoryEventRepository) Get(ctx context.Context, id string) (*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return event, nil
}

func (r *InMemoryEventRepository) List(ctx context.Context) ([]*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Event, 0, len(r.events))
	for _, event := range r.events {
		result = append(result, event)
	}
	return result, nil
}

func (r *InMemoryEventRepository) Update(ctx context.Context, event *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event == nil {
		return errors.New("event is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; !ok {
		return ErrNotFound
	}
	r.events[event.ID] = event
	return nil
}

func (r *InMemoryEventRepository) Close(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	event.Open = false
	return nil
}

func (r *InMemoryEventRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[id]; !ok {
		return ErrNotFound
	}
	delete(r.events, id)
	return nil
}

type InMemoryActivityRepository struct {
	mu         sync.RWMutex
	activities map[string]*domain.Activity
}

func NewInMemoryActivityRepository() *InMemoryActivityRepository {
	return &InMemoryActivityRepository{activities: make(map[string]*domain.Activity)}
}

func (r *InMemoryActivityRepository) Get(ctx context.Context, id string) (*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return activity, nil
}

func (r *InMemoryActivityRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Activity, 0)
	for _, activity := range r.activities {
		if activity.EventID == eventID {
			result = append(result, activity)
		}
	}
	return result, nil
}

func (r *InMemoryActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if activity == nil {
		return errors.New("activity is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.activities[activity.ID] = activity
	return nil
}

func (r *InMemoryActivityRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[id]; !ok {
		return ErrNotFound
	}
	delete(r.activities, id)
	return nil
}

type userActivityKey struct {
	activityID string
	userID     string
}

type InMemoryUserActivityRepository struct {
	mu      sync.RWMutex
	records map[userActivityKey]*domain.UserActivity
}

func NewInMemoryUserActivityRepository() *InMemoryUserActivityRepository {
	return &InMemoryUserActivityRepository{records: make(map[userActivityKey]*domain.UserActivity)}
}

func (r *InMemoryUserActivityRepository) Get(ctx context.Context, activityID, userID string) (*domain.UserActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ua, ok := r.records[userActivityKey{activityID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return ua, nil
}

func (r *InMemoryUserActivityRepository) Create(ctx context.Context, ua *domain.UserActivity) (*domain.UserActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ua == nil {
		return nil, errors.New("user activity is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := *ua
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Date.IsZero() {
		created.Date = time.Now().UTC()
	}
	r.records[userActivityKey{created.ActivityID, created.UserID}] = &created
	return &created, nil
}

func (r *InMemoryUserActivityRepository) Update(ctx context.Context, activityID, userID, notes string) (*domain.UserActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ua, ok := r.records[userActivityKey{activityID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	ua.Notes = notes
	ua.Date = time.Now().UTC()
	return ua, nil
}

var groupColors = []string{"red", "blue", "green", "yellow", "purple", "orange"}

type InMemoryGroupActivityRepository struct {
	mu           sync.RWMutex
	byActivity   map[string]*domain.GroupActivity
	participants map[string][]domain.ParticipantUser
	eventIDs     map[string]string
}

func NewInMemoryGroupActivityRepository() *InMemoryGroupActivityRepository {
	return &InMemoryGroupActivityRepository{
		byActivity:   make(map[string]*domain.GroupActivity),
		participants: make(map[string][]domain.ParticipantUser),
		eventIDs:     make(map[string]string),
	}
}

// SetParticipants registers the pairing pool for an activity.
func (r *InMemoryGroupActivityRepository) SetParticipants(activityID, eventID string, participants []domain.ParticipantUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[activityID] = participants
	r.eventIDs[activityID] = eventID
}

func (r *InMemoryGroupActivityRepository) GetByActivity(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ga, ok := r.byActivity[activityID]
	if !ok {
		return nil, ErrNotFound
	}
	return ga, nil
}

func (r *InMemoryGroupActivityRepository) Pair(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.participants[activityID]
	if len(pool) == 0 {
		return nil, errors.New("no participants to pair")
	}

	ga := &domain.GroupActivity{
		ID:         uuid.New().String(),
		ActivityID: activityID,
		EventID:    r.eventIDs[activityID],
	}
	for i := 0; i < len(pool); i += 2 {
		end := i + 2
		if end > len(pool) {
			end = len(pool)
		}
		number := i/2 + 1
		ga.Groups = append(ga.Groups, domain.Group{
			ID:           uuid.New().String(),
			Number:       number,
			Color:        groupColors[(number-1)%len(groupColors)],
			Participants: pool[i:end],
		})
	}

	r.byActivity[activityID] = ga
	return ga, nil
}
