package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"eventsync/internal/cache"
	"eventsync/internal/domain"
	"eventsync/internal/realtime"
	"eventsync/internal/repository"
	"eventsync/lib/logger/sl"
)

var ErrNotObserving = errors.New("presence tracker not started")

// PresenceTracker exposes the most recently announced active activity for
// an event. The broadcast value always wins while started; the event
// record's currentActivityId is the durable fallback used before any
// broadcast has arrived, e.g. right after a reload.
type PresenceTracker struct {
	channel *realtime.Manager
	events  repository.EventRepository
	cache   *cache.Cache
	log     *slog.Logger

	mu           sync.Mutex
	eventID      string
	broadcastID  string
	hasBroadcast bool
	joined       map[string]struct{}
	onChange     func(activityID string)
	offs         []func()
}

func NewPresenceTracker(channel *realtime.Manager, events repository.EventRepository, resources *cache.Cache, log *slog.Logger) *PresenceTracker {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceTracker{
		channel: channel,
		events:  events,
		cache:   resources,
		log:     log,
		joined:  make(map[string]struct{}),
	}
}

// SetOnChange registers a callback fired on every activity broadcast.
// Must be called before Start.
func (t *PresenceTracker) SetOnChange(fn func(activityID string)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start joins the event's broadcast room and begins tracking. Stop
// unsubscribes without touching the shared channel.
func (t *PresenceTracker) Start(ctx context.Context, eventID string) error {
	const op = "service.presence.start"
	log := t.log.With(slog.String("op", op), slog.String("event_id", eventID))

	if err := t.channel.Ensure(ctx); err != nil {
		log.Error("channel unavailable", sl.Err(err))
		return err
	}

	t.mu.Lock()
	t.eventID = eventID
	t.broadcastID = ""
	t.hasBroadcast = false
	t.joined = make(map[string]struct{})
	t.mu.Unlock()

	join := func() {
		if err := t.channel.Emit(domain.EventJoinEvent, domain.JoinEvent{EventID: eventID}); err != nil {
			log.Warn("join emit failed", sl.Err(err))
			return
		}
		// The events room carries eventUpdated broadcasts.
		if err := t.channel.Emit(domain.EventJoinEventsRoom, nil); err != nil {
			log.Warn("events room join failed", sl.Err(err))
		}
	}
	join()

	offs := []func(){
		t.channel.OnConnect(join),
		t.channel.On(domain.EventActivityUpdate, t.handleActivityUpdate),
		t.channel.On(domain.EventUserJoinedEvent, t.handleUserJoined),
		t.channel.On(domain.EventUserLeftEvent, t.handleUserLeft),
		t.channel.On(domain.EventEventUpdated, t.handleEventUpdated),
	}

	t.mu.Lock()
	t.offs = offs
	t.mu.Unlock()

	// Seed the roster from the durable record; broadcasts refine it.
	if event, err := t.fetchEvent(ctx, eventID); err == nil {
		t.mu.Lock()
		for _, id := range event.ParticipantIDs {
			t.joined[id] = struct{}{}
		}
		t.mu.Unlock()
	}

	return nil
}

// Stop removes the handlers registered by Start. Other observers may still
// need the channel, so the connection itself is left alone.
func (t *PresenceTracker) Stop() {
	t.mu.Lock()
	offs := t.offs
	t.offs = nil
	t.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// ActiveActivityID returns the broadcast activity if one has arrived, else
// the event record's current activity read through the cache.
func (t *PresenceTracker) ActiveActivityID(ctx context.Context) (string, error) {
	t.mu.Lock()
	eventID := t.eventID
	if t.hasBroadcast {
		id := t.broadcastID
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	if eventID == "" {
		return "", ErrNotObserving
	}

	event, err := t.fetchEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	return event.CurrentActivityID, nil
}

// Announce is the moderator path: broadcast the new current activity.
func (t *PresenceTracker) Announce(eventID, activityID string) error {
	return t.channel.Emit(domain.EventAdminActivityUpdate, domain.ActivityUpdate{
		EventID:    eventID,
		ActivityID: activityID,
	})
}

// Participants returns the currently known roster, sorted.
func (t *PresenceTracker) Participants() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.joined))
	for id := range t.joined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *PresenceTracker) fetchEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	value, err := t.cache.Get(ctx, cache.EventKey(eventID), func(ctx context.Context) (any, error) {
		return t.events.Get(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*domain.Event), nil
}

func (t *PresenceTracker) handleActivityUpdate(data json.RawMessage) {
	var update domain.ActivityUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.log.Warn("bad activity update payload", sl.Err(err))
		return
	}

	t.mu.Lock()
	if update.EventID != t.eventID {
		t.mu.Unlock()
		return
	}
	t.broadcastID = update.ActivityID
	t.hasBroadcast = true
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(update.ActivityID)
	}
}

func (t *PresenceTracker) handleUserJoined(data json.RawMessage) {
	var update domain.UserPresenceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return
	}

	t.mu.Lock()
	if update.EventID == t.eventID {
		t.joined[update.UserID] = struct{}{}
	}
	t.mu.Unlock()
}

func (t *PresenceTracker) handleUserLeft(data json.RawMessage) {
	var update domain.UserPresenceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return
	}

	t.mu.Lock()
	if update.EventID == t.eventID {
		delete(t.joined, update.UserID)
	}
	t.mu.Unlock()
}

func (t *PresenceTracker) handleEventUpdated(data json.RawMessage) {
	var update domain.EventUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return
	}

	t.mu.Lock()
	match := update.EventID == t.eventID
	t.mu.Unlock()

	if match {
		t.cache.Invalidate(cache.EventKey(update.EventID))
	}
}
