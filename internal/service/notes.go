package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"eventsync/internal/cache"
	"eventsync/internal/domain"
	"eventsync/internal/draft"
	"eventsync/internal/metrics"
	"eventsync/internal/repository"
	"eventsync/lib/logger/sl"
)

var ErrEmptyNotes = errors.New("notes are empty")

// NoteEngine reconciles three sources of truth for one participant's notes:
// keystrokes, the on-device draft store, and the server baseline delivered
// through the resource cache. The central invariant: the displayed value is
// never older than the last value the user typed. A slower server read must
// not clobber a faster local edit, which is enforced with the
// typedSinceLoad latch rather than timestamps — the latch is reset exactly
// where staleness is impossible, on activity switch.
type NoteEngine struct {
	drafts         *draft.Store
	userActivities repository.UserActivityRepository
	cache          *cache.Cache
	log            *slog.Logger

	userID string

	mu             sync.Mutex
	activityID     string
	groupID        string
	notes          string
	initialNotes   string
	typedSinceLoad bool
}

func NewNoteEngine(drafts *draft.Store, userActivities repository.UserActivityRepository, resources *cache.Cache, userID string, log *slog.Logger) *NoteEngine {
	if log == nil {
		log = slog.Default()
	}
	return &NoteEngine{
		drafts:         drafts,
		userActivities: userActivities,
		cache:          resources,
		log:            log,
		userID:         userID,
	}
}

// SetGroupID records the group the next created record should carry.
func (e *NoteEngine) SetGroupID(groupID string) {
	e.mu.Lock()
	e.groupID = groupID
	e.mu.Unlock()
}

// SetActivity switches the engine to a new activity. The draft always wins
// on a switch since it may hold unsaved work; without one the notes stay
// empty pending server reconciliation.
func (e *NoteEngine) SetActivity(activityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.activityID = activityID
	e.typedSinceLoad = false
	e.initialNotes = ""

	if body, ok := e.drafts.Read(e.userID, activityID); ok {
		e.notes = body
	} else {
		e.notes = ""
	}
}

// ApplyBaseline records the server value for the current activity. The live
// notes are overwritten only when no draft exists for the key and the user
// has not typed since the activity loaded.
func (e *NoteEngine) ApplyBaseline(ua *domain.UserActivity) {
	if ua == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ua.ActivityID != e.activityID || ua.UserID != e.userID {
		return
	}

	e.initialNotes = ua.Notes

	if e.typedSinceLoad {
		return
	}
	if _, ok := e.drafts.Read(e.userID, e.activityID); ok {
		return
	}
	e.notes = ua.Notes
}

// SetNotes applies a keystroke-level change. The draft store is written
// before any network call can happen, so the change is durable immediately.
func (e *NoteEngine) SetNotes(value string) {
	e.mu.Lock()
	e.typedSinceLoad = true
	e.notes = value
	userID, activityID := e.userID, e.activityID
	e.mu.Unlock()

	e.drafts.Write(userID, activityID, value)
}

func (e *NoteEngine) Notes() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notes
}

func (e *NoteEngine) InitialNotes() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialNotes
}

// HasChanged reports whether the live notes differ from the last known
// server value; callers use it to skip redundant submits.
func (e *NoteEngine) HasChanged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notes != e.initialNotes
}

// Save persists the notes. It tries an update first; the server's
// not-found response is the authoritative signal that no record exists
// yet, in which case exactly one create follows with the same payload. A
// stale cache is never trusted to skip the create. On failure local state
// and the draft stay untouched.
func (e *NoteEngine) Save(ctx context.Context) error {
	const op = "service.notes.save"

	e.mu.Lock()
	submitted := e.notes
	trimmed := strings.TrimSpace(submitted)
	unchanged := submitted == e.initialNotes
	activityID := e.activityID
	groupID := e.groupID
	e.mu.Unlock()

	if trimmed == "" {
		return ErrEmptyNotes
	}
	if unchanged {
		return nil
	}

	log := e.log.With(
		slog.String("op", op),
		slog.String("activity_id", activityID),
	)

	saved, err := e.userActivities.Update(ctx, activityID, e.userID, trimmed)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("no record yet, creating")
		saved, err = e.userActivities.Create(ctx, &domain.UserActivity{
			ActivityID: activityID,
			UserID:     e.userID,
			GroupID:    groupID,
			Notes:      trimmed,
		})
	}
	if err != nil {
		metrics.NoteSaves.WithLabelValues("error").Inc()
		log.Error("save failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	// The user may have typed or switched activities while the request was
	// in flight; their newer local state wins over the confirmed value.
	e.mu.Lock()
	sameActivity := e.activityID == activityID
	untouched := sameActivity && e.notes == submitted
	if sameActivity {
		e.initialNotes = trimmed
	}
	if untouched {
		e.notes = trimmed
	}
	e.mu.Unlock()

	if untouched {
		e.drafts.Write(e.userID, activityID, trimmed)
	}
	e.cache.Mutate(cache.UserActivityKey(activityID, e.userID), saved, false)

	metrics.NoteSaves.WithLabelValues("ok").Inc()
	log.Info("notes saved")
	return nil
}
