package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"eventsync/internal/domain"
	"eventsync/internal/realtime"
	"eventsync/internal/repository"
	"eventsync/lib/logger/sl"
)

// PartnerListener exposes the matched partner's note for the current
// activity: one best-effort fetch of their record, then live updates from
// the partnerNoteUpdated broadcast. A missing record is "no answer yet",
// never an error.
type PartnerListener struct {
	channel        *realtime.Manager
	userActivities repository.UserActivityRepository
	log            *slog.Logger

	mu            sync.Mutex
	activityID    string
	partnerID     string
	note          string
	hasNote       bool
	fromBroadcast bool
	off           func()
}

func NewPartnerListener(channel *realtime.Manager, userActivities repository.UserActivityRepository, log *slog.Logger) *PartnerListener {
	if log == nil {
		log = slog.Default()
	}
	return &PartnerListener{
		channel:        channel,
		userActivities: userActivities,
		log:            log,
	}
}

// Observe switches the listener to a (activity, partner) pair. The held
// note is reset before any fetch resolves so a previous partner's text can
// never leak across a switch.
func (l *PartnerListener) Observe(ctx context.Context, activityID, partnerID string) error {
	const op = "service.partner.observe"

	l.mu.Lock()
	if activityID == l.activityID && partnerID == l.partnerID && l.off != nil {
		l.mu.Unlock()
		return nil
	}
	if l.off != nil {
		l.off()
		l.off = nil
	}
	l.activityID = activityID
	l.partnerID = partnerID
	l.note = ""
	l.hasNote = false
	l.fromBroadcast = false
	l.mu.Unlock()

	if activityID == "" || partnerID == "" {
		return nil
	}

	log := l.log.With(
		slog.String("op", op),
		slog.String("activity_id", activityID),
		slog.String("partner_id", partnerID),
	)

	if err := l.channel.Ensure(ctx); err != nil {
		// Broadcasts are unavailable but the pull fetch below still works.
		log.Warn("channel unavailable", sl.Err(err))
	} else {
		off := l.channel.On(domain.EventPartnerNoteUpdated, l.handleUpdate)
		l.mu.Lock()
		if l.activityID != activityID || l.partnerID != partnerID {
			l.mu.Unlock()
			off()
			return nil
		}
		l.off = off
		l.mu.Unlock()
	}

	ua, err := l.userActivities.Get(ctx, activityID, partnerID)
	if err != nil {
		// The partner may simply not have answered yet.
		return nil
	}

	l.mu.Lock()
	if l.activityID == activityID && l.partnerID == partnerID && !l.fromBroadcast {
		l.note = ua.Notes
		l.hasNote = true
	}
	l.mu.Unlock()
	return nil
}

// PartnerNote returns the partner's note and whether one is known.
func (l *PartnerListener) PartnerNote() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.note, l.hasNote
}

// Stop unsubscribes and clears the held note.
func (l *PartnerListener) Stop() {
	l.mu.Lock()
	off := l.off
	l.off = nil
	l.activityID = ""
	l.partnerID = ""
	l.note = ""
	l.hasNote = false
	l.fromBroadcast = false
	l.mu.Unlock()

	if off != nil {
		off()
	}
}

func (l *PartnerListener) handleUpdate(data json.RawMessage) {
	var update domain.PartnerNoteUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		l.log.Warn("bad partner note payload", sl.Err(err))
		return
	}

	l.mu.Lock()
	if update.ActivityID == l.activityID && update.UserID == l.partnerID {
		l.note = update.Notes
		l.hasNote = true
		l.fromBroadcast = true
	}
	l.mu.Unlock()
}
