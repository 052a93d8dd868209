package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"eventsync/internal/cache"
	"eventsync/internal/domain"
	"eventsync/internal/repository"
	"eventsync/lib/logger/sl"
)

// PairingCoordinator holds the group assignment for the current activity.
// The server is authoritative for grouping; there is no optimistic local
// pairing. A failed re-pair never erases a previously successful one.
type PairingCoordinator struct {
	groups repository.GroupActivityRepository
	cache  *cache.Cache
	log    *slog.Logger

	mu         sync.Mutex
	eventID    string
	activityID string
	group      *domain.GroupActivity
	loading    bool
	err        error
}

func NewPairingCoordinator(groups repository.GroupActivityRepository, resources *cache.Cache, log *slog.Logger) *PairingCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &PairingCoordinator{
		groups: groups,
		cache:  resources,
		log:    log,
	}
}

// Observe loads the group assignment for an activity. An empty id is
// skipped, and re-observing the same id is a no-op so re-renders don't
// refetch.
func (p *PairingCoordinator) Observe(ctx context.Context, eventID, activityID string) error {
	const op = "service.pairing.observe"

	if activityID == "" {
		return nil
	}

	p.mu.Lock()
	if activityID == p.activityID {
		p.mu.Unlock()
		return nil
	}
	p.eventID = eventID
	p.activityID = activityID
	p.group = nil
	p.loading = true
	p.err = nil
	p.mu.Unlock()

	value, err := p.cache.Get(ctx, cache.GroupActivityKey(activityID), func(ctx context.Context) (any, error) {
		return p.groups.GetByActivity(ctx, activityID)
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activityID != activityID {
		// Torn down or switched while the fetch was in flight.
		return nil
	}
	p.loading = false

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// No pairing has happened yet for this activity.
			return nil
		}
		p.err = err
		p.log.Error("group fetch failed", slog.String("op", op), sl.Err(err))
		return err
	}

	p.group = value.(*domain.GroupActivity)
	return nil
}

// PairUsers runs the pairing call and replaces the held group with the
// server's result. On failure the prior group data stays in place.
func (p *PairingCoordinator) PairUsers(ctx context.Context, activityID string) error {
	const op = "service.pairing.pair"

	ga, err := p.groups.Pair(ctx, activityID)
	if err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.log.Error("pairing failed", slog.String("op", op), sl.Err(err))
		return err
	}

	p.mu.Lock()
	p.activityID = activityID
	p.group = ga
	p.err = nil
	p.loading = false
	p.mu.Unlock()

	p.cache.Mutate(cache.GroupActivityKey(activityID), ga, false)
	return nil
}

func (p *PairingCoordinator) Group() *domain.GroupActivity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.group
}

func (p *PairingCoordinator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

func (p *PairingCoordinator) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// PartnerFor returns the caller's matched partner in the held group.
func (p *PairingCoordinator) PartnerFor(userID string) (domain.ParticipantUser, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.group.PartnerFor(userID)
}

// Clear resets all state. Call it when the hosting activity is torn down
// so stale groups never render against a new activity.
func (p *PairingCoordinator) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventID = ""
	p.activityID = ""
	p.group = nil
	p.loading = false
	p.err = nil
}
