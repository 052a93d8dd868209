package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/domain"
)

func TestPartnerBroadcastDelivery(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)
	repo := newFakeUserActivities()

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	require.NoError(t, listener.Observe(context.Background(), "act-1", "partner-9"))

	_, ok := listener.PartnerNote()
	assert.False(t, ok)

	server.broadcast(t, domain.EventPartnerNoteUpdated, domain.PartnerNoteUpdate{
		ActivityID: "act-1",
		UserID:     "partner-9",
		Notes:      "hi",
	})

	require.Eventually(t, func() bool {
		note, ok := listener.PartnerNote()
		return ok && note == "hi"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPartnerNoteResetsOnActivityChange(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)
	repo := newFakeUserActivities()

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	require.NoError(t, listener.Observe(context.Background(), "act-1", "partner-9"))
	server.broadcast(t, domain.EventPartnerNoteUpdated, domain.PartnerNoteUpdate{
		ActivityID: "act-1",
		UserID:     "partner-9",
		Notes:      "hi",
	})
	require.Eventually(t, func() bool {
		_, ok := listener.PartnerNote()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Switching activities must clear the note before any new fetch lands.
	require.NoError(t, listener.Observe(context.Background(), "act-2", "partner-9"))

	note, ok := listener.PartnerNote()
	assert.False(t, ok)
	assert.Empty(t, note)
}

func TestPartnerInitialFetch(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)

	repo := newFakeUserActivities()
	repo.put(&domain.UserActivity{ActivityID: "act-1", UserID: "partner-9", Notes: "already answered"})

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	require.NoError(t, listener.Observe(context.Background(), "act-1", "partner-9"))

	note, ok := listener.PartnerNote()
	require.True(t, ok)
	assert.Equal(t, "already answered", note)
}

func TestPartnerFetchFailureYieldsEmpty(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)

	repo := newFakeUserActivities()
	repo.getErr = errors.New("persistence down")

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	// The partner may not have answered yet; a failed fetch is not an error.
	require.NoError(t, listener.Observe(context.Background(), "act-1", "partner-9"))

	note, ok := listener.PartnerNote()
	assert.False(t, ok)
	assert.Empty(t, note)
}

func TestMismatchedBroadcastsIgnored(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)
	repo := newFakeUserActivities()

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	require.NoError(t, listener.Observe(context.Background(), "act-1", "partner-9"))

	server.broadcast(t, domain.EventPartnerNoteUpdated, domain.PartnerNoteUpdate{
		ActivityID: "act-1",
		UserID:     "someone-else",
		Notes:      "not for you",
	})
	server.broadcast(t, domain.EventPartnerNoteUpdated, domain.PartnerNoteUpdate{
		ActivityID: "act-2",
		UserID:     "partner-9",
		Notes:      "wrong activity",
	})

	time.Sleep(100 * time.Millisecond)

	note, ok := listener.PartnerNote()
	assert.False(t, ok)
	assert.Empty(t, note)
}

func TestObserveEmptyPairIsNoOp(t *testing.T) {
	server := newFakeChannelServer(t)
	manager := newConnectedManager(t, server)
	repo := newFakeUserActivities()

	listener := NewPartnerListener(manager, repo, nil)
	defer listener.Stop()

	require.NoError(t, listener.Observe(context.Background(), "", ""))

	gets, _, _ := repo.counts()
	assert.Zero(t, gets)
}
