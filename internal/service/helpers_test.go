package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"eventsync/internal/cache"
	"eventsync/internal/domain"
	"eventsync/internal/draft"
	"eventsync/internal/realtime"
	"eventsync/internal/repository"
)

// fakeChannelServer is an in-process realtime transport: it records what
// clients emit and lets tests push broadcasts down.
type fakeChannelServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received []domain.Message
}

func newFakeChannelServer(t *testing.T) *fakeChannelServer {
	t.Helper()

	s := &fakeChannelServer{}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			var msg domain.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, msg)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeChannelServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeChannelServer) broadcast(t *testing.T, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		require.NoError(t, conn.WriteJSON(domain.Message{Event: event, Data: data}))
	}
}

func (s *fakeChannelServer) emitted(event string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Message
	for _, msg := range s.received {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func newConnectedManager(t *testing.T, server *fakeChannelServer) *realtime.Manager {
	t.Helper()

	manager := realtime.NewManager(server.url(), nil)
	t.Cleanup(manager.Close)
	require.NoError(t, manager.Ensure(context.Background()))
	return manager
}

func newTestCache() *cache.Cache {
	return cache.New(nil, cache.WithRetryDelays(time.Millisecond, time.Millisecond))
}

func newTestDrafts(t *testing.T) *draft.Store {
	t.Helper()

	store, err := draft.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeUserActivities counts calls so tests can assert how many network
// mutations a flow produced. The updateStarted/updateRelease channels let a
// test hold an Update in flight and interleave other operations.
type fakeUserActivities struct {
	mu            sync.Mutex
	records       map[string]*domain.UserActivity
	gets          int
	updates       int
	creates       int
	updateErr     error
	getErr        error
	updateStarted chan struct{}
	updateRelease chan struct{}
}

func newFakeUserActivities() *fakeUserActivities {
	return &fakeUserActivities{records: make(map[string]*domain.UserActivity)}
}

func (f *fakeUserActivities) put(ua *domain.UserActivity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[ua.ActivityID+"/"+ua.UserID] = ua
}

func (f *fakeUserActivities) Get(ctx context.Context, activityID, userID string) (*domain.UserActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	ua, ok := f.records[activityID+"/"+userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ua, nil
}

func (f *fakeUserActivities) Create(ctx context.Context, ua *domain.UserActivity) (*domain.UserActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	created := *ua
	created.ID = "ua-created"
	f.records[created.ActivityID+"/"+created.UserID] = &created
	return &created, nil
}

func (f *fakeUserActivities) Update(ctx context.Context, activityID, userID, notes string) (*domain.UserActivity, error) {
	f.mu.Lock()
	started := f.updateStarted
	release := f.updateRelease
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	ua, ok := f.records[activityID+"/"+userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ua.Notes = notes
	return ua, nil
}

func (f *fakeUserActivities) counts() (gets, updates, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.updates, f.creates
}

// fakeGroups serves pairing flows with scripted results.
type fakeGroups struct {
	mu       sync.Mutex
	byID     map[string]*domain.GroupActivity
	gets     int
	pairs    int
	pairErr  error
	pairNext *domain.GroupActivity
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{byID: make(map[string]*domain.GroupActivity)}
}

func (f *fakeGroups) put(ga *domain.GroupActivity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[ga.ActivityID] = ga
}

func (f *fakeGroups) GetByActivity(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	ga, ok := f.byID[activityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ga, nil
}

func (f *fakeGroups) Pair(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs++
	if f.pairErr != nil {
		return nil, f.pairErr
	}
	if f.pairNext != nil {
		f.byID[activityID] = f.pairNext
		return f.pairNext, nil
	}
	return nil, repository.ErrNotFound
}

func pairOf(activityID string, users ...string) *domain.GroupActivity {
	participants := make([]domain.ParticipantUser, 0, len(users))
	for _, id := range users {
		participants = append(participants, domain.ParticipantUser{UserID: id, Name: id})
	}
	return &domain.GroupActivity{
		ID:         "ga-" + activityID,
		ActivityID: activityID,
		EventID:    "ev1",
		Groups: []domain.Group{{
			ID:           "g1",
			Number:       1,
			Color:        "red",
			Participants: participants,
		}},
	}
}
