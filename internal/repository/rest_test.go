package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/domain"
)

type staticProvider struct {
	token string
}

func (p staticProvider) SubjectID() string { return "u1" }
func (p staticProvider) IsAnonymous() bool { return false }
func (p staticProvider) Token(ctx context.Context, force bool) (string, error) {
	return p.token, nil
}

// fakePersistence is an in-process rendition of the persistence service,
// just enough surface for the client to be exercised against.
type fakePersistence struct {
	mu             sync.Mutex
	events         map[string]*domain.Event
	userActivities map[string]*domain.UserActivity
	lastAuth       string
}

func newFakePersistence(t *testing.T) (*fakePersistence, *RESTClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakePersistence{
		events:         make(map[string]*domain.Event),
		userActivities: make(map[string]*domain.UserActivity),
	}

	router := gin.New()
	router.Use(func(ctx *gin.Context) {
		f.mu.Lock()
		f.lastAuth = ctx.GetHeader("Authorization")
		f.mu.Unlock()
	})

	router.GET("/events/:eventID", func(ctx *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		event, ok := f.events[ctx.Param("eventID")]
		if !ok {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		ctx.JSON(http.StatusOK, event)
	})

	router.GET("/activities/:activityID/user-activities/:userID", func(ctx *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		ua, ok := f.userActivities[ctx.Param("activityID")+"/"+ctx.Param("userID")]
		if !ok {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "user activity not found"})
			return
		}
		ctx.JSON(http.StatusOK, ua)
	})

	router.PUT("/activities/:activityID/user-activities/:userID", func(ctx *gin.Context) {
		var body struct {
			Notes string `json:"notes"`
		}
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		ua, ok := f.userActivities[ctx.Param("activityID")+"/"+ctx.Param("userID")]
		if !ok {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "user activity not found"})
			return
		}
		ua.Notes = body.Notes
		ctx.JSON(http.StatusOK, ua)
	})

	router.POST("/user-activities", func(ctx *gin.Context) {
		var ua domain.UserActivity
		if err := ctx.ShouldBindJSON(&ua); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		ua.ID = "ua-created"

		f.mu.Lock()
		f.userActivities[ua.ActivityID+"/"+ua.UserID] = &ua
		f.mu.Unlock()

		ctx.JSON(http.StatusOK, ua)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := NewRESTClient(srv.URL, staticProvider{token: "test-token"}, 5*time.Second, nil)
	return f, client
}

func TestGetEventSendsBearer(t *testing.T) {
	fake, client := newFakePersistence(t)
	fake.events["ev1"] = &domain.Event{ID: "ev1", Name: "Retro", Open: true}

	event, err := client.Events().Get(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Retro", event.Name)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "Bearer test-token", fake.lastAuth)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	_, client := newFakePersistence(t)

	_, err := client.Events().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.UserActivities().Get(context.Background(), "a1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.UserActivities().Update(context.Background(), "a1", "u1", "notes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateThenUpdateUserActivity(t *testing.T) {
	_, client := newFakePersistence(t)

	created, err := client.UserActivities().Create(context.Background(), &domain.UserActivity{
		ActivityID: "a1",
		UserID:     "u1",
		Notes:      "first answer",
	})
	require.NoError(t, err)
	assert.Equal(t, "ua-created", created.ID)
	assert.Equal(t, "first answer", created.Notes)

	updated, err := client.UserActivities().Update(context.Background(), "a1", "u1", "revised answer")
	require.NoError(t, err)
	assert.Equal(t, "revised answer", updated.Notes)

	fetched, err := client.UserActivities().Get(context.Background(), "a1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "revised answer", fetched.Notes)
}

func TestCancelledContextShortCircuits(t *testing.T) {
	_, client := newFakePersistence(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Events().Get(ctx, "ev1")
	assert.ErrorIs(t, err, context.Canceled)
}
