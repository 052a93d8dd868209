package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"eventsync/internal/domain"
	"eventsync/internal/identity"
)

// RESTClient talks to the persistence service. One instance is shared by
// the typed repositories it hands out; every request carries the bearer
// credential from the identity provider.
type RESTClient struct {
	baseURL  string
	http     *http.Client
	identity identity.Provider
	log      *slog.Logger
}

func NewRESTClient(baseURL string, provider identity.Provider, timeout time.Duration, log *slog.Logger) *RESTClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		identity: provider,
		log:      log,
	}
}

func (c *RESTClient) Events() EventRepository { return &restEvents{c} }

func (c *RESTClient) Activities() ActivityRepository { return &restActivities{c} }

func (c *RESTClient) UserActivities() UserActivityRepository { return &restUserActivities{c} }

func (c *RESTClient) GroupActivities() GroupActivityRepository { return &restGroupActivities{c} }

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.identity != nil {
		token, err := c.identity.Token(ctx, false)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("persistence: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("persistence: decode %s %s: %w", method, path, err)
	}
	return nil
}

type restEvents struct{ c *RESTClient }

func (r *restEvents) Get(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	if err := r.c.do(ctx, http.MethodGet, "/events/"+id, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *restEvents) List(ctx context.Context) ([]*domain.Event, error) {
	var events []*domain.Event
	if err := r.c.do(ctx, http.MethodGet, "/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *restEvents) Update(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return errors.New("event is nil")
	}
	return r.c.do(ctx, http.MethodPut, "/events/"+event.ID, event, nil)
}

func (r *restEvents) Close(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodPost, "/events/"+id+"/close", nil, nil)
}

func (r *restEvents) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodDelete, "/events/"+id, nil, nil)
}

type restActivities struct{ c *RESTClient }

func (r *restActivities) Get(ctx context.Context, id string) (*domain.Activity, error) {
	var activity domain.Activity
	if err := r.c.do(ctx, http.MethodGet, "/activities/"+id, nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *restActivities) ListByEvent(ctx context.Context, eventID string) ([]*domain.Activity, error) {
	var activities []*domain.Activity
	if err := r.c.do(ctx, http.MethodGet, "/events/"+eventID+"/activities", nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *restActivities) Create(ctx context.Context, activity *domain.Activity) error {
	if activity == nil {
		return errors.New("activity is nil")
	}
	return r.c.do(ctx, http.MethodPost, "/activities", activity, nil)
}

func (r *restActivities) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodDelete, "/activities/"+id, nil, nil)
}

type restUserActivities struct{ c *RESTClient }

func (r *restUserActivities) Get(ctx context.Context, activityID, userID string) (*domain.UserActivity, error) {
	var ua domain.UserActivity
	path := "/activities/" + activityID + "/user-activities/" + userID
	if err := r.c.do(ctx, http.MethodGet, path, nil, &ua); err != nil {
		return nil, err
	}
	return &ua, nil
}

func (r *restUserActivities) Create(ctx context.Context, ua *domain.UserActivity) (*domain.UserActivity, error) {
	if ua == nil {
		return nil, errors.New("user activity is nil")
	}
	var created domain.UserActivity
	if err := r.c.do(ctx, http.MethodPost, "/user-activities", ua, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *restUserActivities) Update(ctx context.Context, activityID, userID, notes string) (*domain.UserActivity, error) {
	body := map[string]string{"notes": notes}
	var updated domain.UserActivity
	path := "/activities/" + activityID + "/user-activities/" + userID
	if err := r.c.do(ctx, http.MethodPut, path, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

type restGroupActivities struct{ c *RESTClient }

func (r *restGroupActivities) GetByActivity(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	var ga domain.GroupActivity
	if err := r.c.do(ctx, http.MethodGet, "/activities/"+activityID+"/group-activity", nil, &ga); err != nil {
		return nil, err
	}
	return &ga, nil
}

func (r *restGroupActivities) Pair(ctx context.Context, activityID string) (*domain.GroupActivity, error) {
	var ga domain.GroupActivity
	if err := r.c.do(ctx, http.MethodPost, "/activities/"+activityID+"/pair", nil, &ga); err != nil {
		return nil, err
	}
	return &ga, nil
}
