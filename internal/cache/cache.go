package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventsync/internal/metrics"
	"eventsync/internal/repository"
	"eventsync/lib/logger/sl"
)

// Profile controls how long a cached read is served without hitting the
// fetcher. Within Dedupe, concurrent and repeated reads collapse into the
// cached value. With a TTL, a stale-but-fresh-enough value is served while
// a background revalidation runs.
type Profile struct {
	Dedupe time.Duration
	TTL    time.Duration
}

// Frequent resources revalidate on every read outside a short dedupe
// window; static resources are refreshed on a 5-minute cycle.
var (
	profileFrequent = Profile{Dedupe: 5 * time.Second}
	profileStatic   = Profile{Dedupe: 2 * time.Minute, TTL: 5 * time.Minute}
)

func profileFor(kind Kind) Profile {
	switch kind {
	case KindActivity, KindUserActivity:
		return profileFrequent
	case KindEvent, KindGroupActivity:
		return profileStatic
	default:
		return profileFrequent
	}
}

// Fetcher loads the value for a key from the persistence service.
type Fetcher func(ctx context.Context) (any, error)

// Watcher observes every store for a key, whether from a fetch or a mutate.
type Watcher func(value any)

type entry struct {
	value     any
	version   uint64
	fetchedAt time.Time
}

type watcherEntry struct {
	id int
	fn Watcher
}

// Cache is the deduplicating, revalidating read layer over the persistence
// service. Entries carry versions so an optimistic Mutate is never
// clobbered by a fetch that started earlier and finished later.
type Cache struct {
	log *slog.Logger

	notFoundDelay time.Duration
	retryDelay    time.Duration
	maxAttempts   int

	mu       sync.Mutex
	entries  map[string]*entry
	watchers map[string][]watcherEntry
	nextID   int

	group singleflight.Group
}

type Option func(*Cache)

// WithRetryDelays shortens the retry timings; used by tests.
func WithRetryDelays(notFound, retry time.Duration) Option {
	return func(c *Cache) {
		c.notFoundDelay = notFound
		c.retryDelay = retry
	}
}

func New(log *slog.Logger, opts ...Option) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		log:           log,
		notFoundDelay: 500 * time.Millisecond,
		retryDelay:    time.Second,
		maxAttempts:   3,
		entries:       make(map[string]*entry),
		watchers:      make(map[string][]watcherEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key, fetching through fetch when the cached
// value is outside the key's dedupe window. Concurrent callers for the
// same key share one fetch.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	ks := key.String()
	prof := profileFor(key.Kind)
	now := time.Now()

	c.mu.Lock()
	e := c.entries[ks]
	if e != nil {
		age := now.Sub(e.fetchedAt)
		if age < prof.Dedupe {
			value := e.value
			c.mu.Unlock()
			metrics.CacheHits.Inc()
			return value, nil
		}
		if prof.TTL > 0 && age < prof.TTL {
			value := e.value
			version := e.version
			c.mu.Unlock()
			metrics.CacheHits.Inc()
			go c.revalidate(key, version, fetch)
			return value, nil
		}
	}
	var baseVersion uint64
	if e != nil {
		baseVersion = e.version
	}
	c.mu.Unlock()

	metrics.CacheMisses.Inc()

	value, err, _ := c.group.Do(ks, func() (any, error) {
		return c.fetchWithRetry(ctx, fetch)
	})
	if err != nil {
		return nil, err
	}

	return c.store(key, value, baseVersion), nil
}

// Mutate overwrites the cached value locally without a round trip and bumps
// the entry version so in-flight fetches cannot clobber it. With
// revalidate, the entry is also marked stale so the next Get refetches.
func (c *Cache) Mutate(key Key, value any, revalidate bool) {
	ks := key.String()

	c.mu.Lock()
	e := c.entries[ks]
	if e == nil {
		e = &entry{}
		c.entries[ks] = e
	}
	e.value = value
	e.version++
	if revalidate {
		e.fetchedAt = time.Time{}
	} else {
		e.fetchedAt = time.Now()
	}
	c.mu.Unlock()

	c.notify(ks, value)
}

// Invalidate drops the entry; the next Get fetches fresh.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
}

// Watch registers fn for every store of key and returns its unsubscribe.
func (c *Cache) Watch(key Key, fn Watcher) func() {
	ks := key.String()

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[ks] = append(c.watchers[ks], watcherEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.watchers[ks]
		for i, w := range entries {
			if w.id == id {
				c.watchers[ks] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

func (c *Cache) revalidate(key Key, baseVersion uint64, fetch Fetcher) {
	value, err, _ := c.group.Do(key.String(), func() (any, error) {
		return c.fetchWithRetry(context.Background(), fetch)
	})
	if err != nil {
		c.log.Warn("background revalidation failed",
			slog.String("key", key.String()),
			sl.Err(err),
		)
		return
	}
	c.store(key, value, baseVersion)
}

// store applies a fetched value unless a newer local mutate landed while
// the fetch was in flight.
func (c *Cache) store(key Key, value any, baseVersion uint64) any {
	ks := key.String()

	c.mu.Lock()
	e := c.entries[ks]
	if e != nil && e.version > baseVersion {
		stored := e.value
		c.mu.Unlock()
		return stored
	}
	if e == nil {
		e = &entry{}
		c.entries[ks] = e
	}
	e.value = value
	e.version = baseVersion + 1
	e.fetchedAt = time.Now()
	c.mu.Unlock()

	c.notify(ks, value)
	return value
}

func (c *Cache) notify(ks string, value any) {
	c.mu.Lock()
	watchers := make([]watcherEntry, len(c.watchers[ks]))
	copy(watchers, c.watchers[ks])
	c.mu.Unlock()

	for _, w := range watchers {
		w.fn(value)
	}
}

// fetchWithRetry applies the read retry policy: a not-found read is retried
// once after a short delay to absorb read-after-write latency; any other
// failure is retried up to three attempts with a fixed backoff.
func (c *Cache) fetchWithRetry(ctx context.Context, fetch Fetcher) (any, error) {
	retriedNotFound := false
	attempts := 0

	for {
		value, err := fetch(ctx)
		if err == nil {
			return value, nil
		}

		if errors.Is(err, repository.ErrNotFound) {
			if retriedNotFound {
				return nil, err
			}
			retriedNotFound = true
			if sleepErr := sleepCtx(ctx, c.notFoundDelay); sleepErr != nil {
				return nil, err
			}
			continue
		}

		attempts++
		if attempts >= c.maxAttempts {
			return nil, err
		}
		if sleepErr := sleepCtx(ctx, c.retryDelay); sleepErr != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
